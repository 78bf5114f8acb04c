package shared

// Role is the caller's role as asserted by the auth layer
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
)

// String returns the string representation of Role
func (r Role) String() string {
	return string(r)
}

// HasUnlimitedAccess is true for staff roles that bypass credits and quotas
func (r Role) HasUnlimitedAccess() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// IsAdmin is true only for the admin role
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
