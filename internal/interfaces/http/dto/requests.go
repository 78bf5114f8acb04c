package dto

// DeductRequest charges one action to the caller
type DeductRequest struct {
	Action       string `json:"action" binding:"required,max=64"`
	Description  string `json:"description" binding:"omitempty,max=255"`
	UseBetaQuota bool   `json:"use_beta_quota"`
}

// DeductBatchRequest charges count units of one action
type DeductBatchRequest struct {
	Action      string `json:"action" binding:"required,max=64"`
	Count       int    `json:"count" binding:"required,min=1"`
	Description string `json:"description" binding:"omitempty,max=255"`
}

// CreateTeamRequest creates a team owned by the caller
type CreateTeamRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// JoinTeamRequest joins a team by invite code
type JoinTeamRequest struct {
	InviteCode string `json:"invite_code" binding:"required,max=32"`
}

// AmountRequest carries a positive credit amount
type AmountRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// GrantCreditsRequest grants credits to a user from the admin console
type GrantCreditsRequest struct {
	UserID         string `json:"user_id" binding:"required,max=64"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Source         string `json:"source" binding:"omitempty,oneof=bonus purchase subscription"`
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=255"`
	Description    string `json:"description" binding:"omitempty,max=255"`
}

// BetaQuotaRequest creates or replaces a beta allowance
type BetaQuotaRequest struct {
	TotalQuota int64  `json:"total_quota" binding:"gte=0"`
	KlingLimit int64  `json:"kling_limit" binding:"gte=0"`
	IsActive   *bool  `json:"is_active"`
	Note       string `json:"note" binding:"omitempty,max=255"`
}

// ResolveShortfallRequest closes a refund shortfall
type ResolveShortfallRequest struct {
	Status string `json:"status" binding:"required,oneof=resolved waived"`
	Note   string `json:"note" binding:"omitempty,max=500"`
}
