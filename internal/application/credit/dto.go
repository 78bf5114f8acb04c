package credit

import (
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
)

// Deduction outcomes
const (
	OutcomeCharged             = "CHARGED"
	OutcomeAdminBypass         = "ADMIN_BYPASS"
	OutcomeInsufficientCredits = "INSUFFICIENT_CREDITS"
	OutcomeBetaQuotaExceeded   = "BETA_QUOTA_EXCEEDED"
)

// Deduction sources reported to callers
const (
	SourcePersonal = "personal"
	SourceTeam     = "team"
	SourceAdmin    = "admin"
)

// DeductRequest charges one action to a user. UseBetaQuota also draws one
// unit from the user's beta allowance in the same transaction.
type DeductRequest struct {
	UserID       string
	Role         shared.Role
	Action       string
	Description  string
	UseBetaQuota bool
}

// DeductResult is the outcome of a deduction. Running out of credits is a
// normal result with Success false, not an error.
type DeductResult struct {
	Success      bool   `json:"success"`
	Source       string `json:"source,omitempty"`
	Cost         int64  `json:"cost"`
	BalanceAfter int64  `json:"balance_after"`
	Outcome      string `json:"outcome"`
	LowBalance   bool   `json:"low_balance,omitempty"`
}

// DeductBatchResult reports how many units of a batch were paid for
type DeductBatchResult struct {
	Success          bool     `json:"success"`
	Requested        int      `json:"requested"`
	Generated        int      `json:"generated"`
	CostPerUnit      int64    `json:"cost_per_unit"`
	TotalCost        int64    `json:"total_cost"`
	RemainingBalance int64    `json:"remaining_balance"`
	Fallback         bool     `json:"fallback"`
	Sources          []string `json:"sources,omitempty"`
}

// CreditResult is the outcome of a grant
type CreditResult struct {
	BalanceAfter int64 `json:"balance_after"`
	Applied      bool  `json:"applied"`
}

// RefundResult is the outcome of a refund clawback
type RefundResult struct {
	Requested    int64      `json:"requested"`
	Applied      int64      `json:"applied"`
	Shortfall    int64      `json:"shortfall"`
	BalanceAfter int64      `json:"balance_after"`
	Duplicate    bool       `json:"duplicate,omitempty"`
	ShortfallID  *uuid.UUID `json:"shortfall_id,omitempty"`
}

// AvailableCredits is the spendable total across personal and team buckets
type AvailableCredits struct {
	Personal       int64      `json:"personal"`
	TeamAvailable  int64      `json:"team_available"`
	TotalAvailable int64      `json:"total_available"`
	TeamID         *uuid.UUID `json:"team_id,omitempty"`
}

// BalanceResponse represents a personal balance in API responses
type BalanceResponse struct {
	UserID         string    `json:"user_id"`
	Balance        int64     `json:"balance"`
	LifetimeEarned int64     `json:"lifetime_earned"`
	LifetimeSpent  int64     `json:"lifetime_spent"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TransactionResponse represents a ledger row in API responses
type TransactionResponse struct {
	ID           uuid.UUID  `json:"id"`
	Amount       int64      `json:"amount"`
	Type         string     `json:"type"`
	Source       string     `json:"source"`
	Bucket       string     `json:"bucket"`
	Action       string     `json:"action,omitempty"`
	Description  string     `json:"description,omitempty"`
	BalanceAfter int64      `json:"balance_after"`
	TeamID       *uuid.UUID `json:"team_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// LedgerReport is the result of replaying a user's personal ledger
type LedgerReport struct {
	UserID         string `json:"user_id"`
	Balance        int64  `json:"balance"`
	LifetimeEarned int64  `json:"lifetime_earned"`
	LifetimeSpent  int64  `json:"lifetime_spent"`
	ReplayedSum    int64  `json:"replayed_sum"`
	Transactions   int    `json:"transactions"`
	Consistent     bool   `json:"consistent"`
}

// BetaQuotaResponse represents a beta allowance in API responses
type BetaQuotaResponse struct {
	UserID         string `json:"user_id"`
	TotalQuota     int64  `json:"total_quota"`
	BonusQuota     int64  `json:"bonus_quota"`
	UsedCount      int64  `json:"used_count"`
	Remaining      int64  `json:"remaining"`
	KlingLimit     int64  `json:"kling_limit"`
	KlingUsed      int64  `json:"kling_used"`
	KlingRemaining int64  `json:"kling_remaining"`
	IsActive       bool   `json:"is_active"`
	Note           string `json:"note,omitempty"`
}

// GrantBetaQuotaRequest creates or replaces a beta allowance
type GrantBetaQuotaRequest struct {
	UserID     string
	TotalQuota int64
	KlingLimit int64
	IsActive   bool
	GrantedBy  string
	Note       string
}

// ShortfallResponse represents a refund shortfall in API responses
type ShortfallResponse struct {
	ID             uuid.UUID  `json:"id"`
	UserID         string     `json:"user_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Requested      int64      `json:"requested"`
	Applied        int64      `json:"applied"`
	Shortfall      int64      `json:"shortfall"`
	Status         string     `json:"status"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// ToBalanceResponse converts a balance to its response
func ToBalanceResponse(b *credit.Balance) BalanceResponse {
	return BalanceResponse{
		UserID:         b.UserID,
		Balance:        b.Balance,
		LifetimeEarned: b.LifetimeEarned,
		LifetimeSpent:  b.LifetimeSpent,
		UpdatedAt:      b.UpdatedAt,
	}
}

// ToTransactionResponse converts a ledger row to its response
func ToTransactionResponse(t *credit.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:           t.ID,
		Amount:       t.Amount,
		Type:         string(t.Type),
		Source:       string(t.Source),
		Bucket:       string(t.Bucket),
		Action:       t.Action,
		Description:  t.Description,
		BalanceAfter: t.BalanceAfter,
		TeamID:       t.TeamID,
		CreatedAt:    t.CreatedAt,
	}
}

// ToBetaQuotaResponse converts a beta quota to its response
func ToBetaQuotaResponse(q *credit.BetaQuota) BetaQuotaResponse {
	return BetaQuotaResponse{
		UserID:         q.UserID,
		TotalQuota:     q.TotalQuota,
		BonusQuota:     q.BonusQuota,
		UsedCount:      q.UsedCount,
		Remaining:      q.Remaining(),
		KlingLimit:     q.KlingLimit,
		KlingUsed:      q.KlingUsed,
		KlingRemaining: q.KlingRemaining(),
		IsActive:       q.IsActive,
		Note:           q.Note,
	}
}

// ToShortfallResponse converts a shortfall to its response
func ToShortfallResponse(s *credit.RefundShortfall) ShortfallResponse {
	return ShortfallResponse{
		ID:             s.ID,
		UserID:         s.UserID,
		IdempotencyKey: s.IdempotencyKey,
		Requested:      s.Requested,
		Applied:        s.Applied,
		Shortfall:      s.Shortfall,
		Status:         string(s.Status),
		ResolvedBy:     s.ResolvedBy,
		ResolutionNote: s.ResolutionNote,
		CreatedAt:      s.CreatedAt,
		ResolvedAt:     s.ResolvedAt,
	}
}

// CreditRequest grants credits to a personal balance
type CreditRequest struct {
	UserID         string
	Amount         int64
	Source         credit.Source
	IdempotencyKey string
	Description    string
}

// RefundRequest claws back credits after a payment refund
type RefundRequest struct {
	UserID         string
	Credits        int64
	IdempotencyKey string
	Description    string
}
