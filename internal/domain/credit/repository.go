package credit

import (
	"context"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/shared"
)

// BalanceRepository stores personal balances. Writes are guarded updates;
// there is no method that sets a balance directly.
type BalanceRepository interface {
	// GetOrCreate returns the balance, inserting a zero row if none exists
	GetOrCreate(ctx context.Context, userID string) (*Balance, error)
	FindByUserID(ctx context.Context, userID string) (*Balance, error)
	// Debit subtracts amount only if balance >= amount.
	// Returns (nil, nil) when the guard rejects the write.
	Debit(ctx context.Context, userID string, amount int64) (*Balance, error)
	// Credit adds amount to balance and lifetime earned
	Credit(ctx context.Context, userID string, amount int64) (*Balance, error)
}

// TransactionRepository appends to the ledger log
type TransactionRepository interface {
	// Append inserts the row. Returns false without error when the
	// (user_id, idempotency_key) pair already exists.
	Append(ctx context.Context, tx *Transaction) (bool, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Transaction, error)
	ListByUser(ctx context.Context, userID string, filter shared.Filter) ([]*Transaction, int64, error)
	// ListPersonalInOrder returns personal-bucket rows oldest first for replay
	ListPersonalInOrder(ctx context.Context, userID string) ([]*Transaction, error)
}

// BetaQuotaRepository stores beta allowances
type BetaQuotaRepository interface {
	FindByUserID(ctx context.Context, userID string) (*BetaQuota, error)
	// Upsert creates or replaces the quota limits for a user, keeping usage
	Upsert(ctx context.Context, quota *BetaQuota) error
	// Consume uses one unit (and one Kling unit when kling is true) only if both fit.
	// Returns false when the quota is exhausted or inactive.
	Consume(ctx context.Context, userID string, kling bool) (bool, error)
	AddBonus(ctx context.Context, userID string, amount int64) (*BetaQuota, error)
}

// RefundShortfallRepository stores shortfalls for manual review
type RefundShortfallRepository interface {
	Create(ctx context.Context, s *RefundShortfall) error
	FindByID(ctx context.Context, id uuid.UUID) (*RefundShortfall, error)
	List(ctx context.Context, status ShortfallStatus, filter shared.Filter) ([]*RefundShortfall, int64, error)
	Update(ctx context.Context, s *RefundShortfall) error
}
