package credit

import (
	"time"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/shared"
)

// TransactionType is the direction of a ledger row
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// Source says where credits came from, or why they left
type Source string

const (
	SourceSubscription Source = "subscription"
	SourcePurchase     Source = "purchase"
	SourceBonus        Source = "bonus"
	SourceBeta         Source = "beta"
	SourceReferral     Source = "referral"
	SourceUsage        Source = "usage"
	SourceRefund       Source = "refund"
	SourceTeam         Source = "team"
	SourceAdmin        Source = "admin"
)

// String returns the string representation of Source
func (s Source) String() string {
	return string(s)
}

// IsValid returns true if the source is known
func (s Source) IsValid() bool {
	switch s {
	case SourceSubscription, SourcePurchase, SourceBonus, SourceBeta, SourceReferral,
		SourceUsage, SourceRefund, SourceTeam, SourceAdmin:
		return true
	}
	return false
}

// IsGrantable is true for sources that may add credits to a personal balance
func (s Source) IsGrantable() bool {
	switch s {
	case SourceSubscription, SourcePurchase, SourceBonus, SourceBeta, SourceReferral, SourceAdmin:
		return true
	}
	return false
}

// Bucket is the balance a transaction moved
type Bucket string

const (
	BucketPersonal Bucket = "personal"
	BucketTeam     Bucket = "team"
)

// Transaction is an append-only ledger row. Personal-bucket amounts replayed
// in order sum to the user's balance.
type Transaction struct {
	ID             uuid.UUID
	UserID         string
	Amount         int64
	Type           TransactionType
	Source         Source
	Bucket         Bucket
	Action         string
	Description    string
	BalanceAfter   int64
	IdempotencyKey *string
	TeamID         *uuid.UUID
	CreatedAt      time.Time
}

func newTransaction(userID string, amount int64, typ TransactionType, source Source, bucket Bucket, balanceAfter int64) *Transaction {
	return &Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		Amount:       amount,
		Type:         typ,
		Source:       source,
		Bucket:       bucket,
		BalanceAfter: balanceAfter,
		CreatedAt:    time.Now(),
	}
}

// NewCreditTransaction records credits added to a personal balance
func NewCreditTransaction(userID string, amount int64, source Source, balanceAfter int64, idempotencyKey string) (*Transaction, error) {
	if amount <= 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Credit amount must be positive")
	}
	if !source.IsGrantable() {
		return nil, shared.NewDomainError("INVALID_SOURCE", "Source cannot grant credits: "+string(source))
	}
	tx := newTransaction(userID, amount, TransactionTypeCredit, source, BucketPersonal, balanceAfter)
	tx.SetIdempotencyKey(idempotencyKey)
	return tx, nil
}

// NewDebitTransaction records a charge. amount is the positive cost; the row stores it negated.
func NewDebitTransaction(userID string, amount int64, source Source, bucket Bucket, action string, balanceAfter int64) *Transaction {
	tx := newTransaction(userID, -amount, TransactionTypeDebit, source, bucket, balanceAfter)
	tx.Action = action
	return tx
}

// NewAdminBypassTransaction records a zero-amount audit row for a staff action
func NewAdminBypassTransaction(userID, action string, balanceAfter int64) *Transaction {
	tx := newTransaction(userID, 0, TransactionTypeDebit, SourceAdmin, BucketPersonal, balanceAfter)
	tx.Action = action
	return tx
}

// SetIdempotencyKey attaches a key; an empty key is stored as NULL
func (t *Transaction) SetIdempotencyKey(key string) {
	if key == "" {
		t.IdempotencyKey = nil
		return
	}
	t.IdempotencyKey = &key
}

// WithDescription sets the description
func (t *Transaction) WithDescription(description string) *Transaction {
	t.Description = description
	return t
}

// WithTeam tags the row with the team whose pool paid for it
func (t *Transaction) WithTeam(teamID uuid.UUID) *Transaction {
	t.TeamID = &teamID
	return t
}

// AffectsPersonalBalance is true for rows that count toward the personal balance replay
func (t *Transaction) AffectsPersonalBalance() bool {
	return t.Bucket == BucketPersonal
}
