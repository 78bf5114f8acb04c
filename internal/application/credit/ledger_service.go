// Package credit implements the credit ledger engine: balance reads, charges
// against the personal balance or a team allocation, idempotent grants,
// refund clawbacks, beta allowances and ledger verification.
package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	teamapp "github.com/mvstudio/backend/internal/application/team"
	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/domain/team"
	"github.com/mvstudio/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// LedgerConfig holds tunables of the ledger engine
type LedgerConfig struct {
	LowBalanceThreshold int64
	MaxBatchSize        int
	RefundMaxRetries    int
}

// DefaultLedgerConfig returns the default ledger tunables
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		LowBalanceThreshold: 10,
		MaxBatchSize:        20,
		RefundMaxRetries:    3,
	}
}

// LedgerService is the only writer of personal balances
type LedgerService struct {
	scope        TransactionScope
	balances     credit.BalanceRepository
	transactions credit.TransactionRepository
	betaQuotas   credit.BetaQuotaRepository
	shortfalls   credit.RefundShortfallRepository
	members      team.MemberRepository
	publisher    shared.EventPublisher
	metrics      *telemetry.LedgerMetrics
	logger       *zap.Logger
	config       LedgerConfig
}

// LedgerServiceConfig contains the dependencies of LedgerService
type LedgerServiceConfig struct {
	Scope        TransactionScope
	Balances     credit.BalanceRepository
	Transactions credit.TransactionRepository
	BetaQuotas   credit.BetaQuotaRepository
	Shortfalls   credit.RefundShortfallRepository
	Members      team.MemberRepository
	Publisher    shared.EventPublisher
	Metrics      *telemetry.LedgerMetrics
	Logger       *zap.Logger
	Config       LedgerConfig
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(cfg LedgerServiceConfig) *LedgerService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	config := cfg.Config
	defaults := DefaultLedgerConfig()
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = defaults.MaxBatchSize
	}
	if config.RefundMaxRetries <= 0 {
		config.RefundMaxRetries = defaults.RefundMaxRetries
	}
	return &LedgerService{
		scope:        cfg.Scope,
		balances:     cfg.Balances,
		transactions: cfg.Transactions,
		betaQuotas:   cfg.BetaQuotas,
		shortfalls:   cfg.Shortfalls,
		members:      cfg.Members,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		logger:       logger,
		config:       config,
	}
}

// GetBalance returns the personal balance, creating a zero one on first use
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (*BalanceResponse, error) {
	if userID == "" {
		return nil, shared.ErrInvalidInput
	}
	balance, err := s.balances.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	resp := ToBalanceResponse(balance)
	return &resp, nil
}

// GetAvailableCredits sums the personal balance and, for an active team
// member, the unused part of their allocation.
func (s *LedgerService) GetAvailableCredits(ctx context.Context, userID string) (*AvailableCredits, error) {
	if userID == "" {
		return nil, shared.ErrInvalidInput
	}
	balance, err := s.balances.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	result := &AvailableCredits{Personal: balance.Balance}
	member, err := s.members.FindActiveByUser(ctx, userID)
	switch {
	case err == nil:
		teamID := member.TeamID
		result.TeamID = &teamID
		result.TeamAvailable = max(member.Available(), 0)
	case !errors.Is(err, shared.ErrNotFound):
		return nil, fmt.Errorf("load membership: %w", err)
	}
	result.TotalAvailable = result.Personal + result.TeamAvailable
	return result, nil
}

// HasEnoughCredits reports whether the user can currently pay for action
func (s *LedgerService) HasEnoughCredits(ctx context.Context, userID string, role shared.Role, action string) (bool, error) {
	cost, err := actionCost(action)
	if err != nil {
		return false, err
	}
	if role.HasUnlimitedAccess() {
		return true, nil
	}
	available, err := s.GetAvailableCredits(ctx, userID)
	if err != nil {
		return false, err
	}
	return available.TotalAvailable >= cost, nil
}

// Deduct charges one action. Staff roles are recorded with a zero-amount
// audit row. Everyone else pays from the personal balance first and falls
// back to their team allocation. When neither covers the cost the result has
// Outcome INSUFFICIENT_CREDITS and nothing is written.
func (s *LedgerService) Deduct(ctx context.Context, req DeductRequest) (*DeductResult, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "credit", "deduct",
		telemetry.SpanAttrUserID, req.UserID,
		telemetry.SpanAttrAction, req.Action)
	defer span.End()

	if req.UserID == "" {
		return nil, shared.ErrInvalidInput
	}
	cost, err := actionCost(req.Action)
	if err != nil {
		return nil, err
	}

	if req.Role.HasUnlimitedAccess() {
		result, err := s.recordAdminBypass(ctx, req, cost)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		return result, nil
	}

	var result *DeductResult
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if req.UseBetaQuota {
			kling := billing.IsKlingAction(billing.Action(req.Action))
			ok, err := repos.BetaQuotaRepo().Consume(ctx, req.UserID, kling)
			if err != nil {
				return fmt.Errorf("consume beta quota: %w", err)
			}
			if !ok {
				return shared.ErrBetaQuotaExceeded
			}
		}

		var err error
		result, err = s.charge(ctx, repos, req, cost)
		return err
	})

	switch {
	case errors.Is(err, shared.ErrInsufficientCredits):
		return s.rejectInsufficient(ctx, req, cost)
	case errors.Is(err, shared.ErrBetaQuotaExceeded):
		telemetry.AddEvent(span, "beta_quota_exceeded")
		s.logger.Info("Beta quota exhausted",
			zap.String("user_id", req.UserID),
			zap.String("action", req.Action))
		return &DeductResult{Cost: cost, Outcome: OutcomeBetaQuotaExceeded}, nil
	case err != nil:
		telemetry.RecordError(span, err)
		return nil, s.logIntegrity(err, "deduct", req.UserID)
	}

	bucket := credit.BucketPersonal
	if result.Source == SourceTeam {
		bucket = credit.BucketTeam
	} else {
		result.LowBalance = result.BalanceAfter < s.config.LowBalanceThreshold
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrBucket, string(bucket), telemetry.SpanAttrAmount, cost)
	s.metrics.RecordDeduction(ctx, req.Action, string(bucket), cost, time.Since(start))
	s.publish(ctx, credit.NewCreditsDeductedEvent(req.UserID, req.Action, cost, bucket, result.BalanceAfter))
	return result, nil
}

// charge debits cost inside repos' transaction. It returns
// shared.ErrInsufficientCredits when neither bucket can pay so the caller
// rolls back anything already done in the unit.
func (s *LedgerService) charge(ctx context.Context, repos TransactionalRepositories, req DeductRequest, cost int64) (*DeductResult, error) {
	current, err := repos.BalanceRepo().GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	if current.CanAfford(cost) {
		updated, err := repos.BalanceRepo().Debit(ctx, req.UserID, cost)
		if err != nil {
			return nil, fmt.Errorf("debit balance: %w", err)
		}
		// nil means another writer spent it first; try the team bucket
		if updated != nil {
			if err := updated.Verify(); err != nil {
				return nil, err
			}
			tx := credit.NewDebitTransaction(req.UserID, cost, credit.SourceUsage, credit.BucketPersonal, req.Action, updated.Balance).
				WithDescription(req.Description)
			if _, err := repos.TransactionRepo().Append(ctx, tx); err != nil {
				return nil, fmt.Errorf("append transaction: %w", err)
			}
			return &DeductResult{
				Success:      true,
				Source:       SourcePersonal,
				Cost:         cost,
				BalanceAfter: updated.Balance,
				Outcome:      OutcomeCharged,
			}, nil
		}
	}

	member, err := repos.MemberRepo().FindActiveByUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInsufficientCredits
		}
		return nil, fmt.Errorf("load membership: %w", err)
	}
	if member.Available() < cost {
		return nil, shared.ErrInsufficientCredits
	}

	updated, ok, err := teamapp.ConsumeCredits(ctx, repos, member.TeamID, member.ID, cost, req.Action)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrInsufficientCredits
	}
	tx := credit.NewDebitTransaction(req.UserID, cost, credit.SourceTeam, credit.BucketTeam, req.Action, updated.Available()).
		WithDescription(req.Description).
		WithTeam(member.TeamID)
	if _, err := repos.TransactionRepo().Append(ctx, tx); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	return &DeductResult{
		Success:      true,
		Source:       SourceTeam,
		Cost:         cost,
		BalanceAfter: updated.Available(),
		Outcome:      OutcomeCharged,
	}, nil
}

func (s *LedgerService) recordAdminBypass(ctx context.Context, req DeductRequest, cost int64) (*DeductResult, error) {
	var balanceAfter int64
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		balance, err := repos.BalanceRepo().GetOrCreate(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("load balance: %w", err)
		}
		balanceAfter = balance.Balance
		tx := credit.NewAdminBypassTransaction(req.UserID, req.Action, balance.Balance).
			WithDescription(req.Description)
		if _, err := repos.TransactionRepo().Append(ctx, tx); err != nil {
			return fmt.Errorf("append audit transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Staff credit bypass",
		zap.String("user_id", req.UserID),
		zap.String("role", req.Role.String()),
		zap.String("action", req.Action),
		zap.Int64("cost", cost))
	s.metrics.RecordAdminBypass(ctx, req.Action)
	s.publish(ctx, credit.NewAdminBypassEvent(req.UserID, req.Action, cost))

	return &DeductResult{
		Success:      true,
		Source:       SourceAdmin,
		Cost:         cost,
		BalanceAfter: balanceAfter,
		Outcome:      OutcomeAdminBypass,
	}, nil
}

func (s *LedgerService) rejectInsufficient(ctx context.Context, req DeductRequest, cost int64) (*DeductResult, error) {
	result := &DeductResult{Cost: cost, Outcome: OutcomeInsufficientCredits}
	available, err := s.GetAvailableCredits(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	result.BalanceAfter = available.Personal

	s.logger.Info("Insufficient credits",
		zap.String("user_id", req.UserID),
		zap.String("action", req.Action),
		zap.Int64("cost", cost),
		zap.Int64("total_available", available.TotalAvailable))
	s.metrics.RecordInsufficient(ctx, req.Action)
	s.publish(ctx, credit.NewDeductionRejectedEvent(req.UserID, req.Action, cost, available.TotalAvailable))
	return result, nil
}

// DeductBatch charges count units of the same action one by one and stops at
// the first unit that cannot be paid. Fallback tells the caller to produce the
// remaining units with the free alternative.
func (s *LedgerService) DeductBatch(ctx context.Context, req DeductRequest, count int) (*DeductBatchResult, error) {
	if count < 1 || count > s.config.MaxBatchSize {
		return nil, shared.NewDomainError("INVALID_INPUT",
			fmt.Sprintf("Batch size must be between 1 and %d", s.config.MaxBatchSize))
	}
	cost, err := actionCost(req.Action)
	if err != nil {
		return nil, err
	}

	result := &DeductBatchResult{Requested: count, CostPerUnit: cost}
	affordable := count
	if !req.Role.HasUnlimitedAccess() {
		available, err := s.GetAvailableCredits(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		result.RemainingBalance = available.TotalAvailable
		if cost > 0 {
			// units never span buckets
			affordable = min(count, int(available.Personal/cost+available.TeamAvailable/cost))
		}
	}

	for i := 0; i < affordable; i++ {
		unit := req
		if unit.Description == "" {
			unit.Description = fmt.Sprintf("%s x%d (%d/%d)", req.Action, affordable, i+1, affordable)
		}
		r, err := s.Deduct(ctx, unit)
		if err != nil {
			return nil, err
		}
		if !r.Success {
			break
		}
		result.Generated++
		result.TotalCost += r.Cost
		result.Sources = append(result.Sources, r.Source)
		if r.Source != SourceAdmin {
			result.RemainingBalance -= r.Cost
		}
	}

	result.Success = result.Generated > 0
	result.Fallback = result.Generated < count
	return result, nil
}

// ListTransactions returns a page of the user's ledger, newest first
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, filter shared.Filter) (shared.Paginated[TransactionResponse], error) {
	filter = filter.Normalize()
	rows, total, err := s.transactions.ListByUser(ctx, userID, filter)
	if err != nil {
		return shared.Paginated[TransactionResponse]{}, err
	}
	items := make([]TransactionResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToTransactionResponse(row))
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// VerifyLedger replays the personal bucket and compares it with the stored
// balance. A mismatch returns the report together with an IntegrityError.
func (s *LedgerService) VerifyLedger(ctx context.Context, userID string) (*LedgerReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit", "verify", telemetry.SpanAttrUserID, userID)
	defer span.End()

	balance, err := s.balances.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	rows, err := s.transactions.ListPersonalInOrder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	report := &LedgerReport{
		UserID:         userID,
		Balance:        balance.Balance,
		LifetimeEarned: balance.LifetimeEarned,
		LifetimeSpent:  balance.LifetimeSpent,
		Transactions:   len(rows),
	}
	for _, row := range rows {
		report.ReplayedSum += row.Amount
	}
	report.Consistent = balance.Consistent() && report.ReplayedSum == balance.Balance
	if report.Consistent {
		return report, nil
	}

	err = balance.Verify()
	if err == nil {
		err = shared.NewIntegrityError("ledger_replay_matches_balance", "user:"+userID,
			fmt.Sprintf("replayed %d over %d rows, balance %d", report.ReplayedSum, report.Transactions, balance.Balance))
	}
	telemetry.RecordError(span, err)
	return report, s.logIntegrity(err, "verify", userID)
}

func actionCost(action string) (int64, error) {
	a, err := billing.ParseAction(action)
	if err != nil {
		return 0, err
	}
	return billing.GetActionCost(a)
}

func (s *LedgerService) logIntegrity(err error, op, userID string) error {
	if shared.IsIntegrityError(err) {
		s.logger.Error("Credit ledger integrity violation",
			zap.String("operation", op),
			zap.String("user_id", userID),
			zap.Error(err))
	}
	return err
}

func (s *LedgerService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish ledger events", zap.Error(err))
	}
}
