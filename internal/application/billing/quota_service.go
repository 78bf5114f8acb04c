package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// maxResetAttempts bounds how often a lost reset CAS is re-read before giving up
const maxResetAttempts = 3

// QuotaDecision is the outcome of a quota check. Remaining and Limit are -1
// when the feature is uncapped for the caller.
type QuotaDecision struct {
	Allowed   bool       `json:"allowed"`
	Feature   string     `json:"feature"`
	Plan      string     `json:"plan,omitempty"`
	Limit     int64      `json:"limit"`
	Used      int64      `json:"used"`
	Remaining int64      `json:"remaining"`
	ResetsAt  *time.Time `json:"resets_at,omitempty"`
}

// QuotaService enforces the free-use caps each plan grants per feature and cycle
type QuotaService struct {
	accounts billing.AccountRepository
	counters billing.UsageCounterRepository
	metrics  *telemetry.LedgerMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// QuotaServiceConfig contains the dependencies of QuotaService
type QuotaServiceConfig struct {
	Accounts billing.AccountRepository
	Counters billing.UsageCounterRepository
	Metrics  *telemetry.LedgerMetrics
	Logger   *zap.Logger
	// Now overrides the clock in tests
	Now func() time.Time
}

// NewQuotaService creates a new QuotaService
func NewQuotaService(cfg QuotaServiceConfig) *QuotaService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &QuotaService{
		accounts: cfg.Accounts,
		counters: cfg.Counters,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      now,
	}
}

// CheckAndConsume uses one free use of feature. Running out is reported through
// Allowed false, never as an error. Staff roles and uncapped plans are always
// allowed and leave the counter untouched.
func (s *QuotaService) CheckAndConsume(ctx context.Context, userID string, role shared.Role, feature billing.FeatureType) (*QuotaDecision, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "quota", "check_and_consume",
		telemetry.SpanAttrUserID, userID,
		telemetry.SpanAttrFeature, feature.String())
	defer span.End()

	if userID == "" || !feature.IsValid() {
		return nil, shared.ErrInvalidInput
	}
	if role.HasUnlimitedAccess() {
		return unlimitedDecision(feature, ""), nil
	}

	account, err := s.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	plan, err := billing.GetPlan(account.Plan)
	if err != nil {
		return nil, err
	}
	limit := plan.FeatureLimit(feature)
	if limit == billing.Unlimited {
		return unlimitedDecision(feature, plan.Tier.String()), nil
	}

	counter, err := s.counters.GetOrCreate(ctx, userID, feature)
	if err != nil {
		return nil, fmt.Errorf("load usage counter: %w", err)
	}
	counter, err = s.resetIfStale(ctx, counter, plan.CycleMonths)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	decision := &QuotaDecision{
		Feature: feature.String(),
		Plan:    plan.Tier.String(),
		Limit:   limit,
	}
	resetsAt := counter.NextResetAt(plan.CycleMonths)
	decision.ResetsAt = &resetsAt

	updated, err := s.counters.IncrementIfBelow(ctx, counter.ID, limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("increment usage counter: %w", err)
	}
	if updated == nil {
		decision.Used = min(counter.UsageCount, limit)
		decision.Remaining = 0
	} else {
		decision.Allowed = true
		decision.Used = updated.UsageCount
		decision.Remaining = updated.Remaining(limit)
	}

	s.metrics.RecordQuotaDecision(ctx, feature.String(), decision.Allowed)
	s.logger.Debug("Quota decision",
		zap.String("user_id", userID),
		zap.String("feature", feature.String()),
		zap.Bool("allowed", decision.Allowed),
		zap.Int64("used", decision.Used),
		zap.Int64("limit", limit))
	return decision, nil
}

// GetUsage reports the caller's usage of feature without consuming or
// persisting anything. A counter due for reset is reported as reset.
func (s *QuotaService) GetUsage(ctx context.Context, userID string, role shared.Role, feature billing.FeatureType) (*QuotaDecision, error) {
	if userID == "" || !feature.IsValid() {
		return nil, shared.ErrInvalidInput
	}
	usage, err := s.ListUsage(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	for _, d := range usage {
		if d.Feature == feature.String() {
			return d, nil
		}
	}
	return nil, shared.ErrNotFound
}

// ListUsage reports usage of every quota-gated feature
func (s *QuotaService) ListUsage(ctx context.Context, userID string, role shared.Role) ([]*QuotaDecision, error) {
	if role.HasUnlimitedAccess() {
		result := make([]*QuotaDecision, 0, len(billing.AllFeatures))
		for _, f := range billing.AllFeatures {
			result = append(result, unlimitedDecision(f, ""))
		}
		return result, nil
	}

	tier := billing.PlanFree
	account, err := s.accounts.FindByUserID(ctx, userID)
	switch {
	case err == nil:
		tier = account.Plan
	case !errors.Is(err, shared.ErrNotFound):
		return nil, fmt.Errorf("load account: %w", err)
	}
	plan, err := billing.GetPlan(tier)
	if err != nil {
		return nil, err
	}

	counters, err := s.counters.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load usage counters: %w", err)
	}
	byFeature := make(map[billing.FeatureType]*billing.UsageCounter, len(counters))
	for _, c := range counters {
		byFeature[c.Feature] = c
	}

	now := s.now()
	result := make([]*QuotaDecision, 0, len(billing.AllFeatures))
	for _, f := range billing.AllFeatures {
		limit := plan.FeatureLimit(f)
		if limit == billing.Unlimited {
			result = append(result, unlimitedDecision(f, plan.Tier.String()))
			continue
		}
		c, ok := byFeature[f]
		if !ok || c.NeedsReset(now, plan.CycleMonths) {
			c = billing.NewUsageCounter(userID, f, now)
		}
		resetsAt := c.NextResetAt(plan.CycleMonths)
		result = append(result, &QuotaDecision{
			Allowed:   c.Remaining(limit) > 0,
			Feature:   f.String(),
			Plan:      plan.Tier.String(),
			Limit:     limit,
			Used:      c.UsageCount,
			Remaining: c.Remaining(limit),
			ResetsAt:  &resetsAt,
		})
	}
	return result, nil
}

// resetIfStale starts a new cycle when the counter's cycle has elapsed. The
// reset is a compare-and-swap on Version so concurrent callers reset once; a
// loser re-reads the counter the winner wrote.
func (s *QuotaService) resetIfStale(ctx context.Context, counter *billing.UsageCounter, cycleMonths int) (*billing.UsageCounter, error) {
	for attempt := 0; attempt < maxResetAttempts; attempt++ {
		now := s.now()
		if !counter.NeedsReset(now, cycleMonths) {
			return counter, nil
		}
		swapped, err := s.counters.ResetIfVersion(ctx, counter.ID, counter.Version, now)
		if err != nil {
			return nil, fmt.Errorf("reset usage counter: %w", err)
		}
		if swapped {
			s.logger.Debug("Usage counter reset",
				zap.String("user_id", counter.UserID),
				zap.String("feature", counter.Feature.String()))
		}
		counter, err = s.counters.FindByID(ctx, counter.ID)
		if err != nil {
			return nil, fmt.Errorf("reload usage counter: %w", err)
		}
	}
	return nil, shared.ErrConcurrencyConflict
}

func unlimitedDecision(feature billing.FeatureType, plan string) *QuotaDecision {
	return &QuotaDecision{
		Allowed:   true,
		Feature:   feature.String(),
		Plan:      plan,
		Limit:     billing.Unlimited,
		Remaining: billing.Unlimited,
	}
}
