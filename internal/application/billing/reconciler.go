package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	creditapp "github.com/mvstudio/backend/internal/application/credit"
	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Outcomes recorded for a handled billing event
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// CreditLedger is the part of the credit ledger the reconciler moves credits through
type CreditLedger interface {
	Credit(ctx context.Context, req creditapp.CreditRequest) (*creditapp.CreditResult, error)
	Refund(ctx context.Context, req creditapp.RefundRequest) (*creditapp.RefundResult, error)
}

// ReconcileResult describes what a billing event did
type ReconcileResult struct {
	EventID   string `json:"event_id"`
	Kind      string `json:"kind"`
	UserID    string `json:"user_id,omitempty"`
	Outcome   string `json:"outcome"`
	Credits   int64  `json:"credits"`
	Shortfall int64  `json:"shortfall,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ReconcilerConfig holds reconciler tunables
type ReconcilerConfig struct {
	// RefundCreditsPerUnit converts one refunded currency unit into credits
	RefundCreditsPerUnit decimal.Decimal
	// IdempotencyTTL is how long the fast-path store remembers an event
	IdempotencyTTL time.Duration
}

// Reconciler applies billing provider events to accounts and the credit ledger.
// Every credit movement carries the key "<provider>:<event id>" so a redelivered
// event cannot grant or claw back twice.
type Reconciler struct {
	ledger      CreditLedger
	accounts    billing.AccountRepository
	events      billing.ProcessedEventRepository
	idempotency shared.IdempotencyStore
	metrics     *telemetry.LedgerMetrics
	logger      *zap.Logger
	config      ReconcilerConfig
}

// ReconcilerDeps contains the dependencies of Reconciler
type ReconcilerDeps struct {
	Ledger      CreditLedger
	Accounts    billing.AccountRepository
	Events      billing.ProcessedEventRepository
	Idempotency shared.IdempotencyStore
	Metrics     *telemetry.LedgerMetrics
	Logger      *zap.Logger
	Config      ReconcilerConfig
}

// NewReconciler creates a new Reconciler. Idempotency may be nil.
func NewReconciler(deps ReconcilerDeps) *Reconciler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	if cfg.RefundCreditsPerUnit.IsZero() {
		cfg.RefundCreditsPerUnit = billing.DefaultRefundCreditsPerUnit
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &Reconciler{
		ledger:      deps.Ledger,
		accounts:    deps.Accounts,
		events:      deps.Events,
		idempotency: deps.Idempotency,
		metrics:     deps.Metrics,
		logger:      logger,
		config:      cfg,
	}
}

// HandleEvent applies one billing event. Events that cannot be tied to a user
// are acknowledged as ignored. An error means the provider should redeliver.
func (r *Reconciler) HandleEvent(ctx context.Context, event *billing.BillingEvent) (*ReconcileResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "handle_event",
		telemetry.SpanAttrEventType, string(event.Kind),
		telemetry.SpanAttrIdempotencyKey, event.IdempotencyKey())
	defer span.End()

	if err := event.Validate(); err != nil {
		return nil, err
	}
	key := event.IdempotencyKey()
	result := &ReconcileResult{EventID: event.ID, Kind: string(event.Kind)}

	if r.seen(ctx, event) {
		result.Outcome = OutcomeDuplicate
		r.metrics.RecordBillingEvent(ctx, event.Provider, string(event.Kind), OutcomeDuplicate)
		r.logger.Debug("Billing event already handled", zap.String("idempotency_key", key))
		return result, nil
	}

	record := billing.NewProcessedEvent(event.Provider, event.ID, string(event.Kind))
	userID, err := r.resolveUser(ctx, event)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		r.logger.Warn("Billing event for unknown customer acknowledged",
			zap.String("event_id", event.ID),
			zap.String("kind", string(event.Kind)),
			zap.String("customer_id", event.CustomerID))
		record.Ignore("unknown customer")
		result.Outcome = OutcomeIgnored
		result.Message = record.Message
		return result, r.finish(ctx, event, record)
	case err != nil:
		return nil, r.fail(ctx, event, record, err)
	}
	result.UserID = userID
	record.UserID = userID
	telemetry.SetAttributes(span, telemetry.SpanAttrUserID, userID)

	switch event.Kind {
	case billing.EventCheckoutCompleted:
		err = r.handleCheckout(ctx, event, userID, result)
	case billing.EventInvoicePaid:
		err = r.handleInvoicePaid(ctx, event, userID, result)
	case billing.EventSubscriptionUpdated:
		err = r.handleSubscriptionUpdated(ctx, event, userID, result)
	case billing.EventSubscriptionDeleted:
		err = r.handleSubscriptionDeleted(ctx, userID, result)
	case billing.EventRefund:
		err = r.handleRefund(ctx, event, userID, result)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, r.fail(ctx, event, record, err)
	}

	if result.Outcome == OutcomeIgnored {
		record.Ignore(result.Message)
	} else {
		result.Outcome = OutcomeProcessed
		record.Message = result.Message
	}
	r.logger.Info("Billing event handled",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("user_id", userID),
		zap.String("outcome", result.Outcome),
		zap.Int64("credits", result.Credits))
	return result, r.finish(ctx, event, record)
}

// seen checks the fast-path store first and the durable event log second.
// Failed events are not considered seen so a redelivery can retry them.
func (r *Reconciler) seen(ctx context.Context, event *billing.BillingEvent) bool {
	if r.idempotency != nil {
		done, err := r.idempotency.IsProcessed(ctx, event.IdempotencyKey())
		if err != nil {
			r.logger.Warn("Idempotency store unavailable, falling back to event log", zap.Error(err))
		} else if done {
			return true
		}
	}
	recorded, err := r.events.FindByProviderEventID(ctx, event.Provider, event.ID)
	return err == nil && recorded.Status != billing.ProcessedEventFailed
}

func (r *Reconciler) resolveUser(ctx context.Context, event *billing.BillingEvent) (string, error) {
	if event.UserID != "" {
		return event.UserID, nil
	}
	account, err := r.accounts.FindByStripeCustomerID(ctx, event.CustomerID)
	if err != nil {
		return "", err
	}
	return account.UserID, nil
}

func (r *Reconciler) handleCheckout(ctx context.Context, event *billing.BillingEvent, userID string, result *ReconcileResult) error {
	if event.PackID != "" {
		pack, err := billing.GetCreditPack(event.PackID)
		if err != nil {
			return err
		}
		credits := event.Credits
		if credits == 0 {
			credits = pack.Credits
		}
		return r.grant(ctx, event, userID, credits, credit.SourcePurchase, "Credit pack: "+pack.ID, result)
	}

	if event.Plan == "" {
		result.Outcome = OutcomeIgnored
		result.Message = "checkout carries neither a pack nor a plan"
		return nil
	}
	plan, err := billing.GetPlan(event.Plan)
	if err != nil {
		return err
	}
	account, err := r.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if err := account.ChangePlan(plan.Tier); err != nil {
		return err
	}
	account.AttachSubscription(event.CustomerID, event.SubscriptionID)
	account.UpdateSubscriptionState(event.CancelAtPeriodEnd, event.TrialEndsAt, event.CurrentPeriodEnd)
	if err := r.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	if plan.MonthlyCredits == 0 {
		return nil
	}
	return r.grant(ctx, event, userID, plan.MonthlyCredits, credit.SourceSubscription,
		"First month of "+plan.Name, result)
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, event *billing.BillingEvent, userID string, result *ReconcileResult) error {
	if event.BillingReason != billing.BillingReasonSubscriptionCycle {
		result.Outcome = OutcomeIgnored
		result.Message = "invoice is not a renewal: " + event.BillingReason
		return nil
	}
	account, err := r.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	plan, err := billing.GetPlan(account.Plan)
	if err != nil {
		return err
	}
	if !plan.Tier.IsPaid() || plan.MonthlyCredits == 0 {
		result.Outcome = OutcomeIgnored
		result.Message = "account has no paid plan"
		return nil
	}
	if event.CurrentPeriodEnd != nil {
		account.UpdateSubscriptionState(account.CancelAtPeriodEnd, account.TrialEndsAt, event.CurrentPeriodEnd)
		if err := r.accounts.Update(ctx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
	}
	return r.grant(ctx, event, userID, plan.MonthlyCredits, credit.SourceSubscription,
		"Monthly allowance of "+plan.Name, result)
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, event *billing.BillingEvent, userID string, result *ReconcileResult) error {
	account, err := r.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if event.Plan != "" {
		if err := account.ChangePlan(event.Plan); err != nil {
			return err
		}
	}
	account.AttachSubscription(event.CustomerID, event.SubscriptionID)
	account.UpdateSubscriptionState(event.CancelAtPeriodEnd, event.TrialEndsAt, event.CurrentPeriodEnd)
	if err := r.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	result.Message = "plan " + account.Plan.String()
	return nil
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, userID string, result *ReconcileResult) error {
	account, err := r.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	account.Downgrade()
	if err := r.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	result.Message = "downgraded to free"
	return nil
}

func (r *Reconciler) handleRefund(ctx context.Context, event *billing.BillingEvent, userID string, result *ReconcileResult) error {
	credits := event.Credits
	if credits == 0 {
		credits = billing.RefundCredits(event.AmountCents, r.config.RefundCreditsPerUnit)
	}
	if credits == 0 {
		result.Outcome = OutcomeIgnored
		result.Message = "refund converts to zero credits"
		return nil
	}

	refund, err := r.ledger.Refund(ctx, creditapp.RefundRequest{
		UserID:         userID,
		Credits:        credits,
		IdempotencyKey: event.IdempotencyKey(),
		Description:    fmt.Sprintf("Refund %d %s", event.AmountCents, event.Currency),
	})
	if err != nil {
		return fmt.Errorf("refund credits: %w", err)
	}
	result.Credits = -refund.Applied
	result.Shortfall = refund.Shortfall
	if refund.Duplicate {
		result.Message = "refund already applied"
	}
	return nil
}

func (r *Reconciler) grant(ctx context.Context, event *billing.BillingEvent, userID string, amount int64, source credit.Source, description string, result *ReconcileResult) error {
	granted, err := r.ledger.Credit(ctx, creditapp.CreditRequest{
		UserID:         userID,
		Amount:         amount,
		Source:         source,
		IdempotencyKey: event.IdempotencyKey(),
		Description:    description,
	})
	if err != nil {
		return fmt.Errorf("grant credits: %w", err)
	}
	if granted.Applied {
		result.Credits = amount
	} else {
		result.Message = "credits already granted"
	}
	return nil
}

// finish persists the audit row and remembers the key in the fast-path store
func (r *Reconciler) finish(ctx context.Context, event *billing.BillingEvent, record *billing.ProcessedEvent) error {
	if err := r.events.Save(ctx, record); err != nil {
		return fmt.Errorf("record billing event: %w", err)
	}
	if r.idempotency != nil {
		if _, err := r.idempotency.MarkProcessed(ctx, event.IdempotencyKey(), r.config.IdempotencyTTL); err != nil {
			r.logger.Warn("Failed to mark billing event processed", zap.Error(err))
		}
	}
	r.metrics.RecordBillingEvent(ctx, event.Provider, string(event.Kind), string(record.Status))
	return nil
}

// fail records the failure and returns err so the provider redelivers
func (r *Reconciler) fail(ctx context.Context, event *billing.BillingEvent, record *billing.ProcessedEvent, err error) error {
	record.Fail(err)
	if saveErr := r.events.Save(ctx, record); saveErr != nil {
		r.logger.Error("Failed to record failed billing event", zap.Error(saveErr))
	}
	r.metrics.RecordBillingEvent(ctx, event.Provider, string(event.Kind), OutcomeFailed)
	r.logger.Error("Billing event failed",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.Error(err))
	return err
}
