package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when NewLedgerMetrics is given no meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// LedgerMetrics records credit ledger business metrics.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	deductions       *Counter
	creditsSpent     *Counter
	creditsGranted   *Counter
	insufficient     *Counter
	adminBypasses    *Counter
	quotaDecisions   *Counter
	refundShortfalls *Counter
	shortfallCredits *Counter
	webhookEvents    *Counter
	deductDuration   *Histogram
	logger           *zap.Logger
}

// NewLedgerMetrics creates the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter, logger *zap.Logger) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LedgerMetrics{logger: logger}
	counters := []struct {
		dst                     **Counter
		name, description, unit string
	}{
		{&lm.deductions, "ledger.deductions.total", "Successful credit deductions", "{deduction}"},
		{&lm.creditsSpent, "ledger.credits.spent", "Credits spent by bucket", "{credit}"},
		{&lm.creditsGranted, "ledger.credits.granted", "Credits granted by source", "{credit}"},
		{&lm.insufficient, "ledger.deductions.insufficient", "Deductions rejected for insufficient credits", "{deduction}"},
		{&lm.adminBypasses, "ledger.admin_bypass.total", "Actions charged to staff accounts without cost", "{action}"},
		{&lm.quotaDecisions, "ledger.quota.decisions", "Usage quota checks by outcome", "{check}"},
		{&lm.refundShortfalls, "ledger.refund_shortfalls.total", "Refunds that exceeded the available balance", "{refund}"},
		{&lm.shortfallCredits, "ledger.refund_shortfalls.credits", "Credits a refund could not claw back", "{credit}"},
		{&lm.webhookEvents, "ledger.billing_events.total", "Billing events processed by type and outcome", "{event}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.description, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	h, err := NewHistogram(meter, HistogramOpts{
		Name:        "ledger.deduct.duration",
		Description: "Time taken to deduct credits",
		Unit:        "s",
		Boundaries:  SmallDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	lm.deductDuration = h
	return lm, nil
}

// RecordDeduction records a successful deduction from bucket.
func (lm *LedgerMetrics) RecordDeduction(ctx context.Context, action, bucket string, amount int64, elapsed time.Duration) {
	if lm == nil {
		return
	}
	lm.deductions.Inc(ctx, AttrAction.String(action), AttrBucket.String(bucket))
	lm.creditsSpent.Add(ctx, amount, AttrBucket.String(bucket))
	lm.deductDuration.RecordDuration(ctx, elapsed, AttrBucket.String(bucket))
}

// RecordInsufficient records a rejected deduction.
func (lm *LedgerMetrics) RecordInsufficient(ctx context.Context, action string) {
	if lm == nil {
		return
	}
	lm.insufficient.Inc(ctx, AttrAction.String(action))
}

// RecordAdminBypass records an action charged to a staff account.
func (lm *LedgerMetrics) RecordAdminBypass(ctx context.Context, action string) {
	if lm == nil {
		return
	}
	lm.adminBypasses.Inc(ctx, AttrAction.String(action))
}

// RecordGrant records credits added by source.
func (lm *LedgerMetrics) RecordGrant(ctx context.Context, source string, amount int64) {
	if lm == nil {
		return
	}
	lm.creditsGranted.Add(ctx, amount, AttrSource.String(source))
}

// RecordQuotaDecision records a usage quota check outcome.
func (lm *LedgerMetrics) RecordQuotaDecision(ctx context.Context, feature string, allowed bool) {
	if lm == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "exhausted"
	}
	lm.quotaDecisions.Inc(ctx, AttrFeature.String(feature), AttrOutcome.String(outcome))
}

// RecordRefundShortfall records a refund that could not be fully clawed back.
func (lm *LedgerMetrics) RecordRefundShortfall(ctx context.Context, shortfall int64) {
	if lm == nil {
		return
	}
	lm.refundShortfalls.Inc(ctx)
	lm.shortfallCredits.Add(ctx, shortfall)
}

// RecordBillingEvent records a billing event outcome.
func (lm *LedgerMetrics) RecordBillingEvent(ctx context.Context, provider, eventType, outcome string) {
	if lm == nil {
		return
	}
	lm.webhookEvents.Inc(ctx,
		AttrProvider.String(provider),
		AttrEvent.String(eventType),
		AttrOutcome.String(outcome))
}
