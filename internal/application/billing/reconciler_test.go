package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	billingapp "github.com/mvstudio/backend/internal/application/billing"
	creditapp "github.com/mvstudio/backend/internal/application/credit"
	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/cache"
	"github.com/mvstudio/backend/internal/infrastructure/persistence"
	"github.com/mvstudio/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Credit(ctx context.Context, req creditapp.CreditRequest) (*creditapp.CreditResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*creditapp.CreditResult), args.Error(1)
}

func (m *mockLedger) Refund(ctx context.Context, req creditapp.RefundRequest) (*creditapp.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*creditapp.RefundResult), args.Error(1)
}

type reconcilerFixture struct {
	reconciler *billingapp.Reconciler
	ledger     *mockLedger
	accounts   *persistence.GormAccountRepository
	events     *persistence.GormBillingEventRepository
	store      *cache.InMemoryIdempotencyStore
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t, persistence.Models()...)
	f := &reconcilerFixture{
		ledger:   new(mockLedger),
		accounts: persistence.NewGormAccountRepository(db),
		events:   persistence.NewGormBillingEventRepository(db),
		store:    cache.NewInMemoryIdempotencyStore(),
	}
	t.Cleanup(func() { _ = f.store.Close() })
	f.reconciler = billingapp.NewReconciler(billingapp.ReconcilerDeps{
		Ledger:      f.ledger,
		Accounts:    f.accounts,
		Events:      f.events,
		Idempotency: f.store,
		Config: billingapp.ReconcilerConfig{
			RefundCreditsPerUnit: decimal.RequireFromString("5.8"),
			IdempotencyTTL:       time.Hour,
		},
	})
	return f
}

func (f *reconcilerFixture) attachCustomer(t *testing.T, userID, customerID string, plan billing.PlanTier) {
	t.Helper()
	ctx := context.Background()
	account, err := f.accounts.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, account.ChangePlan(plan))
	account.AttachSubscription(customerID, "sub_"+userID)
	require.NoError(t, f.accounts.Update(ctx, account))
}

func creditCall(userID string, amount int64, source credit.Source, key string) any {
	return mock.MatchedBy(func(req creditapp.CreditRequest) bool {
		return req.UserID == userID && req.Amount == amount && req.Source == source && req.IdempotencyKey == key
	})
}

func TestReconciler_PackCheckout(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	f.ledger.On("Credit", mock.Anything, creditCall("u1", 100, credit.SourcePurchase, "stripe:evt_pack")).
		Return(&creditapp.CreditResult{BalanceAfter: 100, Applied: true}, nil).Once()

	event := &billing.BillingEvent{
		ID:       "evt_pack",
		Provider: "stripe",
		Kind:     billing.EventCheckoutCompleted,
		UserID:   "u1",
		PackID:   "medium",
	}
	result, err := f.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, billingapp.OutcomeProcessed, result.Outcome)
	assert.Equal(t, int64(100), result.Credits)

	recorded, err := f.events.FindByProviderEventID(ctx, "stripe", "evt_pack")
	require.NoError(t, err)
	assert.Equal(t, billing.ProcessedEventApplied, recorded.Status)
	assert.Equal(t, "u1", recorded.UserID)

	t.Run("redelivery is a duplicate", func(t *testing.T) {
		again, err := f.reconciler.HandleEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, billingapp.OutcomeDuplicate, again.Outcome)
	})

	t.Run("durable log catches duplicates the fast path forgot", func(t *testing.T) {
		require.NoError(t, f.store.Forget(ctx, event.IdempotencyKey()))
		again, err := f.reconciler.HandleEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, billingapp.OutcomeDuplicate, again.Outcome)
	})

	f.ledger.AssertExpectations(t)
}

func TestReconciler_PackCheckout_UnknownPack(t *testing.T) {
	f := newReconcilerFixture(t)

	_, err := f.reconciler.HandleEvent(context.Background(), &billing.BillingEvent{
		ID: "evt_bad", Provider: "stripe", Kind: billing.EventCheckoutCompleted, UserID: "u1", PackID: "jumbo",
	})
	require.Error(t, err)

	recorded, err := f.events.FindByProviderEventID(context.Background(), "stripe", "evt_bad")
	require.NoError(t, err)
	assert.Equal(t, billing.ProcessedEventFailed, recorded.Status)
	f.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestReconciler_SubscriptionCheckout(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	f.ledger.On("Credit", mock.Anything, creditCall("u1", 200, credit.SourceSubscription, "stripe:evt_sub")).
		Return(&creditapp.CreditResult{BalanceAfter: 200, Applied: true}, nil).Once()

	result, err := f.reconciler.HandleEvent(ctx, &billing.BillingEvent{
		ID:             "evt_sub",
		Provider:       "stripe",
		Kind:           billing.EventCheckoutCompleted,
		UserID:         "u1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Plan:           billing.PlanPro,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), result.Credits)

	account, err := f.accounts.FindByStripeCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, billing.PlanPro, account.Plan)
	require.NotNil(t, account.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *account.StripeSubscriptionID)
	f.ledger.AssertExpectations(t)
}

func TestReconciler_InvoicePaid(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.attachCustomer(t, "u1", "cus_1", billing.PlanEnterprise)

	t.Run("renewal grants the monthly allowance", func(t *testing.T) {
		f.ledger.On("Credit", mock.Anything, creditCall("u1", 800, credit.SourceSubscription, "stripe:evt_inv1")).
			Return(&creditapp.CreditResult{BalanceAfter: 800, Applied: true}, nil).Once()

		periodEnd := time.Now().AddDate(0, 1, 0).UTC().Truncate(time.Second)
		result, err := f.reconciler.HandleEvent(ctx, &billing.BillingEvent{
			ID:               "evt_inv1",
			Provider:         "stripe",
			Kind:             billing.EventInvoicePaid,
			CustomerID:       "cus_1",
			BillingReason:    billing.BillingReasonSubscriptionCycle,
			CurrentPeriodEnd: &periodEnd,
		})
		require.NoError(t, err)
		assert.Equal(t, "u1", result.UserID)
		assert.Equal(t, int64(800), result.Credits)

		account, err := f.accounts.FindByUserID(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, account.CurrentPeriodEnd)
		assert.True(t, periodEnd.Equal(account.CurrentPeriodEnd.UTC()))
	})

	t.Run("first invoice is ignored", func(t *testing.T) {
		result, err := f.reconciler.HandleEvent(ctx, &billing.BillingEvent{
			ID:            "evt_inv2",
			Provider:      "stripe",
			Kind:          billing.EventInvoicePaid,
			CustomerID:    "cus_1",
			BillingReason: "subscription_create",
		})
		require.NoError(t, err)
		assert.Equal(t, billingapp.OutcomeIgnored, result.Outcome)

		recorded, err := f.events.FindByProviderEventID(ctx, "stripe", "evt_inv2")
		require.NoError(t, err)
		assert.Equal(t, billing.ProcessedEventIgnored, recorded.Status)
	})

	t.Run("already granted key reports no credits", func(t *testing.T) {
		f.ledger.On("Credit", mock.Anything, creditCall("u1", 800, credit.SourceSubscription, "stripe:evt_inv3")).
			Return(&creditapp.CreditResult{BalanceAfter: 800, Applied: false}, nil).Once()

		result, err := f.reconciler.HandleEvent(ctx, &billing.BillingEvent{
			ID: "evt_inv3", Provider: "stripe", Kind: billing.EventInvoicePaid,
			CustomerID: "cus_1", BillingReason: billing.BillingReasonSubscriptionCycle,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.Credits)
		assert.Equal(t, "credits already granted", result.Message)
	})

	f.ledger.AssertExpectations(t)
}

func TestReconciler_InvoicePaid_FreeAccountIgnored(t *testing.T) {
	f := newReconcilerFixture(t)
	f.attachCustomer(t, "u1", "cus_1", billing.PlanFree)

	result, err := f.reconciler.HandleEvent(context.Background(), &billing.BillingEvent{
		ID: "evt_inv", Provider: "stripe", Kind: billing.EventInvoicePaid,
		CustomerID: "cus_1", BillingReason: billing.BillingReasonSubscriptionCycle,
	})
	require.NoError(t, err)
	assert.Equal(t, billingapp.OutcomeIgnored, result.Outcome)
	f.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestReconciler_SubscriptionLifecycle(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.attachCustomer(t, "u1", "cus_1", billing.PlanPro)

	result, err := f.reconciler.HandleEvent(ctx, &billing.BillingEvent{
		ID:                "evt_upd",
		Provider:          "stripe",
		Kind:              billing.EventSubscriptionUpdated,
		CustomerID:        "cus_1",
		SubscriptionID:    "sub_u1",
		Plan:              billing.PlanEnterprise,
		CancelAtPeriodEnd: true,
	})
	require.NoError(t, err)
	assert.Equal(t, billingapp.OutcomeProcessed, result.Outcome)
	assert.Equal(t, int64(0), result.Credits)

	account, err := f.accounts.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, billing.PlanEnterprise, account.Plan)
	assert.True(t, account.CancelAtPeriodEnd)

	_, err = f.reconciler.HandleEvent(ctx, &billing.BillingEvent{
		ID: "evt_del", Provider: "stripe", Kind: billing.EventSubscriptionDeleted, CustomerID: "cus_1",
	})
	require.NoError(t, err)

	account, err = f.accounts.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, billing.PlanFree, account.Plan)
	assert.Nil(t, account.StripeSubscriptionID)
	f.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestReconciler_Refund(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	// 10.00 refunded at 5.8 credits per unit claws back 58 credits
	f.ledger.On("Refund", mock.Anything, mock.MatchedBy(func(req creditapp.RefundRequest) bool {
		return req.UserID == "u1" && req.Credits == 58 && req.IdempotencyKey == "stripe:evt_ref"
	})).Return(&creditapp.RefundResult{Requested: 58, Applied: 20, Shortfall: 38}, nil).Once()

	result, err := f.reconciler.HandleEvent(ctx, &billing.BillingEvent{
		ID:          "evt_ref",
		Provider:    "stripe",
		Kind:        billing.EventRefund,
		UserID:      "u1",
		AmountCents: 1000,
		Currency:    "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-20), result.Credits)
	assert.Equal(t, int64(38), result.Shortfall)
	f.ledger.AssertExpectations(t)
}

func TestReconciler_UnknownCustomerIgnored(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	result, err := f.reconciler.HandleEvent(ctx, &billing.BillingEvent{
		ID: "evt_ghost", Provider: "stripe", Kind: billing.EventInvoicePaid,
		CustomerID: "cus_ghost", BillingReason: billing.BillingReasonSubscriptionCycle,
	})
	require.NoError(t, err)
	assert.Equal(t, billingapp.OutcomeIgnored, result.Outcome)

	recorded, err := f.events.FindByProviderEventID(ctx, "stripe", "evt_ghost")
	require.NoError(t, err)
	assert.Equal(t, billing.ProcessedEventIgnored, recorded.Status)
	assert.Equal(t, "unknown customer", recorded.Message)
}

func TestReconciler_FailedEventIsRetried(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	event := &billing.BillingEvent{
		ID: "evt_retry", Provider: "stripe", Kind: billing.EventCheckoutCompleted, UserID: "u1", PackID: "small",
	}

	f.ledger.On("Credit", mock.Anything, creditCall("u1", 50, credit.SourcePurchase, "stripe:evt_retry")).
		Return(nil, errors.New("database is down")).Once()

	_, err := f.reconciler.HandleEvent(ctx, event)
	require.Error(t, err)
	processed, err := f.store.IsProcessed(ctx, event.IdempotencyKey())
	require.NoError(t, err)
	assert.False(t, processed)

	f.ledger.On("Credit", mock.Anything, creditCall("u1", 50, credit.SourcePurchase, "stripe:evt_retry")).
		Return(&creditapp.CreditResult{BalanceAfter: 50, Applied: true}, nil).Once()

	result, err := f.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, billingapp.OutcomeProcessed, result.Outcome)

	recorded, err := f.events.FindByProviderEventID(ctx, "stripe", "evt_retry")
	require.NoError(t, err)
	assert.Equal(t, billing.ProcessedEventApplied, recorded.Status)
	f.ledger.AssertExpectations(t)
}

func TestReconciler_InvalidEvent(t *testing.T) {
	f := newReconcilerFixture(t)

	_, err := f.reconciler.HandleEvent(context.Background(), &billing.BillingEvent{
		ID: "evt_x", Provider: "stripe", Kind: billing.EventRefund,
	})
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_EVENT", domainErr.Code)
}
