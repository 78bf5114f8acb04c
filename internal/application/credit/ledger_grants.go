package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// errAlreadyApplied rolls back a unit whose idempotency key lost the insert race
var errAlreadyApplied = errors.New("credit: idempotency key already applied")

// Credit adds credits to a personal balance. With an idempotency key a repeated
// call is a no-op that returns Applied false and the current balance.
func (s *LedgerService) Credit(ctx context.Context, req CreditRequest) (*CreditResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit", "credit",
		telemetry.SpanAttrUserID, req.UserID,
		telemetry.SpanAttrAmount, req.Amount,
		telemetry.SpanAttrSource, req.Source.String(),
		telemetry.SpanAttrIdempotencyKey, req.IdempotencyKey)
	defer span.End()

	if req.UserID == "" {
		return nil, shared.ErrInvalidInput
	}
	// validates amount and source before anything is written
	if _, err := credit.NewCreditTransaction(req.UserID, req.Amount, req.Source, 0, req.IdempotencyKey); err != nil {
		return nil, err
	}

	var result *CreditResult
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if req.IdempotencyKey != "" {
			_, err := repos.TransactionRepo().FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if err == nil {
				return errAlreadyApplied
			}
			if !errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("check idempotency key: %w", err)
			}
		}

		updated, err := repos.BalanceRepo().Credit(ctx, req.UserID, req.Amount)
		if err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		if err := updated.Verify(); err != nil {
			return err
		}

		tx, err := credit.NewCreditTransaction(req.UserID, req.Amount, req.Source, updated.Balance, req.IdempotencyKey)
		if err != nil {
			return err
		}
		tx.WithDescription(req.Description)
		inserted, err := repos.TransactionRepo().Append(ctx, tx)
		if err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		if !inserted {
			return errAlreadyApplied
		}

		result = &CreditResult{BalanceAfter: updated.Balance, Applied: true}
		return nil
	})

	if errors.Is(err, errAlreadyApplied) {
		balance, err := s.balances.GetOrCreate(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load balance: %w", err)
		}
		telemetry.AddEvent(span, "duplicate_grant")
		s.logger.Debug("Duplicate credit grant ignored",
			zap.String("user_id", req.UserID),
			zap.String("idempotency_key", req.IdempotencyKey))
		return &CreditResult{BalanceAfter: balance.Balance, Applied: false}, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, s.logIntegrity(err, "credit", req.UserID)
	}

	s.logger.Info("Credits granted",
		zap.String("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.String("source", req.Source.String()),
		zap.Int64("balance_after", result.BalanceAfter))
	s.metrics.RecordGrant(ctx, req.Source.String(), req.Amount)
	s.publish(ctx, credit.NewCreditsGrantedEvent(req.UserID, req.Amount, req.Source, result.BalanceAfter))
	return result, nil
}

// Refund removes up to req.Credits from the personal balance. The debit is
// capped at the current balance and any remainder is stored as a pending
// RefundShortfall. A lost race against a concurrent spend is retried.
func (s *LedgerService) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "credit", "refund",
		telemetry.SpanAttrUserID, req.UserID,
		telemetry.SpanAttrAmount, req.Credits,
		telemetry.SpanAttrIdempotencyKey, req.IdempotencyKey)
	defer span.End()

	if req.UserID == "" || req.Credits <= 0 {
		return nil, shared.ErrInvalidInput
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = "refund:" + uuid.NewString()
	}

	var (
		result    *RefundResult
		shortfall *credit.RefundShortfall
		err       error
	)
	for attempt := 0; attempt <= s.config.RefundMaxRetries; attempt++ {
		result, shortfall, err = s.refundOnce(ctx, req)
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			break
		}
		s.logger.Debug("Refund raced a concurrent spend, retrying",
			zap.String("user_id", req.UserID),
			zap.Int("attempt", attempt+1))
	}

	if errors.Is(err, errAlreadyApplied) {
		balance, err := s.balances.GetOrCreate(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load balance: %w", err)
		}
		return &RefundResult{Requested: req.Credits, BalanceAfter: balance.Balance, Duplicate: true}, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, s.logIntegrity(err, "refund", req.UserID)
	}

	if shortfall != nil {
		id := shortfall.ID
		result.ShortfallID = &id
		s.logger.Warn("Refund shortfall recorded for manual review",
			zap.String("user_id", req.UserID),
			zap.String("shortfall_id", id.String()),
			zap.Int64("requested", shortfall.Requested),
			zap.Int64("applied", shortfall.Applied),
			zap.Int64("shortfall", shortfall.Shortfall))
		s.metrics.RecordRefundShortfall(ctx, shortfall.Shortfall)
		s.publish(ctx, credit.NewRefundShortfallEvent(shortfall))
	}
	return result, nil
}

func (s *LedgerService) refundOnce(ctx context.Context, req RefundRequest) (*RefundResult, *credit.RefundShortfall, error) {
	var (
		result    *RefundResult
		shortfall *credit.RefundShortfall
	)
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		_, err := repos.TransactionRepo().FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if err == nil {
			return errAlreadyApplied
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		balance, err := repos.BalanceRepo().GetOrCreate(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("load balance: %w", err)
		}
		applied := min(req.Credits, balance.Balance)
		balanceAfter := balance.Balance
		if applied > 0 {
			updated, err := repos.BalanceRepo().Debit(ctx, req.UserID, applied)
			if err != nil {
				return fmt.Errorf("debit balance: %w", err)
			}
			if updated == nil {
				return shared.ErrConcurrencyConflict
			}
			if err := updated.Verify(); err != nil {
				return err
			}
			balanceAfter = updated.Balance
		}

		description := req.Description
		if description == "" {
			description = fmt.Sprintf("Refund of %d credits", req.Credits)
		}
		tx := credit.NewDebitTransaction(req.UserID, applied, credit.SourceRefund, credit.BucketPersonal, "refund", balanceAfter).
			WithDescription(description)
		tx.SetIdempotencyKey(req.IdempotencyKey)
		inserted, err := repos.TransactionRepo().Append(ctx, tx)
		if err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		if !inserted {
			return errAlreadyApplied
		}

		result = &RefundResult{
			Requested:    req.Credits,
			Applied:      applied,
			Shortfall:    req.Credits - applied,
			BalanceAfter: balanceAfter,
		}
		if result.Shortfall > 0 {
			shortfall = credit.NewRefundShortfall(req.UserID, req.IdempotencyKey, req.Credits, applied)
			if err := repos.ShortfallRepo().Create(ctx, shortfall); err != nil {
				return fmt.Errorf("record shortfall: %w", err)
			}
		}
		return nil
	})
	return result, shortfall, err
}
