package credit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// GrantBetaQuota creates or replaces a user's beta allowance. Usage counters are kept.
func (s *LedgerService) GrantBetaQuota(ctx context.Context, req GrantBetaQuotaRequest) (*BetaQuotaResponse, error) {
	quota, err := credit.NewBetaQuota(req.UserID, req.TotalQuota, req.KlingLimit, req.GrantedBy)
	if err != nil {
		return nil, err
	}
	quota.Note = req.Note
	if !req.IsActive {
		quota.Deactivate()
	}
	if err := s.betaQuotas.Upsert(ctx, quota); err != nil {
		return nil, fmt.Errorf("save beta quota: %w", err)
	}

	s.logger.Info("Beta quota granted",
		zap.String("user_id", req.UserID),
		zap.Int64("total_quota", req.TotalQuota),
		zap.Int64("kling_limit", req.KlingLimit),
		zap.Bool("active", req.IsActive),
		zap.String("granted_by", req.GrantedBy))
	return s.GetBetaQuota(ctx, req.UserID)
}

// AddBetaBonus raises a user's beta allowance by amount
func (s *LedgerService) AddBetaBonus(ctx context.Context, userID string, amount int64) (*BetaQuotaResponse, error) {
	if amount <= 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Bonus must be positive")
	}
	quota, err := s.betaQuotas.AddBonus(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	resp := ToBetaQuotaResponse(quota)
	return &resp, nil
}

// GetBetaQuota returns a user's beta allowance
func (s *LedgerService) GetBetaQuota(ctx context.Context, userID string) (*BetaQuotaResponse, error) {
	quota, err := s.betaQuotas.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := ToBetaQuotaResponse(quota)
	return &resp, nil
}

// ListShortfalls returns refund shortfalls, optionally filtered by status
func (s *LedgerService) ListShortfalls(ctx context.Context, status string, filter shared.Filter) (shared.Paginated[ShortfallResponse], error) {
	st := credit.ShortfallStatus(status)
	if status != "" && !st.IsValid() {
		return shared.Paginated[ShortfallResponse]{}, shared.NewDomainError("INVALID_STATUS", "Unknown shortfall status: "+status)
	}
	filter = filter.Normalize()
	rows, total, err := s.shortfalls.List(ctx, st, filter)
	if err != nil {
		return shared.Paginated[ShortfallResponse]{}, err
	}
	items := make([]ShortfallResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToShortfallResponse(row))
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// ResolveShortfall closes a pending shortfall as resolved or waived
func (s *LedgerService) ResolveShortfall(ctx context.Context, id uuid.UUID, status, resolvedBy, note string) (*ShortfallResponse, error) {
	shortfall, err := s.shortfalls.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := shortfall.Resolve(credit.ShortfallStatus(status), resolvedBy, note); err != nil {
		return nil, err
	}
	if err := s.shortfalls.Update(ctx, shortfall); err != nil {
		return nil, err
	}

	s.logger.Info("Refund shortfall closed",
		zap.String("shortfall_id", id.String()),
		zap.String("status", status),
		zap.String("resolved_by", resolvedBy))
	resp := ToShortfallResponse(shortfall)
	return &resp, nil
}
