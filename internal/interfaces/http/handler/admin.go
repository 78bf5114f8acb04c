package handler

import (
	"github.com/gin-gonic/gin"
	creditapp "github.com/mvstudio/backend/internal/application/credit"
	"github.com/mvstudio/backend/internal/domain/credit"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/logger"
	"github.com/mvstudio/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// AdminHandler serves the back-office credit operations
type AdminHandler struct {
	BaseHandler
	ledger     *creditapp.LedgerService
	statements *creditapp.StatementExporter
}

// AdminOption configures AdminHandler
type AdminOption func(*AdminHandler)

// WithStatementExporter enables statement exports
func WithStatementExporter(e *creditapp.StatementExporter) AdminOption {
	return func(h *AdminHandler) {
		h.statements = e
	}
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(ledger *creditapp.LedgerService, opts ...AdminOption) *AdminHandler {
	h := &AdminHandler{ledger: ledger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ExportsStatements reports whether a statement exporter is configured
func (h *AdminHandler) ExportsStatements() bool {
	return h.statements != nil
}

// GrantCredits handles POST /admin/credits/grant
func (h *AdminHandler) GrantCredits(c *gin.Context) {
	var req dto.GrantCreditsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	source := credit.SourceBonus
	if req.Source != "" {
		source = credit.Source(req.Source)
	}
	adminID, _ := caller(c)
	description := req.Description
	if description == "" {
		description = "Granted by " + adminID
	}

	result, err := h.ledger.Credit(c.Request.Context(), creditapp.CreditRequest{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Source:         source,
		IdempotencyKey: req.IdempotencyKey,
		Description:    description,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logger.GetGinLogger(c).Info("Credits granted",
		zap.String("user_id", req.UserID),
		zap.String("admin_id", adminID),
		zap.Int64("amount", req.Amount),
		zap.Bool("applied", result.Applied))
	h.Success(c, result)
}

// ListTransactions handles GET /admin/credits/:userId/transactions
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	filter, ok := h.listFilter(c)
	if !ok {
		return
	}
	page, err := h.ledger.ListTransactions(c.Request.Context(), c.Param("userId"), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// VerifyLedger handles GET /admin/credits/:userId/verify. A mismatch is
// reported in the body with consistent false rather than as a failure.
func (h *AdminHandler) VerifyLedger(c *gin.Context) {
	report, err := h.ledger.VerifyLedger(c.Request.Context(), c.Param("userId"))
	if err != nil && !(shared.IsIntegrityError(err) && report != nil) {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ExportStatement handles POST /admin/credits/:userId/statement. The CSV is
// stored in object storage and the response carries a signed link to it.
func (h *AdminHandler) ExportStatement(c *gin.Context) {
	if h.statements == nil {
		h.HandleError(c, shared.ErrNotFound)
		return
	}
	export, err := h.statements.Export(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	adminID, _ := caller(c)
	logger.GetGinLogger(c).Info("Statement exported",
		zap.String("user_id", export.UserID),
		zap.String("admin_id", adminID),
		zap.Int("rows", export.Rows))
	h.Created(c, export)
}

// GetBetaQuota handles GET /admin/beta-quotas/:userId
func (h *AdminHandler) GetBetaQuota(c *gin.Context) {
	quota, err := h.ledger.GetBetaQuota(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quota)
}

// GrantBetaQuota handles PUT /admin/beta-quotas/:userId
func (h *AdminHandler) GrantBetaQuota(c *gin.Context) {
	var req dto.BetaQuotaRequest
	if !h.bindJSON(c, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	adminID, _ := caller(c)
	quota, err := h.ledger.GrantBetaQuota(c.Request.Context(), creditapp.GrantBetaQuotaRequest{
		UserID:     c.Param("userId"),
		TotalQuota: req.TotalQuota,
		KlingLimit: req.KlingLimit,
		IsActive:   active,
		GrantedBy:  adminID,
		Note:       req.Note,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quota)
}

// AddBetaBonus handles POST /admin/beta-quotas/:userId/bonus
func (h *AdminHandler) AddBetaBonus(c *gin.Context) {
	var req dto.AmountRequest
	if !h.bindJSON(c, &req) {
		return
	}
	quota, err := h.ledger.AddBetaBonus(c.Request.Context(), c.Param("userId"), req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, quota)
}

// ListShortfalls handles GET /admin/refund-shortfalls?status=
func (h *AdminHandler) ListShortfalls(c *gin.Context) {
	filter, ok := h.listFilter(c)
	if !ok {
		return
	}
	page, err := h.ledger.ListShortfalls(c.Request.Context(), c.Query("status"), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// ResolveShortfall handles PUT /admin/refund-shortfalls/:id/resolve
func (h *AdminHandler) ResolveShortfall(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.ResolveShortfallRequest
	if !h.bindJSON(c, &req) {
		return
	}
	adminID, _ := caller(c)
	shortfall, err := h.ledger.ResolveShortfall(c.Request.Context(), id, req.Status, adminID, req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, shortfall)
}
