package handler

import (
	"github.com/gin-gonic/gin"
	creditapp "github.com/mvstudio/backend/internal/application/credit"
	"github.com/mvstudio/backend/internal/interfaces/http/dto"
)

// CreditHandler serves the caller's balance, history and charges
type CreditHandler struct {
	BaseHandler
	ledger *creditapp.LedgerService
}

// NewCreditHandler creates a new CreditHandler
func NewCreditHandler(ledger *creditapp.LedgerService) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

// GetAvailable handles GET /credits
func (h *CreditHandler) GetAvailable(c *gin.Context) {
	userID, _ := caller(c)
	available, err := h.ledger.GetAvailableCredits(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, available)
}

// GetBalance handles GET /credits/balance
func (h *CreditHandler) GetBalance(c *gin.Context) {
	userID, _ := caller(c)
	balance, err := h.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}

// ListTransactions handles GET /credits/transactions
func (h *CreditHandler) ListTransactions(c *gin.Context) {
	filter, ok := h.listFilter(c)
	if !ok {
		return
	}
	userID, _ := caller(c)
	page, err := h.ledger.ListTransactions(c.Request.Context(), userID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Deduct handles POST /credits/deduct. A charge the caller cannot pay answers
// 402 (or 429 for an exhausted beta quota) with the result attached.
func (h *CreditHandler) Deduct(c *gin.Context) {
	var req dto.DeductRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, role := caller(c)
	result, err := h.ledger.Deduct(c.Request.Context(), creditapp.DeductRequest{
		UserID:       userID,
		Role:         role,
		Action:       req.Action,
		Description:  req.Description,
		UseBetaQuota: req.UseBetaQuota,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !result.Success {
		h.Rejected(c, result.Outcome, rejectionMessage(result.Outcome), result)
		return
	}
	h.Success(c, result)
}

// DeductBatch handles POST /credits/deduct-batch. A partially paid batch is a
// success with Fallback set; a batch where nothing could be paid answers 402.
func (h *CreditHandler) DeductBatch(c *gin.Context) {
	var req dto.DeductBatchRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, role := caller(c)
	result, err := h.ledger.DeductBatch(c.Request.Context(), creditapp.DeductRequest{
		UserID:      userID,
		Role:        role,
		Action:      req.Action,
		Description: req.Description,
	}, req.Count)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !result.Success {
		h.Rejected(c, dto.ErrCodeInsufficientCredits, rejectionMessage(dto.ErrCodeInsufficientCredits), result)
		return
	}
	h.Success(c, result)
}

func rejectionMessage(outcome string) string {
	switch outcome {
	case creditapp.OutcomeBetaQuotaExceeded:
		return "Beta quota exhausted"
	default:
		return "Not enough credits for this action"
	}
}
