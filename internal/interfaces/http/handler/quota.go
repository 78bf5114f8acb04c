package handler

import (
	"github.com/gin-gonic/gin"
	billingapp "github.com/mvstudio/backend/internal/application/billing"
	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/interfaces/http/dto"
)

// QuotaHandler serves the free-use caps of quota-gated features
type QuotaHandler struct {
	BaseHandler
	quota *billingapp.QuotaService
}

// NewQuotaHandler creates a new QuotaHandler
func NewQuotaHandler(quota *billingapp.QuotaService) *QuotaHandler {
	return &QuotaHandler{quota: quota}
}

// ListUsage handles GET /quota
func (h *QuotaHandler) ListUsage(c *gin.Context) {
	userID, role := caller(c)
	usage, err := h.quota.ListUsage(c.Request.Context(), userID, role)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, usage)
}

// GetUsage handles GET /quota/:feature
func (h *QuotaHandler) GetUsage(c *gin.Context) {
	feature, err := billing.ParseFeatureType(c.Param("feature"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	userID, role := caller(c)
	decision, err := h.quota.GetUsage(c.Request.Context(), userID, role, feature)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, decision)
}

// Consume handles POST /quota/:feature/consume. An exhausted quota answers
// 429 with the decision attached.
func (h *QuotaHandler) Consume(c *gin.Context) {
	feature, err := billing.ParseFeatureType(c.Param("feature"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	userID, role := caller(c)
	decision, err := h.quota.CheckAndConsume(c.Request.Context(), userID, role, feature)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !decision.Allowed {
		h.Rejected(c, dto.ErrCodeQuotaExceeded, "Usage quota exceeded for this billing cycle", decision)
		return
	}
	h.Success(c, decision)
}
