package handler

import (
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/mvstudio/backend/internal/domain/billing"
)

// CatalogHandler serves the static plan, cost and pack tables clients render
type CatalogHandler struct {
	BaseHandler
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler() *CatalogHandler {
	return &CatalogHandler{}
}

// PlanResponse is one plan in GET /catalog/plans
type PlanResponse struct {
	Tier           string           `json:"tier"`
	Name           string           `json:"name"`
	MonthlyPrice   string           `json:"monthly_price"`
	YearlyPrice    string           `json:"yearly_price"`
	MonthlyCredits int64            `json:"monthly_credits"`
	FeatureLimits  map[string]int64 `json:"feature_limits"`
	Features       []string         `json:"features"`
	TeamSeats      int              `json:"team_seats,omitempty"`
}

// ActionCostResponse is one row in GET /catalog/costs
type ActionCostResponse struct {
	Action  string `json:"action"`
	Credits int64  `json:"credits"`
	Feature string `json:"feature,omitempty"`
}

// CreditPackResponse is one pack in GET /catalog/packs
type CreditPackResponse struct {
	ID      string `json:"id"`
	Credits int64  `json:"credits"`
	Price   string `json:"price"`
}

// ListPlans handles GET /catalog/plans
func (h *CatalogHandler) ListPlans(c *gin.Context) {
	plans := billing.Plans()
	resp := make([]PlanResponse, 0, len(plans))
	for _, p := range plans {
		limits := make(map[string]int64, len(p.FeatureLimits))
		for f, l := range p.FeatureLimits {
			limits[f.String()] = l
		}
		resp = append(resp, PlanResponse{
			Tier:           p.Tier.String(),
			Name:           p.Name,
			MonthlyPrice:   p.MonthlyPrice.StringFixed(2),
			YearlyPrice:    p.YearlyPrice.StringFixed(2),
			MonthlyCredits: p.MonthlyCredits,
			FeatureLimits:  limits,
			Features:       p.Features,
			TeamSeats:      p.TeamSeats,
		})
	}
	h.Success(c, resp)
}

// ListCosts handles GET /catalog/costs
func (h *CatalogHandler) ListCosts(c *gin.Context) {
	costs := billing.Costs()
	resp := make([]ActionCostResponse, 0, len(costs))
	for action, credits := range costs {
		row := ActionCostResponse{Action: action.String(), Credits: credits}
		if f, ok := action.Feature(); ok {
			row.Feature = f.String()
		}
		resp = append(resp, row)
	}
	sort.Slice(resp, func(i, j int) bool { return resp[i].Action < resp[j].Action })
	h.Success(c, resp)
}

// ListPacks handles GET /catalog/packs
func (h *CatalogHandler) ListPacks(c *gin.Context) {
	packs := billing.CreditPacks()
	resp := make([]CreditPackResponse, 0, len(packs))
	for _, p := range packs {
		resp = append(resp, CreditPackResponse{ID: p.ID, Credits: p.Credits, Price: p.Price.StringFixed(2)})
	}
	h.Success(c, resp)
}
