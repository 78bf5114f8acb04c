package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	teamapp "github.com/mvstudio/backend/internal/application/team"
	"github.com/mvstudio/backend/internal/interfaces/http/dto"
)

// TeamHandler serves team pools and member allocations
type TeamHandler struct {
	BaseHandler
	teams *teamapp.TeamService
}

// NewTeamHandler creates a new TeamHandler
func NewTeamHandler(teams *teamapp.TeamService) *TeamHandler {
	return &TeamHandler{teams: teams}
}

// Create handles POST /teams
func (h *TeamHandler) Create(c *gin.Context) {
	var req dto.CreateTeamRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, role := caller(c)
	team, err := h.teams.CreateTeam(c.Request.Context(), userID, role, req.Name)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, team)
}

// Join handles POST /teams/join
func (h *TeamHandler) Join(c *gin.Context) {
	var req dto.JoinTeamRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, _ := caller(c)
	member, err := h.teams.JoinTeam(c.Request.Context(), userID, req.InviteCode)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, member)
}

// GetCredits handles GET /teams/:id/credits
func (h *TeamHandler) GetCredits(c *gin.Context) {
	teamID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	userID, _ := caller(c)
	credits, err := h.teams.GetTeamCredits(c.Request.Context(), teamID, userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, credits)
}

// Fund handles POST /teams/:id/fund
func (h *TeamHandler) Fund(c *gin.Context) {
	teamID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.AmountRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, _ := caller(c)
	team, err := h.teams.FundPool(c.Request.Context(), teamID, userID, req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, team)
}

// Allocate handles POST /teams/:id/members/:memberId/allocate
func (h *TeamHandler) Allocate(c *gin.Context) {
	h.moveCredits(c, h.teams.Allocate)
}

// Reclaim handles POST /teams/:id/members/:memberId/reclaim
func (h *TeamHandler) Reclaim(c *gin.Context) {
	h.moveCredits(c, h.teams.Reclaim)
}

// RemoveMember handles DELETE /teams/:id/members/:memberId
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	teamID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	memberID, ok := h.uuidParam(c, "memberId")
	if !ok {
		return
	}
	userID, _ := caller(c)
	if err := h.teams.RemoveMember(c.Request.Context(), teamID, memberID, userID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

type allocationFunc func(ctx context.Context, teamID, memberID uuid.UUID, amount int64, actorID string) (*teamapp.AllocationResult, error)

func (h *TeamHandler) moveCredits(c *gin.Context, move allocationFunc) {
	teamID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	memberID, ok := h.uuidParam(c, "memberId")
	if !ok {
		return
	}
	var req dto.AmountRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, _ := caller(c)
	result, err := move(c.Request.Context(), teamID, memberID, req.Amount, userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
