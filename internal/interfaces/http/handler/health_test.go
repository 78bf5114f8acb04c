package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mvstudio/backend/internal/domain/billing"
	"github.com/mvstudio/backend/internal/interfaces/http/handler"
	"github.com/mvstudio/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	up := handler.NewHealthHandler(pingFunc(func(context.Context) error { return nil }), "1.2.3")
	down := handler.NewHealthHandler(pingFunc(func(context.Context) error { return errors.New("refused") }), "1.2.3")

	engine := gin.New()
	engine.GET("/up", up.Health)
	engine.GET("/down", down.Health)

	w := testutil.PerformJSON(t, engine, http.MethodGet, "/up", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := testutil.DecodeData[handler.HealthResponse](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)

	w = testutil.PerformJSON(t, engine, http.MethodGet, "/down", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unreachable")
}

func TestCatalogHandler(t *testing.T) {
	catalog := handler.NewCatalogHandler()
	engine := gin.New()
	engine.GET("/catalog/plans", catalog.ListPlans)
	engine.GET("/catalog/costs", catalog.ListCosts)
	engine.GET("/catalog/packs", catalog.ListPacks)

	w := testutil.PerformJSON(t, engine, http.MethodGet, "/catalog/plans", nil, nil)
	plans := testutil.DecodeData[[]handler.PlanResponse](t, w)
	require.Len(t, plans, len(billing.Plans()))
	assert.Equal(t, "0.00", plans[0].MonthlyPrice)
	assert.Equal(t, int64(1), plans[0].FeatureLimits["storyboard"])

	w = testutil.PerformJSON(t, engine, http.MethodGet, "/catalog/costs", nil, nil)
	costs := testutil.DecodeData[[]handler.ActionCostResponse](t, w)
	require.Len(t, costs, len(billing.Costs()))
	for i := 1; i < len(costs); i++ {
		assert.Less(t, costs[i-1].Action, costs[i].Action)
	}

	w = testutil.PerformJSON(t, engine, http.MethodGet, "/catalog/packs", nil, nil)
	packs := testutil.DecodeData[[]handler.CreditPackResponse](t, w)
	assert.Len(t, packs, len(billing.CreditPacks()))
}
