// Package router assembles the HTTP surface of the credits service.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mvstudio/backend/internal/infrastructure/auth"
	"github.com/mvstudio/backend/internal/infrastructure/config"
	"github.com/mvstudio/backend/internal/infrastructure/logger"
	"github.com/mvstudio/backend/internal/interfaces/http/handler"
	"github.com/mvstudio/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one resource behind a shared prefix
// and middleware chain
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

// PUT registers a PUT route
func (dg *DomainGroup) PUT(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPut, path, handlers)
}

// DELETE registers a DELETE route
func (dg *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodDelete, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Handlers bundles the endpoint handlers mounted by Build
type Handlers struct {
	Health  *handler.HealthHandler
	Catalog *handler.CatalogHandler
	Credit  *handler.CreditHandler
	Quota   *handler.QuotaHandler
	Team    *handler.TeamHandler
	Admin   *handler.AdminHandler
	Webhook *handler.StripeWebhookHandler
}

// Deps contains everything Build needs
type Deps struct {
	HTTP             config.HTTPConfig
	ServiceName      string
	TracingEnabled   bool
	ProfilingEnabled bool
	Logger           *zap.Logger
	// Meter enables HTTP metrics when set
	Meter    metric.Meter
	JWT      *auth.JWTService
	Handlers Handlers
}

// Build creates the gin engine with the global middleware chain and every
// route. The returned stop function releases the rate limiters.
func Build(deps Deps) (*gin.Engine, func()) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(deps.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(deps.HTTP.TrustedProxies); err != nil {
			log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
			_ = engine.SetTrustedProxies(nil)
		}
	}

	// RequestID must run before the logger middleware reads it
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(deps.ServiceName, deps.TracingEnabled),
		middleware.SpanEnricher(),
		middleware.ProfilingLabels(deps.ProfilingEnabled),
	)
	if deps.Meter != nil {
		engine.Use(middleware.HTTPMetrics(deps.Meter))
	}
	engine.Use(middleware.CORS(corsConfig(deps.HTTP)), middleware.Secure())
	if deps.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(deps.HTTP.MaxBodySize))
	}

	h := deps.Handlers
	protected := []gin.HandlerFunc{middleware.JWTAuth(middleware.JWTMiddlewareConfig{
		JWTService: deps.JWT,
		Logger:     log,
	})}
	webhookChain := []gin.HandlerFunc{}
	var limiters []*middleware.RateLimiter
	if deps.HTTP.RateLimitEnabled {
		api := middleware.NewRateLimiter(deps.HTTP.RateLimitRequests, deps.HTTP.RateLimitWindow)
		hooks := middleware.NewRateLimiter(deps.HTTP.WebhookRateLimit, deps.HTTP.WebhookRateWindow)
		limiters = append(limiters, api, hooks)
		protected = append(protected, middleware.RateLimit(api, middleware.KeyByCaller))
		webhookChain = append(webhookChain, middleware.RateLimit(hooks, middleware.KeyByIP))
	}

	r := NewRouter(engine)

	public := NewDomainGroup("public", "")
	if h.Health != nil {
		public.GET("/health", h.Health.Health)
	}
	if h.Catalog != nil {
		public.GET("/catalog/plans", h.Catalog.ListPlans).
			GET("/catalog/costs", h.Catalog.ListCosts).
			GET("/catalog/packs", h.Catalog.ListPacks)
	}
	r.Register(public)

	if h.Webhook != nil {
		r.Register(NewDomainGroup("webhooks", "/webhooks").
			Use(webhookChain...).
			POST("/stripe", h.Webhook.HandleStripeWebhook))
	}
	if h.Credit != nil {
		r.Register(NewDomainGroup("credits", "/credits").
			Use(protected...).
			GET("", h.Credit.GetAvailable).
			GET("/balance", h.Credit.GetBalance).
			GET("/transactions", h.Credit.ListTransactions).
			POST("/deduct", h.Credit.Deduct).
			POST("/deduct-batch", h.Credit.DeductBatch))
	}
	if h.Quota != nil {
		r.Register(NewDomainGroup("quota", "/quota").
			Use(protected...).
			GET("", h.Quota.ListUsage).
			GET("/:feature", h.Quota.GetUsage).
			POST("/:feature/consume", h.Quota.Consume))
	}
	if h.Team != nil {
		r.Register(NewDomainGroup("teams", "/teams").
			Use(protected...).
			POST("", h.Team.Create).
			POST("/join", h.Team.Join).
			GET("/:id/credits", h.Team.GetCredits).
			POST("/:id/fund", h.Team.Fund).
			POST("/:id/members/:memberId/allocate", h.Team.Allocate).
			POST("/:id/members/:memberId/reclaim", h.Team.Reclaim).
			DELETE("/:id/members/:memberId", h.Team.RemoveMember))
	}
	if h.Admin != nil {
		admin := NewDomainGroup("admin", "/admin").
			Use(protected...).
			Use(middleware.RequireAdmin()).
			POST("/credits/grant", h.Admin.GrantCredits).
			GET("/credits/:userId/transactions", h.Admin.ListTransactions).
			GET("/credits/:userId/verify", h.Admin.VerifyLedger).
			GET("/beta-quotas/:userId", h.Admin.GetBetaQuota).
			PUT("/beta-quotas/:userId", h.Admin.GrantBetaQuota).
			POST("/beta-quotas/:userId/bonus", h.Admin.AddBetaBonus).
			GET("/refund-shortfalls", h.Admin.ListShortfalls).
			PUT("/refund-shortfalls/:id/resolve", h.Admin.ResolveShortfall)
		if h.Admin.ExportsStatements() {
			admin.POST("/credits/:userId/statement", h.Admin.ExportStatement)
		}
		r.Register(admin)
	}
	r.Setup()

	stop := func() {
		for _, l := range limiters {
			l.Stop()
		}
	}
	return engine, stop
}

func corsConfig(cfg config.HTTPConfig) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.CORSAllowOrigins
	}
	if len(cfg.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.CORSAllowHeaders
	}
	return cors
}
