package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	billingapp "github.com/mvstudio/backend/internal/application/billing"
	creditapp "github.com/mvstudio/backend/internal/application/credit"
	teamapp "github.com/mvstudio/backend/internal/application/team"
	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/auth"
	infrabilling "github.com/mvstudio/backend/internal/infrastructure/billing"
	"github.com/mvstudio/backend/internal/infrastructure/cache"
	"github.com/mvstudio/backend/internal/infrastructure/config"
	"github.com/mvstudio/backend/internal/infrastructure/event"
	"github.com/mvstudio/backend/internal/infrastructure/logger"
	"github.com/mvstudio/backend/internal/infrastructure/persistence"
	"github.com/mvstudio/backend/internal/infrastructure/storage"
	"github.com/mvstudio/backend/internal/infrastructure/telemetry"
	"github.com/mvstudio/backend/internal/interfaces/http/handler"
	"github.com/mvstudio/backend/internal/interfaces/http/router"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// OTLP log export is teed into the zap core when enabled
	var logOpts []logger.Option
	var logProvider *telemetry.LoggerProvider
	if cfg.Telemetry.LogsEnabled {
		logProvider, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
			Enabled:           true,
			CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
			ServiceName:       cfg.Telemetry.ServiceName,
			Insecure:          cfg.Telemetry.Insecure,
			Level:             logger.ParseLevel(cfg.Telemetry.LogsLevel),
		})
		if err != nil {
			panic("Failed to initialize log exporter: " + err.Error())
		}
		logOpts = append(logOpts, logger.WithCore(logProvider.Core()))
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.Telemetry.ServiceName,
	}, logOpts...)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		logger.Sync(log)
	}()

	log.Info("Starting credits service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingServer,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.ProfilingAuthUser,
		BasicAuthPassword: cfg.Telemetry.ProfilingAuthPassword,
		Contention:        cfg.Telemetry.ProfilingContention,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Telemetry.ProfilingSpans {
		tracerProvider.EnableSpanProfiles()
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	var meter metric.Meter
	var ledgerMetrics *telemetry.LedgerMetrics
	if cfg.Telemetry.MetricsEnabled {
		meter = meterProvider.Meter(cfg.Telemetry.ServiceName)
		ledgerMetrics, err = telemetry.NewLedgerMetrics(meter, log)
		if err != nil {
			log.Warn("Ledger metrics unavailable", zap.Error(err))
		}
	}

	dbSystem := "postgresql"
	if cfg.Database.IsSQLite() {
		dbSystem = "sqlite"
	}
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Database.LogLevel))),
		persistence.WithTracing(telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        dbSystem,
		}, log)),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	// Postgres schemas are owned by cmd/migrate; a sqlite dev database is created in place
	if cfg.Database.IsSQLite() {
		if err := db.DB.AutoMigrate(persistence.Models()...); err != nil {
			log.Fatal("Failed to create sqlite schema", zap.Error(err))
		}
	}
	log.Info("Database connected", zap.String("driver", dbSystem))

	idempotency, err := cache.NewStoreFactory(cfg.Redis, cfg.Ledger, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotency.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	serializer := event.NewEventSerializer()
	event.RegisterLedgerEvents(serializer)
	bus := event.NewInMemoryEventBus(log)
	eventLogger := event.NewIdempotentHandler(event.NewLedgerEventLogger(serializer, log), idempotency, log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Ledger.IdempotencyTTL, Enabled: true}))
	bus.Subscribe(eventLogger)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	gdb := db.DB
	accounts := persistence.NewGormAccountRepository(gdb)
	members := persistence.NewGormTeamMemberRepository(gdb)

	ledger := creditapp.NewLedgerService(creditapp.LedgerServiceConfig{
		Scope:        persistence.NewGormTransactionScope(gdb),
		Balances:     persistence.NewGormCreditBalanceRepository(gdb),
		Transactions: persistence.NewGormCreditTransactionRepository(gdb),
		BetaQuotas:   persistence.NewGormBetaQuotaRepository(gdb),
		Shortfalls:   persistence.NewGormRefundShortfallRepository(gdb),
		Members:      members,
		Publisher:    bus,
		Metrics:      ledgerMetrics,
		Logger:       log,
		Config: creditapp.LedgerConfig{
			LowBalanceThreshold: cfg.Ledger.LowBalanceThreshold,
			MaxBatchSize:        cfg.Ledger.MaxBatchSize,
			RefundMaxRetries:    cfg.Ledger.RefundMaxRetries,
		},
	})
	teams := teamapp.NewTeamService(teamapp.TeamServiceConfig{
		Scope:       persistence.NewGormTeamTransactionScope(gdb),
		Teams:       persistence.NewGormTeamRepository(gdb),
		Members:     members,
		Allocations: persistence.NewGormTeamAllocationRepository(gdb),
		Accounts:    accounts,
		Publisher:   bus,
		Logger:      log,
	})
	quota := billingapp.NewQuotaService(billingapp.QuotaServiceConfig{
		Accounts: accounts,
		Counters: persistence.NewGormUsageCounterRepository(gdb),
		Metrics:  ledgerMetrics,
		Logger:   log,
	})
	reconciler := billingapp.NewReconciler(billingapp.ReconcilerDeps{
		Ledger:      ledger,
		Accounts:    accounts,
		Events:      persistence.NewGormBillingEventRepository(gdb),
		Idempotency: idempotency,
		Metrics:     ledgerMetrics,
		Logger:      log,
		Config: billingapp.ReconcilerConfig{
			RefundCreditsPerUnit: decimal.NewFromFloat(cfg.Ledger.RefundCreditsPerUnit),
			IdempotencyTTL:       cfg.Ledger.IdempotencyTTL,
		},
	})

	var adminOpts []handler.AdminOption
	if cfg.Storage.Enabled {
		objects, err := storage.NewS3ObjectStorage(ctx, cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create statement storage", zap.Error(err))
		}
		if cfg.Storage.EnsureBucket {
			if err := objects.EnsureBucket(ctx); err != nil {
				log.Fatal("Failed to prepare statement bucket", zap.Error(err))
			}
		}
		adminOpts = append(adminOpts, handler.WithStatementExporter(creditapp.NewStatementExporter(creditapp.StatementExporterConfig{
			Transactions: persistence.NewGormCreditTransactionRepository(gdb),
			Storage:      objects,
			LinkTTL:      cfg.Storage.PresignExpiration,
			Logger:       log,
		})))
		log.Info("Statement exports enabled", zap.String("bucket", objects.Bucket()))
	}

	stripeCfg := stripeConfig(cfg.Stripe)
	if err := stripeCfg.Validate(); err != nil {
		log.Warn("Stripe webhooks will be rejected", zap.Error(err))
	}
	webhooks := billingapp.NewStripeWebhookService(billingapp.StripeWebhookServiceConfig{
		Config:  stripeCfg,
		Handler: reconciler,
		Logger:  log,
	})

	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}

	engine, stopLimiters := router.Build(router.Deps{
		HTTP:             cfg.HTTP,
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   cfg.Telemetry.Enabled,
		ProfilingEnabled: profiler.IsEnabled(),
		Logger:           log,
		Meter:            meter,
		JWT:              auth.NewJWTService(cfg.JWT),
		Handlers: router.Handlers{
			Health:  handler.NewHealthHandler(sqlDB, version),
			Catalog: handler.NewCatalogHandler(),
			Credit:  handler.NewCreditHandler(ledger),
			Quota:   handler.NewQuotaHandler(quota),
			Team:    handler.NewTeamHandler(teams),
			Admin:   handler.NewAdminHandler(ledger, adminOpts...),
			Webhook: handler.NewStripeWebhookHandler(webhooks, cfg.HTTP.WebhookMaxBodySize),
		},
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.HTTP))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	stopLimiters()
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus did not drain", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Profiler shutdown failed", zap.Error(err))
	}
	if logProvider != nil {
		_ = logProvider.Shutdown(shutdownCtx, log)
	}

	log.Info("Server exited gracefully")
}

func stripeConfig(cfg config.StripeConfig) *infrabilling.StripeConfig {
	out := infrabilling.DefaultStripeConfig()
	out.SecretKey = cfg.SecretKey
	out.WebhookSecret = cfg.WebhookSecret
	out.IsTestMode = cfg.TestMode
	out.IgnoreAPIVersionMismatch = cfg.IgnoreAPIVersionMismatch
	if len(cfg.PlanPrices) > 0 {
		out.PriceIDs = cfg.PlanPrices
	}
	return out
}

func shutdownTimeout(cfg config.HTTPConfig) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return 30 * time.Second
}
