package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/settlement/internal/application/openitem"
	settlementapp "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/migration"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/erp/settlement/internal/infrastructure/scheduler"
	"github.com/erp/settlement/internal/infrastructure/strategy"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/erp/settlement/internal/interfaces/http/router"
	"github.com/erp/settlement/migrations"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting settlement service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// OpenTelemetry providers
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = loggerProvider.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	settlementMetrics, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{
		Meter:  meterProvider.Meter("github.com/erp/settlement"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create settlement metrics", zap.Error(err))
	}

	// Database with GORM logs routed through zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBSystem:   cfg.Database.Driver,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider.Meter("db.client"), telemetry.DBMetricsConfig{
		Enabled:            meterProvider.IsEnabled() && cfg.Telemetry.DBMetricsEnabled,
		SlowQueryThreshold: cfg.Telemetry.SlowQuery,
	}, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if err := migrateSchema(cfg, db, log); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// Allocation strategies
	registry, err := strategy.NewRegistryWithDefaults(cfg.Settlement.DefaultStrategy)
	if err != nil {
		log.Fatal("Failed to initialize strategy registry", zap.Error(err))
	}

	// Session store and its sweeper
	drafts, needsSweep, err := cache.NewDraftStoreFactory(cfg.Settlement, cfg.Redis, cache.WithLogger(log)).CreateStore()
	if err != nil {
		log.Fatal("Failed to create draft store", zap.Error(err))
	}
	healthChecks := map[string]handler.Pinger{
		"database": handler.PingerFunc(func(context.Context) error { return db.Ping() }),
	}
	var receipts settlement.SaveReceiptStore
	var sessionLease settlement.SessionLease
	if redisStore, ok := drafts.(*cache.RedisDraftStore); ok {
		healthChecks["redis"] = redisStore
		receipts = cache.NewRedisSaveReceiptStore(redisStore.Client(), "")
		sessionLease = cache.NewRedisSessionLease(redisStore.Client(), "")
		defer func() {
			_ = redisStore.Close()
		}()
	} else {
		memReceipts := cache.NewInMemorySaveReceiptStore()
		receipts = memReceipts
		defer func() {
			_ = memReceipts.Close()
		}()
	}

	var sweeper *scheduler.DraftSweeper
	if needsSweep {
		if purger, ok := drafts.(scheduler.DraftPurger); ok {
			sweeper, err = scheduler.NewDraftSweeper(scheduler.DraftSweeperConfig{
				Schedule: cfg.Settlement.SweepSchedule,
			}, purger, log)
			if err != nil {
				log.Fatal("Failed to create draft sweeper", zap.Error(err))
			}
			if err := sweeper.Start(context.Background()); err != nil {
				log.Fatal("Failed to start draft sweeper", zap.Error(err))
			}
		}
	}

	// Application services
	savePolicies, err := settlementapp.ParseSavePolicies(cfg.Settlement.SavePolicies)
	if err != nil {
		log.Fatal("Invalid save policy configuration", zap.Error(err))
	}
	openItemRepo := persistence.NewGormOpenItemRepository(db.DB)
	settlementRepo := persistence.NewGormSettlementRepository(db.DB)

	serviceOpts := []settlementapp.ServiceOption{
		settlementapp.WithDraftTTL(cfg.Settlement.DraftTTL),
		settlementapp.WithDiscountReabsorb(cfg.Settlement.ReabsorbDiscount),
		settlementapp.WithSavePolicies(savePolicies),
		settlementapp.WithSaveReceipts(receipts, cfg.Settlement.ReceiptTTL),
		settlementapp.WithMetrics(settlementMetrics),
	}
	if sessionLease != nil {
		serviceOpts = append(serviceOpts,
			settlementapp.WithSessionLease(sessionLease, cfg.Settlement.LeaseTTL, cfg.Settlement.LeaseWait))
	}
	settlementService := settlementapp.NewService(openItemRepo, settlementRepo, drafts, registry, serviceOpts...)
	importService := openitem.NewImportService(openItemRepo)

	// HTTP engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.SpanErrorMarker(),
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsCfg))

	tenantCfg := middleware.DefaultTenantConfig()
	tenantCfg.Required = cfg.App.Env == "production"
	tenantCfg.Logger = log
	engine.Use(
		middleware.TenantMiddlewareWithConfig(tenantCfg),
		middleware.TracingAttributeInjector(),
	)
	if meterProvider.IsEnabled() {
		engine.Use(middleware.HTTPMetrics(meterProvider.Meter("http.server"), log))
	}

	if cfg.HTTP.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
		defer limiter.Close()
		engine.Use(middleware.RateLimit(limiter))
	}

	router.NewRouter(engine).RegisterAll(router.Handlers{
		Settlement: handler.NewSettlementHandler(settlementService),
		OpenItem:   handler.NewOpenItemHandler(importService),
		Strategy:   handler.NewStrategyHandler(settlementService),
		Health:     handler.NewHealthHandler(cfg.App.Name, version, healthChecks),
	}).Setup()

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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sweeper != nil {
		sweeper.Stop()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if dbMetrics != nil {
		_ = dbMetrics.Close()
	}
	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	if err := loggerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}
}

// migrateSchema prepares the schema: sqlite uses GORM auto-migration, postgres
// applies the embedded SQL migrations
func migrateSchema(cfg *config.Config, db *persistence.Database, log *zap.Logger) error {
	if cfg.Database.Driver == "sqlite" {
		return db.AutoMigrate()
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	return m.Up()
}
