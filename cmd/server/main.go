package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	marketplaceapp "github.com/erp/marketsync/internal/application/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/cache"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/infrastructure/ecommerce"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/persistence"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/erp/marketsync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.NewForEnvironment(cfg.App.Env, &logger.Config{
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

	// Export logs over OTLP alongside the local output
	loggerProvider, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = loggerProvider.Shutdown(ctx)
	}()
	log = loggerProvider.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting marketplace sync service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database with a zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.SlowQueryThreshold),
	)
	db, err := persistence.Open(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.TracingConfig{
		Enabled:           cfg.Telemetry.TracingEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Warn("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Continuous profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Warn("Error stopping profiler", zap.Error(err))
		}
	}()
	// must run before otelgorm and otelgin capture the global provider
	if profiler.IsEnabled() && tracerProvider.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = tracerProvider.IsEnabled()
	dbTracing.SlowQueryThreshold = cfg.Telemetry.SlowQueryThreshold
	dbTracing.LogFullSQL = cfg.App.Env == "development"
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Warn("Database tracing unavailable", zap.Error(err))
	}

	// Metrics
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Warn("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Repositories
	channelRepo := persistence.NewGormChannelRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)

	// Marketplace adapters
	registry, err := newAdapterRegistry(cfg.Marketplace, log)
	if err != nil {
		log.Fatal("Failed to initialize marketplace adapters", zap.Error(err))
	}

	reconciler := marketplaceapp.NewReconciler(
		orderRepo,
		channelRepo,
		ecommerce.Normalize,
		log,
		marketplaceapp.WithLookbackOverlap(cfg.Marketplace.LookbackOverlap),
		marketplaceapp.WithPageSize(cfg.Marketplace.PageSize),
	)

	// Sync scheduler
	schedulerOpts, closeLease := syncSchedulerOptions(cfg, meterProvider, log)
	defer closeLease()

	syncScheduler, err := scheduler.NewMarketplaceSyncScheduler(
		scheduler.MarketplaceSyncSchedulerConfig{
			Enabled:        cfg.Marketplace.SyncEnabled,
			Interval:       cfg.Marketplace.SyncInterval(),
			ChannelTimeout: cfg.Marketplace.ChannelTimeout,
		},
		channelRepo,
		registry,
		reconciler,
		log,
		schedulerOpts...,
	)
	if err != nil {
		log.Fatal("Failed to create sync scheduler", zap.Error(err))
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Tracing - Server span tagged with the request ID
	// 3. Recovery - Catch panics
	// 4. Logger - Log requests with request and trace IDs
	// 5. Metrics - Record request count and latency
	// 6. BodyLimit - Limit request body size
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		Enabled:     tracerProvider.IsEnabled(),
		ServiceName: cfg.Telemetry.ServiceName,
		SkipPaths:   []string{"/health"},
	})...)
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(meterProvider))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	systemHandler := handler.NewSystemHandler(db, cfg.App.Name, version)
	syncHandler := handler.NewMarketplaceSyncHandler(syncScheduler, channelRepo)

	// Health check endpoint (outside API versioning)
	engine.GET("/health", systemHandler.Health)

	r := router.NewRouter(engine)
	for _, group := range []*router.DomainGroup{syncHandler.Routes(), systemHandler.Routes()} {
		r.Register(group)
		for _, route := range group.Routes(r.BasePath()) {
			log.Debug("Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}
	r.Setup()

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

	if err := syncScheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := syncScheduler.Stop(ctx); err != nil {
		log.Warn("Sync scheduler did not stop in time", zap.Error(err))
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newAdapterRegistry builds the BigCommerce and Amazon adapters from configuration
func newAdapterRegistry(cfg config.MarketplaceConfig, log *zap.Logger) (*ecommerce.AdapterRegistry, error) {
	timeoutSeconds := int(cfg.HTTPTimeout / time.Second)

	bcConfig := ecommerce.NewBigCommerceConfig()
	if cfg.BigCommerceAPIURL != "" {
		bcConfig.APIBaseURL = cfg.BigCommerceAPIURL
	}
	bcConfig.TimeoutSeconds = timeoutSeconds
	bcConfig.RequestsPerSecond = cfg.BigCommerceRequestsPerSecond

	bigCommerce, err := ecommerce.NewBigCommerceAdapter(bcConfig, log)
	if err != nil {
		return nil, err
	}

	amzConfig := ecommerce.NewAmazonConfig()
	if cfg.AmazonEndpoint != "" {
		amzConfig.DefaultEndpoint = cfg.AmazonEndpoint
	}
	if cfg.AmazonTokenURL != "" {
		amzConfig.TokenURL = cfg.AmazonTokenURL
	}
	amzConfig.TimeoutSeconds = timeoutSeconds
	amzConfig.InitialLookback = cfg.InitialLookback
	amzConfig.RequestsPerSecond = cfg.AmazonRequestsPerSecond

	amazon, err := ecommerce.NewAmazonAdapter(amzConfig, log)
	if err != nil {
		return nil, err
	}

	return ecommerce.NewDefaultAdapterRegistry(bigCommerce, amazon), nil
}

// syncSchedulerOptions wires the optional lease and metrics into the scheduler.
// The returned func releases the lease's Redis connection.
func syncSchedulerOptions(cfg *config.Config, mp *telemetry.MeterProvider, log *zap.Logger) ([]scheduler.Option, func()) {
	var opts []scheduler.Option
	closeLease := func() {}

	factory := cache.NewSyncLeaseFactory(cfg.Redis, cfg.Marketplace,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	lease, err := factory.CreateLease()
	switch {
	case err != nil:
		log.Fatal("Failed to create sync lease", zap.Error(err))
	case lease != nil:
		opts = append(opts, scheduler.WithSyncLease(lease))
		if closer, ok := lease.(interface{ Close() error }); ok {
			closeLease = func() {
				if err := closer.Close(); err != nil {
					log.Warn("Error closing sync lease", zap.Error(err))
				}
			}
		}
	}

	if mp.IsEnabled() {
		syncMetrics, err := telemetry.NewSyncMetrics(mp.Meter("marketsync.sync"), log)
		if err != nil {
			log.Warn("Sync metrics unavailable", zap.Error(err))
		} else {
			opts = append(opts, scheduler.WithMetrics(syncMetrics))
		}
	}

	return opts, closeLease
}
