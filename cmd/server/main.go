// Command server runs the bakery subscription HTTP API.
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
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"

	catalogapp "github.com/selkies/backend/internal/application/catalog"
	subscriptionapp "github.com/selkies/backend/internal/application/subscription"
	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/infrastructure/cache"
	"github.com/selkies/backend/internal/infrastructure/config"
	"github.com/selkies/backend/internal/infrastructure/logger"
	"github.com/selkies/backend/internal/infrastructure/payment"
	"github.com/selkies/backend/internal/infrastructure/persistence"
	"github.com/selkies/backend/internal/infrastructure/storage"
	"github.com/selkies/backend/internal/infrastructure/telemetry"
	"github.com/selkies/backend/internal/interfaces/http/handler"
	"github.com/selkies/backend/internal/interfaces/http/middleware"
	"github.com/selkies/backend/internal/interfaces/http/router"
)

// Version is set at build time with -ldflags
var Version = "dev"

var _ subscriptionapp.Metrics = (*telemetry.SubscriptionMetrics)(nil)

func main() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting bakery backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", Version),
	)
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Telemetry
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.NewLogsConfig(cfg.Telemetry), log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	if loggerProvider.IsEnabled() {
		otelCore, err := telemetry.NewZapOTELCore(loggerProvider, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))
		if err != nil {
			log.Fatal("Failed to bridge logs to OpenTelemetry", zap.Error(err))
		}
		_ = log.Sync()
		if log, err = newLogger(cfg.Log, otelCore); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}

	telemetryCfg := telemetry.NewConfig(cfg.Telemetry)
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg.MetricsConfig(), log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.NewProfilerConfig(cfg.Telemetry, cfg.App.Env), log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.LinkProfiles()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := profiler.Stop(); err != nil {
			log.Warn("Error stopping profiler", zap.Error(err))
		}
		_ = meterProvider.Shutdown(shutdownCtx)
		_ = tracerProvider.Shutdown(shutdownCtx)
		_ = loggerProvider.Shutdown(shutdownCtx)
	}()

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.NewDBTracingConfig(cfg.Telemetry, cfg.Database.DBName), log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DBMetricsConfig{}, log)
	if err != nil {
		log.Warn("Database metrics unavailable", zap.Error(err))
	}
	if dbMetrics != nil {
		defer dbMetrics.Stop()
	}

	// Sessions and catalog cache
	stores, err := cache.NewStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithSessionTTL(cfg.Session.TTL),
	).CreateStores()
	if err != nil {
		log.Fatal("Failed to create session store", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Error closing stores", zap.Error(err))
		}
	}()

	currency := valueobject.Currency(cfg.Subscription.Currency)
	catalogService := catalogapp.NewService(persistence.NewGormProductRepository(db.DB), log,
		catalogapp.WithCache(stores.Products, cfg.Subscription.CatalogCacheTTL),
		catalogapp.WithCategories(cfg.Subscription.Categories),
		catalogapp.WithCurrency(currency),
	)

	subscriptionService, err := newSubscriptionService(ctx, cfg, stores.Sessions, catalogService,
		persistence.NewGormOrderRepository(db.DB), meterProvider, log)
	if err != nil {
		log.Fatal("Failed to initialize subscription service", zap.Error(err))
	}

	// HTTP
	sessionCookie, err := newSessionCookie(cfg.Session)
	if err != nil {
		log.Fatal("Invalid session configuration", zap.Error(err))
	}
	if cfg.Session.HashKey == "" {
		log.Warn("session.hash_key not set, session cookies will not survive a restart")
	}

	engineCfg := router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		CORS:           corsConfig(cfg.HTTP),
		Security:       middleware.DefaultSecurityConfig(),
		Tracing:        tracerProvider.IsEnabled(),
	}
	if meterProvider.IsEnabled() {
		engineCfg.Meter = meterProvider.Meter("bakery.http")
	}
	if cfg.Session.Secure {
		engineCfg.Security.HSTSEnabled = true
	}
	engine, err := router.NewEngine(engineCfg, log)
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, Version,
		handler.HealthCheck{Name: "database", Check: func(context.Context) error { return db.Ping() }},
		handler.HealthCheck{Name: "sessions", Check: stores.Ping},
	)

	r := router.NewRouter(engine)
	r.RegisterRoot(router.RouteFunc(func(rg *gin.RouterGroup) {
		rg.GET("/health", systemHandler.Health)
	}))
	r.Register(handler.NewPlanHandler(subscriptionService, sessionCookie)).
		Register(handler.NewDeliveryHandler(subscriptionService)).
		Register(handler.NewCatalogHandler(catalogService)).
		Register(systemHandler)
	if cfg.Payment.StripeWebhookSecret != "" {
		stripeWebhook, err := payment.NewStripeWebhook(cfg.Payment.StripeWebhookSecret)
		if err != nil {
			log.Fatal("Invalid webhook configuration", zap.Error(err))
		}
		r.Register(handler.NewPaymentWebhookHandler(stripeWebhook, subscriptionService, stores.Events))
		log.Info("Stripe webhook endpoint enabled")
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
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("session_backend", stores.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	log.Info("Server exited gracefully")
}

func newLogger(cfg config.LogConfig, extra ...zapcore.Core) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
		Extra:  extra,
	})
}

// newSubscriptionService wires the plan service with its optional payment
// gateway, order archive and metrics.
func newSubscriptionService(
	ctx context.Context,
	cfg *config.Config,
	sessions subscription.SessionStore,
	catalog subscriptionapp.CatalogProvider,
	orders subscription.OrderRepository,
	meterProvider *telemetry.MeterProvider,
	log *zap.Logger,
) (*subscriptionapp.Service, error) {
	loc, err := cfg.Subscription.Location()
	if err != nil {
		return nil, err
	}
	tag, err := language.Parse(cfg.Subscription.Language)
	if err != nil {
		return nil, err
	}

	opts := []subscriptionapp.Option{
		subscriptionapp.WithCalendar(delivery.NewCalendar(delivery.WithLocation(loc))),
		subscriptionapp.WithPolicy(subscription.Policy{
			ServiceablePostalCode: cfg.Subscription.ServiceablePostalCode,
			LookaheadDays:         cfg.Subscription.LookaheadDays,
		}),
		subscriptionapp.WithCurrency(valueobject.Currency(cfg.Subscription.Currency)),
		subscriptionapp.WithStartDateHorizon(cfg.Subscription.StartDateHorizon),
		subscriptionapp.WithLanguage(tag),
		subscriptionapp.WithSessionTTL(cfg.Session.TTL),
	}

	switch cfg.Payment.Provider {
	case "stripe":
		gateway, err := payment.NewStripeGateway(payment.NewStripeConfig(cfg.Payment), log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, subscriptionapp.WithGateway(gateway))
		log.Info("Stripe payment gateway enabled")
	case "":
		log.Warn("No payment provider configured, checkout is disabled")
	}

	if cfg.Storage.Enabled {
		archive, err := storage.NewS3OrderArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Order archive bucket check failed", zap.String("bucket", archive.Bucket()), zap.Error(err))
		}
		opts = append(opts, subscriptionapp.WithArchive(archive))
	}

	if meterProvider.IsEnabled() {
		metrics, err := telemetry.NewSubscriptionMetrics(meterProvider.Meter("bakery.subscription"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, subscriptionapp.WithMetrics(metrics))
	}

	return subscriptionapp.NewService(sessions, catalog, orders, log, opts...), nil
}

// newSessionCookie builds the cookie codec. Without a configured hash key a
// random one is generated per process.
func newSessionCookie(cfg config.SessionConfig) (*middleware.SessionCookie, error) {
	cookieCfg := middleware.SessionCookieConfig{
		Name:     cfg.CookieName,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure,
		SameSite: middleware.ParseSameSite(cfg.SameSite),
		MaxAge:   cfg.TTL,
	}
	if cfg.HashKey != "" {
		keys, err := cfg.DecodedKeys()
		if err != nil {
			return nil, err
		}
		cookieCfg.HashKey = keys.Hash
		cookieCfg.BlockKey = keys.Block
	}
	return middleware.NewSessionCookie(cookieCfg), nil
}

func corsConfig(cfg config.HTTPConfig) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.CORSAllowOrigins
		cors.AllowCredentials = true
	}
	if len(cfg.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.CORSAllowHeaders
	}
	return cors
}
