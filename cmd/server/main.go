package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appsync "github.com/channelhub/backend/internal/application/sync"
	appwebhook "github.com/channelhub/backend/internal/application/webhook"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/adapters"
	"github.com/channelhub/backend/internal/infrastructure/auth"
	"github.com/channelhub/backend/internal/infrastructure/cache"
	"github.com/channelhub/backend/internal/infrastructure/config"
	"github.com/channelhub/backend/internal/infrastructure/logger"
	"github.com/channelhub/backend/internal/infrastructure/persistence"
	"github.com/channelhub/backend/internal/infrastructure/queue"
	"github.com/channelhub/backend/internal/infrastructure/scheduler"
	"github.com/channelhub/backend/internal/infrastructure/vault"
	"github.com/channelhub/backend/internal/interfaces/http/handler"
	"github.com/channelhub/backend/internal/interfaces/http/middleware"
	"github.com/channelhub/backend/internal/interfaces/http/router"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting ChannelHub backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port))

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database,
		logger.NewGormLogger(log, cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := persistence.AutoMigrate(db.DB); err != nil {
		log.Fatal("Failed to migrate schema", zap.Error(err))
	}

	// Repositories
	connectionRepo := persistence.NewGormConnectionRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	listingRepo := persistence.NewGormListingRepository(db.DB)
	inventoryLogRepo := persistence.NewGormInventoryLogRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	jobRepo := persistence.NewGormJobRepository(db.DB)

	// Credential vault
	cipher, err := vault.NewTokenCipher(cfg.Vault.MasterKey)
	if err != nil {
		log.Fatal("Failed to initialize token cipher", zap.Error(err))
	}
	credentialVault := vault.New(connectionRepo, cipher, log)

	// Platform adapters
	registry := adapters.NewDefaultRegistry(cfg.Platforms, log)

	// Application services
	credManager := appsync.NewCredentialManager(credentialVault, registry, log)
	orderSync := appsync.NewOrderSyncService(orderRepo, credManager, log)
	productSync := appsync.NewProductSyncService(productRepo, listingRepo, connectionRepo, credManager, log)
	inventorySync := appsync.NewInventorySyncService(productRepo, listingRepo, inventoryLogRepo, credManager, log)
	triggerService := appsync.NewTriggerService(jobRepo, connectionRepo, cfg.Sync.OrderLookback, cfg.Queue.MaxSyncAttempts, log)
	jobHandlers := appsync.NewJobHandlers(orderSync, productSync, inventorySync, cfg.Sync.OrderLookback, log)

	// Webhook pipeline
	dedupStore := cache.NewIdempotencyStore(cfg.Redis, log)
	defer func() {
		_ = dedupStore.Close()
	}()
	ingestService := appwebhook.NewIngestService(registry, connectionRepo, jobRepo, dedupStore, cfg.Webhook.DedupTTL, cfg.Queue.MaxWebhookAttempts, log)
	processService := appwebhook.NewProcessService(orderSync, inventorySync, log)

	// Queue workers
	processor := queue.NewProcessor(jobRepo, queue.ProcessorConfig{
		Workers:        cfg.Queue.Workers,
		BatchSize:      cfg.Queue.BatchSize,
		PollInterval:   cfg.Queue.PollInterval,
		JobTimeout:     cfg.Sync.JobTimeout,
		CleanupEnabled: cfg.Queue.CleanupEnabled,
		Retention:      cfg.Queue.RetentionPeriod,
	}, log)
	processor.RegisterHandler(sync.JobTypeOrderSync, jobHandlers.HandleOrderSync)
	processor.RegisterHandler(sync.JobTypeProductSync, jobHandlers.HandleProductSync)
	processor.RegisterHandler(sync.JobTypeInventorySync, jobHandlers.HandleInventorySync)
	processor.RegisterHandler(sync.JobTypeWebhook, processService.Handle)
	if err := processor.Start(context.Background()); err != nil {
		log.Fatal("Failed to start queue workers", zap.Error(err))
	}

	// Scheduling coordinator
	var coordinator *scheduler.Coordinator
	if cfg.Sync.Enabled {
		coordinator = scheduler.NewCoordinator(triggerService, connectionRepo, jobRepo, cfg.Sync, cfg.Queue.RetentionPeriod, log)
		if err := coordinator.Start(); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	// JWT auth
	jwtService := auth.NewJWTService(cfg.JWT)

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxy configuration", zap.Error(err))
		}
	}
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		logger.AccessLog(log),
		middleware.CORSWithConfig(corsConfig),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(limiter))
	}
	engine.Use(middleware.JWTAuthMiddleware(jwtService))

	systemHandler := handler.NewSystemHandler(db, version)
	systemHandler.RegisterPublicRoutes(engine)
	webhookHandler := handler.NewWebhookHandler(ingestService, cfg.Webhook.MaxPayloadBytes)
	webhookHandler.RegisterPublicRoutes(engine)

	r := router.NewRouter(engine)
	r.Register(handler.NewSyncHandler(triggerService))
	r.Register(handler.NewPlatformsHandler(registry, credentialVault, jwtService, log))
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
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	// Stop accepting traffic first, then the schedule, then drain the
	// workers; the deferred Close handles the database last.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	if coordinator != nil {
		coordinator.Stop()
	}
	if err := processor.Stop(ctx); err != nil {
		log.Error("Queue workers forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
