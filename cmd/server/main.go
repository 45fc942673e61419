package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/covox/voicedash/internal/config"
	"github.com/covox/voicedash/internal/elevenlabs"
	"github.com/covox/voicedash/internal/gateway"
	"github.com/covox/voicedash/internal/identity"
	"github.com/covox/voicedash/internal/provisioning"
	"github.com/covox/voicedash/internal/store"
	"github.com/covox/voicedash/internal/usage"
	"github.com/covox/voicedash/pkg/cache"
	"github.com/covox/voicedash/pkg/database"
	"github.com/covox/voicedash/pkg/events"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting Covox dashboard backend")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database")

	// Initialize Redis cache
	redisCache, err := cache.NewCache(cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()
	logger.Info("connected to Redis")

	// Initialize event bus
	eventBus := events.NewBus(logger)
	logger.Info("initialized event bus")

	// Initialize provider client
	provider := elevenlabs.NewClient(elevenlabs.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.Provider.Timeout,
	}, logger)
	logger.Info("initialized provider client")

	// Initialize usage aggregator
	aggregator := usage.NewAggregator(provider, redisCache, cfg.Provider.UsageCacheTTL, cfg.Provider.MaxPages, logger)
	logger.Info("initialized usage aggregator")

	// Initialize identity service
	identitySvc := identity.NewService(db, cfg.Security.JWTSecret, cfg.Security.JWTTTL, logger)
	logger.Info("initialized identity service")

	// Initialize tenant store
	tenantStore := store.NewStore(db, logger)

	// Initialize provisioning service
	provisioner := provisioning.NewService(identitySvc, tenantStore, eventBus, logger)
	logger.Info("initialized provisioning service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize API gateway
	gw := gateway.NewGateway(
		db,
		redisCache,
		logger,
		provisioner,
		aggregator,
		identitySvc,
		tenantStore,
		provider,
		eventBus,
		cfg.Security.AdminAPIToken,
		cfg.Provider.AgentName,
	)
	gw.StartHealthMetrics(ctx)
	logger.Info("initialized API gateway")

	// Audit log for provisioning outcomes
	eventBus.Subscribe(events.EventTenantProvisioned, func(ctx context.Context, e events.Event) error {
		logger.Info("tenant provisioned", zap.String("org_id", e.OrgID), zap.Any("payload", e.Payload))
		return nil
	})
	eventBus.Subscribe(events.EventProvisioningCompensated, func(ctx context.Context, e events.Event) error {
		logger.Warn("provisioning rolled back", zap.String("org_id", e.OrgID), zap.Any("payload", e.Payload))
		return nil
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gw,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server",
			zap.String("address", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
