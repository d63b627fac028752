package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ibrahimkhan7059/Edubazaar/internal/auth"
	"github.com/ibrahimkhan7059/Edubazaar/internal/config"
	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
	"github.com/ibrahimkhan7059/Edubazaar/internal/fcm"
	"github.com/ibrahimkhan7059/Edubazaar/internal/handler"
	"github.com/ibrahimkhan7059/Edubazaar/internal/middleware"
	"github.com/ibrahimkhan7059/Edubazaar/internal/repository/postgres"
	"github.com/ibrahimkhan7059/Edubazaar/internal/repository/redis"
	"github.com/ibrahimkhan7059/Edubazaar/internal/service"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logLevel := slog.LevelInfo
	if cfg.App.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting chat push service",
		"env", cfg.App.Env,
		"port", cfg.Server.Port,
		"auth_mode", cfg.Firebase.AuthMode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Apply schema migrations
	if cfg.Database.RunMigrations {
		if err := postgres.Migrate(cfg.Database); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	// Initialize PostgreSQL
	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	// Initialize Redis
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	// Initialize repositories
	queueRepo := postgres.NewQueueRepository(db)
	tokenRepo := postgres.NewDeviceTokenRepository(db)
	tokenCache := redis.NewTokenCache(redisClient)

	// Select the gateway authentication strategy once at startup
	authStrategy, projectID, err := buildAuthStrategy(cfg, tokenCache, logger)
	if err != nil {
		logger.Error("failed to configure gateway authentication", "error", err)
		os.Exit(1)
	}

	// Initialize the gateway client and services
	fcmClient := fcm.NewClient(cfg.Firebase, projectID, logger)
	fanout := service.NewFanOutService(fcmClient, logger)
	queueService := service.NewQueueService(queueRepo, tokenRepo, authStrategy, fanout, logger)

	// Initialize WebSocket hub
	hub := handler.NewStatusHub(logger)
	go hub.Run()
	queueService.SetStatusBroadcast(func(n *domain.PendingNotification) {
		hub.BroadcastStatus(n)
	})

	// Metrics
	metrics := handler.NewMetrics()
	queueService.SetMetrics(metrics)
	metricsHandler := handler.NewMetricsHandler(metrics, queueRepo)

	// Background drainer
	drainer := service.NewDrainer(queueService, logger, cfg.Queue.DrainInterval, cfg.Queue.BatchSize)

	// Initialize handlers
	pushHandler := handler.NewPushHandler(queueService, cfg.Queue.BatchSize)
	healthHandler := handler.NewHealthHandler()
	healthHandler.AddChecker("postgres", db)
	healthHandler.AddChecker("redis", redisClient)
	wsHandler := handler.NewWebSocketHandler(hub)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Correlation)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Compress(5))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	// Metrics endpoints
	r.Handle("/metrics", metricsHandler.Handler())
	r.Get("/metrics/realtime", metricsHandler.RealtimeMetrics)

	// WebSocket endpoint
	r.Get("/ws", wsHandler.HandleWebSocket)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			pushHandler.RegisterRoutes(r)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start background drainer
	if cfg.Queue.DrainEnabled {
		if err := drainer.Start(ctx); err != nil {
			logger.Error("failed to start drainer", "error", err)
			os.Exit(1)
		}
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	drainer.Stop()
	cancel()

	logger.Info("server stopped")
}

// buildAuthStrategy selects the gateway authentication once at configuration
// time: OAuth bearer tokens minted from the service account, or the legacy
// static server key.
func buildAuthStrategy(cfg *config.Config, cache auth.TokenCache, logger *slog.Logger) (fcm.AuthStrategy, string, error) {
	switch cfg.Firebase.AuthMode {
	case config.AuthModeServerKey:
		strategy, err := fcm.NewServerKeyAuth(cfg.Firebase.ServerKey)
		if err != nil {
			return nil, "", err
		}
		return strategy, cfg.Firebase.ProjectID, nil

	default:
		account, err := auth.LoadServiceAccount(cfg.Firebase)
		if err != nil {
			return nil, "", err
		}

		minter, err := auth.NewMinter(account, cfg.OAuth, cache, logger)
		if err != nil {
			return nil, "", err
		}

		return fcm.NewBearerAuth(minter), account.ProjectID, nil
	}
}
