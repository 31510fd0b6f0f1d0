package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/storyloop/backend/internal/api"
	"github.com/storyloop/backend/internal/auth"
	"github.com/storyloop/backend/internal/cache"
	"github.com/storyloop/backend/internal/config"
	"github.com/storyloop/backend/internal/domain"
	"github.com/storyloop/backend/internal/metrics"
	"github.com/storyloop/backend/internal/middleware"
	"github.com/storyloop/backend/internal/notify"
	"github.com/storyloop/backend/internal/repository"
	"github.com/storyloop/backend/internal/storage"
	"github.com/storyloop/backend/internal/sweeper"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Starting Storyloop API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database
	ctx := context.Background()
	db, err := initDatabase(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Connected to database")

	// Initialize Redis. The service degrades without it (no caching, local
	// rate limits) rather than refusing to start.
	redisClient, err := initRedis(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Invalid Redis configuration", zap.Error(err))
	}
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable at startup, caching degraded", zap.Error(err))
	} else {
		logger.Info("Connected to Redis")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Initialize dependencies
	repo := repository.NewPostgresRepository(db)
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	storyCache := cache.NewStoryCache(
		cache.NewRedisStore(redisClient),
		logger,
		collector,
		cfg.Cache.FolloweesTTL,
		cfg.Cache.FeedTTL,
	)

	pushRegistry := notify.NewRegistry(logger, collector)

	mediaStorage, err := storage.NewS3Storage(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize media storage", zap.Error(err))
	}

	// Initialize services
	authService := domain.NewAuthService(repo, jwtManager)
	storyService := domain.NewStoryService(repo, repo, storyCache, pushRegistry, collector, logger, cfg.Story.TTL)
	followService := domain.NewFollowService(repo, storyCache)

	rateLimiter := middleware.NewRateLimiter(redisClient, logger, collector, cfg.RateLimit.Window)
	idempotency := middleware.NewIdempotencyStore(redisClient, logger)

	// Initialize handlers
	authHandler := api.NewAuthHandler(authService, logger)
	storyHandler := api.NewStoryHandler(storyService, idempotency, logger)
	socialHandler := api.NewSocialHandler(followService, logger)
	mediaHandler := api.NewMediaHandler(mediaStorage, logger)
	wsHandler := api.NewWSHandler(pushRegistry, jwtManager, logger)
	healthHandler := api.NewHealthHandler(db, redisClient)

	// Initialize router
	router := api.NewRouter(
		authHandler,
		storyHandler,
		socialHandler,
		mediaHandler,
		wsHandler,
		healthHandler,
		jwtManager,
		rateLimiter,
		cfg.RateLimit,
		collector,
		metrics.Handler(registry),
		logger,
	)
	r := router.Setup()

	// Start expiration sweeper
	sweepCtx, sweepCancel := context.WithCancel(ctx)
	sw := sweeper.New(repo, logger, collector, cfg.Sweeper.Interval)
	go sw.Run(sweepCtx)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the sweeper
	sweepCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func initDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func initRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
