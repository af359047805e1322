// Package main is the entry point for the tour API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/icarotours/panoapi/internal/api"
	"github.com/icarotours/panoapi/internal/config"
	"github.com/icarotours/panoapi/internal/db"
	"github.com/icarotours/panoapi/internal/health"
	"github.com/icarotours/panoapi/internal/middleware"
	"github.com/icarotours/panoapi/internal/origin"
	"github.com/icarotours/panoapi/internal/scene"
	"github.com/icarotours/panoapi/internal/stats"
	"github.com/icarotours/panoapi/internal/tour"
	"github.com/icarotours/panoapi/internal/tracing"
	"github.com/icarotours/panoapi/internal/upload"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (env vars take precedence)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Panoapi Tour Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	tracingProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "panoapi",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbHandle, err := db.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbHandle.Close()

	originRepo := origin.NewPostgresRepository(dbHandle, logger)
	sceneRepo := scene.NewPostgresRepository(dbHandle, logger)

	// Redis is optional: without it, domain resolution hits Postgres directly.
	var redisClient *redis.Client
	var resolver origin.Resolver = originRepo
	var cacheInvalidator api.CacheInvalidator
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		cached := origin.NewCachedResolver(originRepo, redisClient,
			time.Duration(cfg.CacheTTLSeconds)*time.Second, logger)
		resolver = cached
		cacheInvalidator = cached
		logger.Info("origin resolution cache enabled", "ttl_seconds", cfg.CacheTTLSeconds)
	}

	upsertStats := stats.NewUpsertStats()
	tourService := tour.NewService(originRepo, sceneRepo, resolver, upsertStats, logger)

	var uploadHandlers *api.UploadHandlers
	if cfg.UploadEnabled() {
		uploadService, err := upload.NewService(upload.ServiceConfig{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
			MaxSizeMB:       cfg.R2MaxUploadSizeMB,
		})
		if err != nil {
			logger.Error("failed to initialize upload service", "error", err)
			os.Exit(1)
		}
		uploadHandlers = api.NewUploadHandlers(uploadService)
		logger.Info("panorama uploads enabled", "bucket", cfg.R2BucketName)
	} else {
		logger.Info("panorama uploads disabled: R2 not configured")
	}

	registry := prometheus.NewRegistry()
	metrics := middleware.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	if cached, ok := resolver.(*origin.CachedResolver); ok {
		cached.SetMetrics(metrics)
	}

	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    health.NewDBChecker(dbHandle),
		RedisChecker: redisChecker(redisClient),
	})

	mux := api.NewRouter(api.RouterConfig{
		Origins: api.NewOriginHandlers(originRepo, tourService, cacheInvalidator),
		Scenes:  api.NewSceneHandlers(tourService, metrics, cfg.DefaultDomain),
		Uploads: uploadHandlers,
		Health:  healthHandlers,
		Metrics: registry,
	})

	// Middleware chain, outermost first:
	// RequestID -> Tracing -> Logging -> CORS -> HTTPMetrics -> mux
	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(metrics)(handler)
	handler = middleware.CORS(middleware.DefaultCORSConfig())(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing("panoapi")(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	upsertStats.LogSummary(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}

// redisChecker returns a health checker for client, or nil when Redis is not
// configured so the readiness probe skips the check.
func redisChecker(client *redis.Client) api.HealthChecker {
	if client == nil {
		return nil
	}
	return health.NewRedisChecker(client)
}
