package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/analytics"
	"github.com/geoaware/backend/internal/auth"
	"github.com/geoaware/backend/internal/cache"
	"github.com/geoaware/backend/internal/config"
	"github.com/geoaware/backend/internal/database"
	"github.com/geoaware/backend/internal/handlers"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"github.com/geoaware/backend/internal/middleware"
	"github.com/geoaware/backend/internal/privacy"
	"github.com/geoaware/backend/internal/telemetry"
	"github.com/geoaware/backend/internal/validation"
	"github.com/geoaware/backend/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if !config.LoadDotEnv() {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Initialize(cfg.Log.Level, cfg.Log.File); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== GeoAware server starting ===", zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Telemetry.Endpoint,
		Enabled:      cfg.Telemetry.Enabled,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Log.Warn("Tracing disabled", zap.Error(err))
	}

	if err := database.Initialize(); err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}

	if err := validation.NewServiceValidator(cfg).ValidateServices(ctx); err != nil {
		logger.Log.Fatal("Required services unavailable", zap.Error(err))
	}

	metrics.Initialize()
	metrics.InitializeApplicationMetrics()

	// Redis is optional: without it reports are recomputed and limits are per instance.
	var (
		reportCache *cache.Analytics
		apiLimiter  gin.HandlerFunc
	)
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
		if err != nil {
			logger.Log.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		} else {
			defer rc.Close()
			reportCache = cache.NewAnalytics(rc, cfg.Redis.AnalyticsTTL)
			apiLimiter = middleware.RedisRateLimitMiddleware(rc, middleware.DefaultRateLimitConfig())
		}
	}

	authService := auth.NewService(cfg.Auth.JWTSecret)

	wsHub := websocket.NewHub()
	wsHandler := websocket.NewHandler(wsHub, authService, cfg.Server.WSOrigins)
	wsHandler.RegisterDefaultHandlers()

	h := handlers.NewHandlers(
		analytics.NewService(database.DB, reportCache),
		privacy.NewSimulator(database.DB),
	)
	h.SetWebSocketHandler(wsHandler)
	authHandlers := handlers.NewAuthHandlers(authService)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	if tp != nil {
		r.Use(middleware.TracingMiddleware(cfg.Telemetry.ServiceName))
		r.Use(middleware.SpanEnrichmentMiddleware())
	}

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) == 0 || cfg.Server.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID", "X-Correlation-ID"}
	r.Use(cors.New(corsConfig))
	// The socket upgrade must not be wrapped by the gzip writer.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/ws", "/metrics"})))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterRoutes(r, h, authHandlers, wsHandler, apiLimiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run()
		return nil
	})

	g.Go(func() error {
		logger.Log.Info("GeoAware backend listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := wsHandler.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("WebSocket shutdown warning", zap.Error(err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if tp != nil {
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Log.Warn("Tracer shutdown warning", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Log.Info("Server exited")
}
