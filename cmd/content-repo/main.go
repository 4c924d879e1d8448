package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/config"
	"github.com/geoaware/backend/internal/contentrepo"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"github.com/geoaware/backend/internal/middleware"
	"github.com/geoaware/backend/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if !config.LoadDotEnv() {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := config.LoadContentRepo()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Initialize(cfg.Log.Level, cfg.Log.File); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := contentrepo.OpenDB(cfg.DBPath)
	if err != nil {
		logger.Log.Fatal("Failed to open metadata database", zap.Error(err), zap.String("path", cfg.DBPath))
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize blob storage", zap.Error(err))
	}
	if err := blobs.Check(ctx); err != nil {
		logger.Log.Warn("Blob storage check failed, uploads may fail", zap.Error(err))
	}

	metrics.InitializeApplicationMetrics()

	cleaner := contentrepo.NewCleaner(db, blobs, cfg.CleanupInterval)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	contentrepo.NewServer(db, blobs, contentrepo.WithMaxUploadSize(cfg.MaxUploadSize)).Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Content repository listening",
			zap.String("port", cfg.Port),
			zap.String("max_upload", humanize.IBytes(uint64(cfg.MaxUploadSize))))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down content repository...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Log.Info("Content repository exited")
}

func openBlobStore(ctx context.Context, cfg *config.ContentRepoConfig) (storage.BlobStore, error) {
	if cfg.UseS3() {
		logger.Log.Info("Storing blobs in S3", zap.String("bucket", cfg.Bucket), zap.String("prefix", cfg.Prefix))
		return storage.NewS3Store(ctx, storage.S3Options{
			Region:   cfg.Region,
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Endpoint: cfg.Endpoint,
		})
	}
	logger.Log.Info("Storing blobs on disk", zap.String("dir", cfg.StorageDir))
	return storage.NewLocalStore(cfg.StorageDir)
}
