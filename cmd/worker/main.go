// Package main runs the standalone recording pipeline worker (download,
// R2 upload, thumbnail, publish) plus the reconciliation jobs.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classdeck/recordings-backend/config"
	"github.com/classdeck/recordings-backend/internal/catalog"
	"github.com/classdeck/recordings-backend/internal/hosts"
	"github.com/classdeck/recordings-backend/internal/pipeline"
	"github.com/classdeck/recordings-backend/internal/recordings"
	"github.com/classdeck/recordings-backend/internal/thumbnail"
	"github.com/classdeck/recordings-backend/internal/zoom"
	"github.com/classdeck/recordings-backend/pkg/database"
	"github.com/classdeck/recordings-backend/pkg/queue"
	"github.com/classdeck/recordings-backend/pkg/redis"
	"github.com/classdeck/recordings-backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Unlike the server, the worker cannot do anything without storage.
	if !cfg.Storage.Configured() {
		logger.Fatal("object storage is required: set R2_BUCKET, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY")
	}
	store, err := storage.NewStore(ctx, storage.Config{
		Endpoint:             cfg.Storage.Endpoint,
		Region:               cfg.Storage.Region,
		AccessKeyID:          cfg.Storage.AccessKeyID,
		SecretAccessKey:      cfg.Storage.SecretAccessKey,
		Bucket:               cfg.Storage.Bucket,
		WorkerURL:            cfg.Storage.WorkerURL,
		CustomDomain:         cfg.Storage.CustomDomain,
		PresignExpireMinutes: cfg.Storage.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("object storage", zap.Error(err))
	}

	zoomCfg := zoom.Config{
		AccountID:     cfg.Zoom.AccountID,
		ClientID:      cfg.Zoom.ClientID,
		ClientSecret:  cfg.Zoom.ClientSecret,
		WebhookSecret: cfg.Zoom.WebhookSecret,
		APIBaseURL:    cfg.Zoom.APIBaseURL,
		TokenURL:      cfg.Zoom.TokenURL,
		SyncUserID:    cfg.Zoom.SyncUserID,
	}
	tokens := zoom.NewTokenManager(zoomCfg, logger)
	zoomClient := zoom.NewClient(zoomCfg, tokens, logger)
	downloader := zoom.NewDownloader(tokens, time.Duration(cfg.Pipeline.DownloadTimeoutSeconds)*time.Second, logger)

	hostRepo := hosts.NewRepository(pool)
	hostService := hosts.NewService(hostRepo, cfg.Hosts.AllowWhenUnconfigured, logger)
	recordingRepo := recordings.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	publisher := catalog.NewPublisher(catalogRepo, logger)
	extractor := thumbnail.NewExtractor(cfg.Thumbnail.FFmpegPath, cfg.Thumbnail.FFprobePath, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	admission := pipeline.NewAdmission(hostService, catalogRepo, recordingRepo, jobQueue, logger)
	processor := pipeline.NewProcessor(recordingRepo, downloader, store, extractor, publisher, logger)
	runner := pipeline.NewRunner(cfg.Pipeline.MaxConcurrent, jobQueue, recordingRepo, processor, logger)
	reconciler := pipeline.NewReconciler(pipeline.ReconcilerConfig{
		SyncUserID: cfg.Zoom.SyncUserID,
		StuckAfter: time.Duration(cfg.Pipeline.StuckAfterMinutes) * time.Minute,
		CheckEvery: time.Duration(cfg.Pipeline.StuckCheckMinutes) * time.Minute,
		Retention:  time.Duration(cfg.Pipeline.RetentionDays) * 24 * time.Hour,
	}, recordingRepo, admission, zoomClient, store, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Run(runCtx) }()
	go func() {
		if err := reconciler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reconciler exited", zap.Error(err))
		}
	}()
	logger.Info("worker started", zap.Int("workers", cfg.Pipeline.MaxConcurrent))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("workers did not drain in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
