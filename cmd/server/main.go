// Package main runs the recordings ingestion HTTP server with embedded
// pipeline workers and graceful shutdown.
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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classdeck/recordings-backend/config"
	"github.com/classdeck/recordings-backend/internal/auth"
	"github.com/classdeck/recordings-backend/internal/catalog"
	"github.com/classdeck/recordings-backend/internal/hosts"
	"github.com/classdeck/recordings-backend/internal/middleware"
	"github.com/classdeck/recordings-backend/internal/pipeline"
	"github.com/classdeck/recordings-backend/internal/recordings"
	"github.com/classdeck/recordings-backend/internal/thumbnail"
	"github.com/classdeck/recordings-backend/internal/uploads"
	"github.com/classdeck/recordings-backend/internal/webhooks"
	"github.com/classdeck/recordings-backend/internal/zoom"
	"github.com/classdeck/recordings-backend/pkg/database"
	"github.com/classdeck/recordings-backend/pkg/queue"
	"github.com/classdeck/recordings-backend/pkg/redis"
	"github.com/classdeck/recordings-backend/pkg/response"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Object storage is optional at boot: webhooks are still accepted and
	// rows queue up as pending until R2 is reachable.
	var store *storage.Store
	if cfg.Storage.Configured() {
		store, err = storage.NewStore(ctx, storage.Config{
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
			logger.Warn("object storage disabled", zap.Error(err))
			store = nil
		}
	} else {
		logger.Warn("object storage disabled: R2 credentials not configured")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Provider API (server-to-server OAuth)
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

	// Host allowlist
	hostRepo := hosts.NewRepository(pool)
	hostService := hosts.NewService(hostRepo, cfg.Hosts.AllowWhenUnconfigured, logger)
	hostHandler := hosts.NewHandler(hostRepo)

	// Recording registry + playable-video catalog
	recordingRepo := recordings.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	publisher := catalog.NewPublisher(catalogRepo, logger)

	// Ingestion pipeline
	jobQueue := queue.NewQueue(rdb.Client, logger)
	admission := pipeline.NewAdmission(hostService, catalogRepo, recordingRepo, jobQueue, logger)
	extractor := thumbnail.NewExtractor(cfg.Thumbnail.FFmpegPath, cfg.Thumbnail.FFprobePath, logger)

	stuckAfter := time.Duration(cfg.Pipeline.StuckAfterMinutes) * time.Minute

	// Assigning a nil *storage.Store straight to an interface variable
	// would make the interface non-nil.
	var mediaDeleter pipeline.ObjectDeleter
	var recordingStore recordings.ObjectStore
	if store != nil {
		mediaDeleter = store
		recordingStore = store
	}
	reconciler := pipeline.NewReconciler(pipeline.ReconcilerConfig{
		SyncUserID: cfg.Zoom.SyncUserID,
		StuckAfter: stuckAfter,
		CheckEvery: time.Duration(cfg.Pipeline.StuckCheckMinutes) * time.Minute,
		Retention:  time.Duration(cfg.Pipeline.RetentionDays) * 24 * time.Hour,
	}, recordingRepo, admission, zoomClient, mediaDeleter, logger)

	// Webhook intake
	eventRepo := webhooks.NewRepository(pool)
	webhookHandler := webhooks.NewHandler(cfg.Zoom.WebhookSecret, eventRepo, admission, logger)

	// Operator surface
	recordingHandler := recordings.NewHandler(recordingRepo, jobQueue, reconciler, recordingStore, stuckAfter, cfg.Pipeline.SyncDays, logger)
	uploadHandler := uploads.NewHandler(store, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Webhooks (no JWT; signature verified in handler when configured)
	router.POST("/webhooks/zoom", webhookHandler.HandleZoomWebhook)

	// Operator API (JWT required; reads open to both roles, mutations admin only)
	api := router.Group("/api/v1")
	api.Use(middleware.JWT(jwtService))
	{
		// Recordings
		api.GET("/recordings", recordingHandler.List)
		api.GET("/recordings/stats", recordingHandler.Stats)
		api.GET("/recordings/:id", recordingHandler.Get)
		api.POST("/recordings/:id/process", middleware.RequireRole(auth.RoleAdmin), recordingHandler.Process)
		api.POST("/recordings/process-pending", middleware.RequireRole(auth.RoleAdmin), recordingHandler.ProcessPending)
		api.POST("/recordings/sync", middleware.RequireRole(auth.RoleAdmin), recordingHandler.Sync)
		api.DELETE("/recordings/:id", middleware.RequireRole(auth.RoleAdmin), recordingHandler.Delete)

		// Host allowlist
		api.GET("/hosts", hostHandler.List)
		api.POST("/hosts", middleware.RequireRole(auth.RoleAdmin), hostHandler.Create)
		api.PATCH("/hosts/:id", middleware.RequireRole(auth.RoleAdmin), hostHandler.Update)
		api.DELETE("/hosts/:id", middleware.RequireRole(auth.RoleAdmin), hostHandler.Delete)
		api.POST("/hosts/extract", middleware.RequireRole(auth.RoleAdmin), hostHandler.Extract)

		// Direct uploads (browser multipart protocol)
		api.POST("/uploads/multipart/initiate", middleware.RequireRole(auth.RoleAdmin), uploadHandler.Initiate)
		api.POST("/uploads/multipart/sign-part", middleware.RequireRole(auth.RoleAdmin), uploadHandler.SignPart)
		api.POST("/uploads/multipart/complete", middleware.RequireRole(auth.RoleAdmin), uploadHandler.Complete)
		api.POST("/uploads/multipart/abort", middleware.RequireRole(auth.RoleAdmin), uploadHandler.Abort)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Embedded pipeline workers (download, upload, publish) and reconciler.
	// Without object storage nothing can complete, so rows stay pending and
	// the standalone cmd/worker takes over once R2 is configured.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if store != nil {
		processor := pipeline.NewProcessor(recordingRepo, downloader, store, extractor, publisher, logger)
		runner := pipeline.NewRunner(cfg.Pipeline.MaxConcurrent, jobQueue, recordingRepo, processor, logger)
		go func() {
			if err := runner.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("pipeline runner exited", zap.Error(err))
			}
		}()
		go func() {
			if err := reconciler.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reconciler exited", zap.Error(err))
			}
		}()
		logger.Info("pipeline workers started", zap.Int("workers", cfg.Pipeline.MaxConcurrent))
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
