// Package main runs the transfer worker: it drains the recording transfer
// queue, streams files from the provider into S3, and reconciles meeting
// records.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nimbusmeet/backend/config"
	"github.com/nimbusmeet/backend/internal/meetings"
	"github.com/nimbusmeet/backend/internal/transfer"
	"github.com/nimbusmeet/backend/internal/worker"
	"github.com/nimbusmeet/backend/pkg/database"
	"github.com/nimbusmeet/backend/pkg/queue"
	"github.com/nimbusmeet/backend/pkg/redis"
	"github.com/nimbusmeet/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	strategy := storage.StrategyStreaming
	if cfg.Transfer.BufferedUploads {
		strategy = storage.StrategyBuffered
	}
	store, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Bucket:          cfg.AWS.RecordingsBucket,
	}, strategy, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jobQueue := queue.New(rdb.Client, queue.Options{
		MaxAttempts:   cfg.Transfer.MaxAttempts,
		BackoffBase:   cfg.Transfer.BackoffBase,
		CompletedKept: cfg.Transfer.CompletedKept,
		FailedKept:    cfg.Transfer.FailedKept,
		Retention:     cfg.Transfer.RetentionWindow,
	}, logger)

	uploader := transfer.NewUploader(store, transfer.UploaderConfig{
		FolderPrefix: cfg.Transfer.FolderPrefix,
		FileTimeout:  cfg.Transfer.FileTimeout,
		SourceTag:    "transfer-worker",
	}, logger)
	orchestrator := transfer.NewOrchestrator(uploader, logger)

	meetingRepo := meetings.NewRepository(pool)
	processor := worker.NewProcessor(orchestrator, meetingRepo, logger)
	workers := worker.NewPool(jobQueue, processor, cfg.Transfer.Concurrency, logger)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go jobQueue.RunMaintenance(runCtx)

	logger.Info("worker started",
		zap.Int("concurrency", cfg.Transfer.Concurrency),
		zap.String("bucket", cfg.AWS.RecordingsBucket),
		zap.String("strategy", string(strategy)))

	// Run blocks until runCtx is cancelled, then drains in-flight jobs.
	workers.Run(runCtx)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
