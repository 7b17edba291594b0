// Package main runs the background worker: periodic analytics snapshots for
// live streams and report export jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulselive/backend/config"
	"github.com/pulselive/backend/internal/analytics"
	"github.com/pulselive/backend/internal/monetization"
	"github.com/pulselive/backend/internal/streams"
	"github.com/pulselive/backend/internal/worker"
	"github.com/pulselive/backend/pkg/database"
	"github.com/pulselive/backend/pkg/queue"
	"github.com/pulselive/backend/pkg/redis"
	"github.com/pulselive/backend/pkg/storage"
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

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReportsBucket:        cfg.AWS.ReportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	streamRepo := streams.NewRepository(pool)
	registry := streams.NewRegistry(streamRepo, nil, logger)

	monetizationRepo := monetization.NewRepository(pool)
	monetizationEngine := monetization.NewEngine(monetizationRepo, registry, nil, nil, logger)

	analyticsRepo := analytics.NewRepository(pool)
	var reportStore analytics.ReportStore
	if s3Client != nil {
		reportStore = s3Client
	}
	aggregator := analytics.NewAggregator(analyticsRepo, registry, monetizationEngine, reportStore,
		func(streamID, reportID uuid.UUID) string {
			return storage.ReportKey(streamID.String(), reportID.String())
		}, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	interval := time.Duration(cfg.Worker.SnapshotIntervalSec) * time.Second
	processor := worker.NewProcessor(aggregator, registry, jobQueue, interval, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go processor.RunScheduler(workerCtx)
	logger.Info("worker started", zap.Duration("snapshot_interval", interval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
