// Package main runs the live engagement HTTP server with WebSocket fan-out
// and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulselive/backend/config"
	"github.com/pulselive/backend/internal/analytics"
	"github.com/pulselive/backend/internal/auth"
	"github.com/pulselive/backend/internal/broadcast"
	"github.com/pulselive/backend/internal/engagement"
	"github.com/pulselive/backend/internal/middleware"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/internal/monetization"
	"github.com/pulselive/backend/internal/polls"
	"github.com/pulselive/backend/internal/streams"
	"github.com/pulselive/backend/pkg/database"
	"github.com/pulselive/backend/pkg/queue"
	"github.com/pulselive/backend/pkg/redis"
	"github.com/pulselive/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

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

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	bridge := broadcast.NewRedisBridge(rdb.Client, logger)
	hub := broadcast.NewHub(logger, bridge)

	// Streams
	streamRepo := streams.NewRepository(pool)
	registry := streams.NewRegistry(streamRepo, hub, logger)
	streamHandler := streams.NewHandler(registry)

	// Viewer counts follow the hub's subscriber groups.
	hub.SetAudienceChangeHandler(func(streamID uuid.UUID, count int) {
		if _, err := registry.UpdateViewerCount(context.Background(), streamID, count, time.Now()); err != nil {
			logger.Debug("viewer count update skipped", zap.String("stream_id", streamID.String()), zap.Error(err))
		}
	})

	// A finished stream gets its report exported in the background.
	registry.SetStreamEndedHandler(func(streamID uuid.UUID) {
		if err := jobQueue.EnqueueReportExport(context.Background(), queue.ReportPayload{StreamID: streamID}); err != nil {
			logger.Warn("report export enqueue failed", zap.String("stream_id", streamID.String()), zap.Error(err))
		}
	})

	// Engagement
	engagementRepo := engagement.NewRepository(pool)
	ledger := engagement.NewLedger(engagementRepo, registry, hub, logger)
	engagementHandler := engagement.NewHandler(ledger)

	// Polls
	pollRepo := polls.NewRepository(pool)
	pollEngine := polls.NewEngine(pollRepo, registry, hub, logger)
	pollHandler := polls.NewHandler(pollEngine)

	// Monetization
	fees := monetization.FeeSchedule{
		models.RevenueDonation:     cfg.Fees.DonationBps,
		models.RevenueSuperChat:    cfg.Fees.SuperChatBps,
		models.RevenueSubscription: cfg.Fees.SubscriptionBps,
	}
	monetizationRepo := monetization.NewRepository(pool)
	monetizationEngine := monetization.NewEngine(monetizationRepo, registry, fees, hub, logger)
	monetizationHandler := monetization.NewHandler(monetizationEngine, logger)

	// Analytics
	analyticsRepo := analytics.NewRepository(pool)
	var reportStore analytics.ReportStore
	if s3Client != nil {
		reportStore = s3Client
	}
	aggregator := analytics.NewAggregator(analyticsRepo, registry, monetizationEngine, reportStore,
		func(streamID, reportID uuid.UUID) string {
			return storage.ReportKey(streamID.String(), reportID.String())
		}, logger)
	analyticsHandler := analytics.NewHandler(aggregator, logger)

	wsValidate := func(token string) (uuid.UUID, string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", err
		}
		return claims.UserID, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Streams
		api.POST("/streams", middleware.RequireRole("creator", "admin"), streamHandler.Create)
		api.GET("/streams", streamHandler.ListLive)
		api.GET("/streams/:id", streamHandler.Get)
		api.POST("/streams/:id/start", streamHandler.Start)
		api.POST("/streams/:id/stop", streamHandler.Stop)
		api.POST("/streams/:id/pause", streamHandler.Pause)
		api.POST("/streams/:id/resume", streamHandler.Resume)
		api.POST("/streams/:id/cancel", streamHandler.Cancel)
		api.PUT("/streams/:id/viewers", streamHandler.UpdateViewers)
		api.PATCH("/streams/:id/chat", streamHandler.SetChatEnabled)

		// Engagement
		api.POST("/streams/:id/chat", engagementHandler.PostChat)
		api.GET("/streams/:id/chat", engagementHandler.ListChat)
		api.POST("/streams/:id/reactions", engagementHandler.AddReaction)
		api.DELETE("/streams/:id/reactions", engagementHandler.RemoveReaction)
		api.GET("/streams/:id/reactions", engagementHandler.ListReactions)

		// Polls
		api.POST("/streams/:id/polls", pollHandler.Create)
		api.GET("/streams/:id/polls", pollHandler.ListByStream)
		api.POST("/polls/:id/vote", pollHandler.Vote)
		api.POST("/polls/:id/close", pollHandler.Close)
		api.GET("/polls/:id/stats", pollHandler.Stats)

		// Monetization
		api.POST("/streams/:id/donations", monetizationHandler.Donate)
		api.POST("/streams/:id/superchats", monetizationHandler.SuperChat)
		api.POST("/streams/:id/subscriptions", monetizationHandler.Subscribe)
		api.GET("/streams/:id/revenue", monetizationHandler.Revenue)

		// Analytics
		api.GET("/streams/:id/analytics/snapshots", analyticsHandler.Snapshots)
		api.GET("/streams/:id/analytics/report", analyticsHandler.Report)
		api.POST("/streams/:id/analytics/export", analyticsHandler.Export)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", broadcast.ServeWS(hub, logger, wsValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
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
