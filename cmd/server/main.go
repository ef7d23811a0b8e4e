// Package main runs the meeting platform HTTP server: webhook intake, transfer
// inspection, meeting participation, and session token endpoints.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nimbusmeet/backend/config"
	"github.com/nimbusmeet/backend/internal/auth"
	"github.com/nimbusmeet/backend/internal/meetings"
	"github.com/nimbusmeet/backend/internal/middleware"
	"github.com/nimbusmeet/backend/internal/recordings"
	"github.com/nimbusmeet/backend/pkg/database"
	"github.com/nimbusmeet/backend/pkg/queue"
	"github.com/nimbusmeet/backend/pkg/redis"
	"github.com/nimbusmeet/backend/pkg/response"
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

	jobQueue := queue.New(rdb.Client, queue.Options{
		MaxAttempts:   cfg.Transfer.MaxAttempts,
		BackoffBase:   cfg.Transfer.BackoffBase,
		CompletedKept: cfg.Transfer.CompletedKept,
		FailedKept:    cfg.Transfer.FailedKept,
		Retention:     cfg.Transfer.RetentionWindow,
	}, logger)

	// Meetings
	meetingRepo := meetings.NewRepository(pool)
	meetingHandler := meetings.NewHandler(meetingRepo, logger)

	// Recordings (webhook intake + pipeline inspection)
	eventLog := recordings.NewEventLog(100)
	webhookHandler := recordings.NewWebhookHandler(jobQueue, eventLog, cfg.Webhook.SecretToken, logger)
	transferHandler := recordings.NewHandler(jobQueue, eventLog, logger)

	// Session tokens
	tokenService := auth.NewTokenService(cfg.Token.SDKKey, cfg.Token.SDKSecret, cfg.Token.ExpireHours)
	authHandler := auth.NewHandler(tokenService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("/api")
	{
		// Webhooks (no auth; signature validated in handler when configured)
		api.POST("/webhooks/recordings", webhookHandler.HandleEvent)

		// Transfer pipeline inspection
		api.GET("/transfers/stats", transferHandler.Stats)
		api.GET("/transfers/jobs/:id", transferHandler.GetJob)
		api.GET("/transfers/events", transferHandler.Events)
		api.DELETE("/transfers/events", transferHandler.ClearEvents)

		// Meeting participation
		api.POST("/meetings/:name/join", meetingHandler.Join)
		api.POST("/meetings/:name/leave", meetingHandler.Leave)
		api.POST("/meetings/:name/end", meetingHandler.End)
		api.GET("/meetings/:name", meetingHandler.Get)
		api.GET("/meetings/:name/participants", meetingHandler.Participants)

		// Video SDK session tokens
		api.POST("/token", authHandler.SessionToken)
	}

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
