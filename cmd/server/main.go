// Package main runs the meeting scheduler HTTP server with viewer websockets and graceful shutdown.
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

	"github.com/meeting-scheduler/backend/config"
	"github.com/meeting-scheduler/backend/internal/backend"
	"github.com/meeting-scheduler/backend/internal/meetings"
	"github.com/meeting-scheduler/backend/internal/middleware"
	"github.com/meeting-scheduler/backend/internal/realtime"
	"github.com/meeting-scheduler/backend/pkg/redis"
	"github.com/meeting-scheduler/backend/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		newLogger(zapcore.InfoLevel).Fatal("load config", zap.Error(err))
	}
	level, _ := cfg.Log.ZapLevel()
	logger := newLogger(level)
	defer logger.Sync()

	ctx := context.Background()
	records, err := backend.Open(ctx, backendOptions(cfg), logger)
	if err != nil {
		logger.Fatal("open store backend", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	meetingStore := meetings.NewStore(records, meetings.Options{
		ParticipantLimit: cfg.Store.ParticipantLimit,
		ExpiryWindow:     cfg.Store.ExpiryWindow,
		Logger:           logger,
	})
	defer meetingStore.Close()

	// Viewer notifications; Redis fans them out across instances when enabled.
	var hub *realtime.Hub
	if cfg.Redis.Realtime {
		rdb, err := redis.NewClient(ctx, redisOptions(cfg), logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, pubsub, pubsub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}
	upgrader := realtime.NewUpgrader(cfg.Server.CORSAllowedOrigins)

	meetingHandler := meetings.NewHandler(meetingStore, hub, logger)

	if level != zapcore.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	meetingHandler.RegisterRoutes(router, realtime.ServeWs(hub, upgrader, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.String("backend", cfg.Store.Backend),
			zap.Bool("durable", meetingStore.Capabilities().Durable),
		)
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

func backendOptions(cfg *config.Config) backend.Options {
	return backend.Options{
		Kind:        cfg.Store.Backend,
		DataDir:     cfg.Store.DataDir,
		TableFile:   cfg.Store.TableFile,
		SQLitePath:  cfg.Store.SQLitePath,
		DatabaseURL: cfg.Database.URL,
		Redis:       redisOptions(cfg),
		S3: storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.MeetingsBucket,
			Endpoint:        cfg.AWS.Endpoint,
		},
	}
}

func redisOptions(cfg *config.Config) redis.Options {
	return redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
}

func newLogger(level zapcore.Level) *zap.Logger {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
