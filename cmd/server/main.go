// Package main runs the Greenway HTTP server with WebSocket chat and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/greenway-eco/backend/config"
	"github.com/greenway-eco/backend/internal/accounts"
	"github.com/greenway-eco/backend/internal/admin"
	"github.com/greenway-eco/backend/internal/chat"
	"github.com/greenway-eco/backend/internal/chatbot"
	"github.com/greenway-eco/backend/internal/directory"
	"github.com/greenway-eco/backend/internal/identity"
	"github.com/greenway-eco/backend/internal/kvstore"
	"github.com/greenway-eco/backend/internal/listings"
	"github.com/greenway-eco/backend/internal/middleware"
	"github.com/greenway-eco/backend/internal/session"
	"github.com/greenway-eco/backend/pkg/database"
	"github.com/greenway-eco/backend/pkg/queue"
	"github.com/greenway-eco/backend/pkg/redis"
	"github.com/greenway-eco/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.ImagesBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ImagesBucket:    cfg.AWS.ImagesBucket,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	var store kvstore.Store
	switch cfg.Store.Backend {
	case "redis":
		store = kvstore.NewRedis(rdb.Client, cfg.Store.RedisPrefix)
	default:
		store = kvstore.NewPostgres(pool)
	}
	logger.Info("node store ready", zap.String("backend", cfg.Store.Backend))

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Identity provider and sessions
	jwtService := identity.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	provider := identity.NewProvider(identity.NewRepository(pool), jwtService, identity.Options{
		Resets:           identity.NewRedisResetStore(rdb.Client),
		Mailer:           jobQueue,
		ResetURLTemplate: cfg.Email.ResetURLTemplate,
		Logger:           logger,
	})
	resolver := session.NewResolver(provider)

	metrics, err := middleware.NewMetrics(middleware.MetricsOptions{
		Registerer: prometheus.DefaultRegisterer,
		Namespace:  "greenway",
	})
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	profiles := directory.New(store)

	// Listings
	var cleaner listings.ImageCleaner
	var uploader listings.ImageUploader
	if s3Client != nil {
		cleaner = listings.NewQueueCleaner(jobQueue, s3Client.Bucket(), s3Client.Region(), logger)
		uploader = s3Client
	}
	listingManager := listings.NewManager(store, cleaner, logger).WithDenialObserver(metrics)
	if s3Client != nil {
		listingManager.WithImageBucket(s3Client.Bucket(), s3Client.Region())
	}
	listingHandler := listings.NewHandler(listingManager, uploader, logger)

	// Chat
	redisPubSub := chat.NewRedisPubSub(rdb.Client, logger)
	hub := chat.NewHub(logger, redisPubSub, redisPubSub)
	chatHandler := chat.NewHandler(hub, chat.NewRepository(store), profiles, resolver, logger)

	// Chatbot (disabled without an API key)
	var bot chatbot.Asker
	if cfg.OpenAI.APIKey != "" {
		bot = chatbot.NewOpenAI(cfg.OpenAI.APIKey, chatbot.Options{
			Model:     cfg.OpenAI.Model,
			MaxTokens: cfg.OpenAI.MaxTokens,
			Logger:    logger,
		})
	} else {
		logger.Warn("chatbot disabled: OPENAI_API_KEY not set")
	}

	accountHandler := accounts.NewHandler(provider, profiles, cfg.Server.SecureCookies, cfg.JWT.ExpireHours*3600, logger)
	adminHandler := admin.NewHandler(admin.NewService(provider, profiles, listingManager, logger), logger)

	router := newRouter(handlers{
		resolver: resolver,
		metrics:  metrics,
		accounts: accountHandler,
		listings: listingHandler,
		chat:     chatHandler,
		chatbot:  chatbot.NewHandler(bot),
		admin:    adminHandler,
		ready: map[string]func(context.Context) error{
			"postgres": pool.Ping,
			"redis":    rdb.Ready,
		},
	}, cfg.Server.CORSAllowedOrigins, logger)

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
