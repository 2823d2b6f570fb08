// Package main grants a role to an existing account by email.
//
//	promote -email ana@example.com [-role admin]
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/greenway-eco/backend/config"
	"github.com/greenway-eco/backend/internal/admin"
	"github.com/greenway-eco/backend/internal/directory"
	"github.com/greenway-eco/backend/internal/identity"
	"github.com/greenway-eco/backend/internal/kvstore"
	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/pkg/database"
	"github.com/greenway-eco/backend/pkg/redis"
)

func main() {
	email := flag.String("email", "", "email of the account to promote")
	role := flag.String("role", string(models.RoleAdmin), "role to grant: user, owner or admin")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	if *email == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	var store kvstore.Store = kvstore.NewPostgres(pool)
	if cfg.Store.Backend == "redis" {
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
		store = kvstore.NewRedis(rdb.Client, cfg.Store.RedisPrefix)
	}

	jwtService := identity.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	provider := identity.NewProvider(identity.NewRepository(pool), jwtService, identity.Options{Logger: logger})
	svc := admin.NewService(provider, directory.New(store), nil, logger)

	person, err := svc.Promote(ctx, *email, models.Role(*role))
	switch {
	case errors.Is(err, admin.ErrInvalidRole):
		logger.Fatal("invalid role", zap.String("role", *role))
	case errors.Is(err, identity.ErrAccountNotFound):
		logger.Fatal("no account registered with that email", zap.String("email", *email))
	case err != nil:
		logger.Fatal("promote", zap.Error(err))
	}
	logger.Info("role granted",
		zap.String("user_id", person.UserID),
		zap.String("email", person.Email),
		zap.String("role", string(person.Role)),
		zap.String("partition", person.Partition()),
	)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
