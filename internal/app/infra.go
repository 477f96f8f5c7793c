package app

import (
	"context"
	"database/sql"

	"auth-gateway/internal/config"
	"auth-gateway/internal/db"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/redis"

	_ "github.com/lib/pq"
)

type Infra struct {
	DB    *sql.DB // nil when running on the in-memory store
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	var sqlDB *sql.DB

	if cfg.DatabaseDSN != "" {
		var err error
		sqlDB, err = sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, sqlDB); err != nil {
			return nil, err
		}
		logger.Info("database ready", nil)
	} else {
		logger.Warn("no DATABASE_DSN set, using in-memory user store", nil)
	}

	redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	logger.Info("redis ready", nil)

	return &Infra{
		DB:    sqlDB,
		Redis: redisClient,
	}, nil
}
