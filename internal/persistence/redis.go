package persistence

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/config"
)

// Redis holds the client behind the notification stream.
type Redis struct {
	Client *redis.Client
}

// NewRedis never fails: an unreachable server is logged here, and queue
// operations report their own errors later.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	r := &Redis{Client: redis.NewClient(redisOptions(cfg))}
	if err := r.Ping(ctx); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return r
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) configured() bool { return r != nil && r.Client != nil }

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.configured() {
		return checkBackend(ctx, r.Name(), func(context.Context) error { return errNotConfigured })
	}
	return checkBackend(ctx, r.Name(), func(ctx context.Context) error { return r.Client.Ping(ctx).Err() })
}

func (r *Redis) Close() {
	if r.configured() {
		_ = r.Client.Close()
	}
}
