package redis

import (
	"context"
	"crypto/tls"
	"time"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/retry"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module exports the redis module for FX
var Module = fx.Module("redis",
	fx.Provide(NewRedisClient),
	fx.Invoke(registerHooks),
)

// connectPolicy bounds the initial ping so a slow Redis does not hang startup forever
var connectPolicy = retry.ExponentialBackoff(200*time.Millisecond, 2*time.Second, true, 5)

// NewRedisClient constructs a shared Redis client. It returns a nil client
// when no address is configured; consumers treat Redis as optional.
func NewRedisClient(cfg *config.Config, log *logger.Logger) (*redisv9.Client, error) {
	if cfg.Redis.Addr == "" {
		log.Info("Redis disabled: no address configured")
		return nil, nil
	}

	opts := &redisv9.Options{
		Addr:         cfg.Redis.Addr,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  time.Duration(cfg.Redis.DialTimeoutSec) * time.Second,
		ReadTimeout:  time.Duration(cfg.Redis.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Redis.WriteTimeoutSec) * time.Second,
	}
	if cfg.Redis.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redisv9.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err := retry.Do(ctx, connectPolicy, func(ctx context.Context) (string, error) {
		return client.Ping(ctx).Result()
	}, nil)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Info("Redis client initialized", zap.String("addr", cfg.Redis.Addr))
	return client, nil
}

func registerHooks(lc fx.Lifecycle, rdb *redisv9.Client, log *logger.Logger) {
	if rdb == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("Closing Redis client")
			return rdb.Close()
		},
	})
}
