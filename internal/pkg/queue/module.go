package queue

import (
	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/logger"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module exports the queue module for FX
var Module = fx.Module("queue",
	fx.Provide(
		NewFromParams,
		func(r *Registry) Resolver { return r },
	),
)

// Params holds the dependencies for building the queue registry
type Params struct {
	fx.In

	Config *config.Config
	Logger *logger.Logger
	Redis  *redisv9.Client `optional:"true"`
}

// NewFromParams builds the registry from the configured queue declarations
func NewFromParams(p Params) (*Registry, error) {
	r, err := Build(p.Config.Queues, p.Redis, p.Config.Redis.KeyPrefix)
	if err != nil {
		return nil, err
	}
	p.Logger.Info("Queues registered", zap.Strings("queues", r.Names()))
	return r, nil
}
