package telemetry

import (
	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/logger"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module exports the telemetry module for FX
var Module = fx.Module("telemetry",
	fx.Provide(
		NewStore,
		NewSink,
	),
)

// Params holds the dependencies of the composite sink
type Params struct {
	fx.In

	Config *config.Config
	Logger *logger.Logger
	Store  *Store
	Redis  *redisv9.Client `optional:"true"`
}

// NewSink combines the log sink, the in-memory store and, when Redis is
// configured, the Redis counter mirror.
func NewSink(p Params) Sink {
	log := p.Logger.Named("processor")
	sinks := Multi{NewLogSink(log), p.Store}
	if p.Redis != nil {
		sinks = append(sinks, NewRedisSink(p.Redis, p.Config.Redis.KeyPrefix, p.Logger))
	}
	return Safe(sinks, func(err error) {
		p.Logger.Error("Telemetry sink failure", zap.Error(err))
	})
}
