package host

import (
	"context"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/queue"
	"taskhost/internal/pkg/telemetry"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module exports the host module for FX. The task Registry is supplied by
// the application.
var Module = fx.Module("host",
	fx.Provide(NewFromParams),
	fx.Invoke(registerHooks),
)

// Params holds the dependencies of the host
type Params struct {
	fx.In

	Config   *config.Config
	Registry *Registry
	Queues   queue.Resolver
	Sink     telemetry.Sink
	Logger   *logger.Logger
}

// NewFromParams creates a host from the loaded configuration
func NewFromParams(p Params) *Host {
	return New(&p.Config.Host, p.Config.Host.MaxInstances, p.Registry, p.Queues, p.Sink, p.Logger)
}

func registerHooks(lc fx.Lifecycle, h *Host, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			h.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := h.Close(); err != nil {
				log.Warn("Processor host closed with errors", zap.Error(err))
			}
			return nil
		},
	})
}
