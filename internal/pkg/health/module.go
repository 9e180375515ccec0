package health

import (
	"taskhost/internal/pkg/host"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/queue"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Module exports the health module for FX
var Module = fx.Module("health",
	fx.Provide(NewHealthService),
)

// Params defines the dependencies for the health service
type Params struct {
	fx.In

	Logger *logger.Logger
	Host   *host.Host
	Queues *queue.Registry
	Redis  *redisv9.Client `optional:"true"`
}

// NewHealthService constructs the health service with the processor host
// as its critical provider
func NewHealthService(p Params) *Service {
	s := NewService(DefaultTimeout)
	s.Register(NewHostProvider("processors", p.Host), true)
	s.Register(NewQueueProvider(p.Queues), false)

	if p.Redis != nil {
		s.Register(NewRedisProvider(p.Redis, 0), false)
		p.Logger.Info("Registered Redis health provider")
	}

	p.Logger.Info("Health service initialized")
	return s
}
