package taskhost

import (
	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/health"
	"taskhost/internal/pkg/host"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/queue"
	"taskhost/internal/pkg/redis"
	"taskhost/internal/pkg/server"
	"taskhost/internal/pkg/telemetry"

	"go.uber.org/fx"
)

// App provides the full service: the processor host, its queues and
// telemetry, plus the status API. An empty configPath searches the
// default locations.
func App(configPath string) fx.Option {
	return fx.Options(
		infrastructure(configPath),
		telemetry.Module,
		fx.Provide(NewTaskRegistry),
		host.Module,
		health.Module,
		server.Module,
	)
}

// PlanApp provides a host that is never started, for dry runs
func PlanApp(configPath string) fx.Option {
	return fx.Options(
		infrastructure(configPath),
		telemetry.Module,
		fx.Provide(
			NewTaskRegistry,
			host.NewFromParams,
		),
	)
}

// QueueApp provides only the configured queues
func QueueApp(configPath string) fx.Option {
	return infrastructure(configPath)
}

func infrastructure(configPath string) fx.Option {
	return fx.Options(
		config.ModuleFromFile(configPath),
		logger.Module,
		redis.Module,
		queue.Module,
	)
}
