package config

import "go.uber.org/fx"

// Module exports the config module for FX
var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// ModuleFromFile is Module with an explicit config file instead of the
// default search paths
func ModuleFromFile(path string) fx.Option {
	if path == "" {
		return Module
	}
	return fx.Module("config",
		fx.Provide(func() (*Config, error) {
			return Load(path)
		}),
	)
}
