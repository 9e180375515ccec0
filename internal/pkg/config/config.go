package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultMaxInstances caps the total number of processor instances a host creates
const DefaultMaxInstances = 256

// NewConfig loads configuration from the default search paths,
// environment variables and defaults
func NewConfig() (*Config, error) {
	return Load("")
}

// Load loads configuration from the given file. An empty path searches
// ./config and the working directory for config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist, we'll use defaults and env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Enable environment variable overrides
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Decode decodes a loosely typed map (processor properties, context
// properties) into target using the same hooks as the config loader.
func Decode(input map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook:       decodeHook(),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	return decoder.Decode(input)
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output_path", "stdout")

	// Redis defaults
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout_sec", 5)
	v.SetDefault("redis.read_timeout_sec", 3)
	v.SetDefault("redis.write_timeout_sec", 3)
	v.SetDefault("redis.key_prefix", "taskhost")

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.shutdown_timeout", 10)

	// Host defaults
	v.SetDefault("host.max_instances", DefaultMaxInstances)
	v.SetDefault("host.stop_timeout", "10s")
	v.SetDefault("host.sleep_slice", "100ms")
}

var validate = validator.New()

// Validate checks struct tags and cross-field rules
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	return validateConfig(cfg)
}

// validateConfig validates the rules struct tags cannot express
func validateConfig(cfg *Config) error {
	queues := make(map[string]struct{}, len(cfg.Queues))
	for _, q := range cfg.Queues {
		if _, dup := queues[q.Name]; dup {
			return fmt.Errorf("duplicate queue name: %s", q.Name)
		}
		if q.Backend == "redis" && cfg.Redis.Addr == "" {
			return fmt.Errorf("queue %s uses the redis backend but redis.addr is empty", q.Name)
		}
		queues[q.Name] = struct{}{}
	}

	return cfg.Host.Validate()
}

// Validate checks the host configuration on its own, so that
// configurations built in code get the same checks as loaded ones
func (h *HostConfig) Validate() error {
	names := make(map[string]struct{}, len(h.Processors))
	for _, def := range h.Processors {
		if _, dup := names[def.Name]; dup {
			return fmt.Errorf("duplicate processor name: %s", def.Name)
		}
		names[def.Name] = struct{}{}

		if def.Kind == KindScheduled && def.Schedule == nil {
			return fmt.Errorf("processor %s: scheduled processors require a schedule", def.Name)
		}
	}
	return nil
}
