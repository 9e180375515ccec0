package config

import "time"

// Config holds the application configuration
type Config struct {
	Logger LoggerConfig  `mapstructure:"logger" validate:"required"`
	Redis  RedisConfig   `mapstructure:"redis"`
	Server ServerConfig  `mapstructure:"server"`
	Queues []QueueConfig `mapstructure:"queues" validate:"dive"`
	Host   HostConfig    `mapstructure:"host"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"required,oneof=json console"`
	OutputPath string `mapstructure:"output_path" validate:"required"`
}

// RedisConfig holds Redis configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr            string `mapstructure:"addr"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db" validate:"gte=0"`
	PoolSize        int    `mapstructure:"pool_size" validate:"gte=0"`
	MinIdleConns    int    `mapstructure:"min_idle_conns" validate:"gte=0"`
	DialTimeoutSec  int    `mapstructure:"dial_timeout_sec" validate:"gte=0"`
	ReadTimeoutSec  int    `mapstructure:"read_timeout_sec" validate:"gte=0"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_sec" validate:"gte=0"`
	TLS             bool   `mapstructure:"tls"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// ServerConfig holds the status API configuration
type ServerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     int    `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    int    `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// QueueConfig declares a named queue the processors can resolve
type QueueConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Backend string `mapstructure:"backend" validate:"omitempty,oneof=memory redis"`
}

// ProcessorKind selects the execution strategy of a processor definition
type ProcessorKind string

const (
	KindContinuous  ProcessorKind = "continuous"
	KindScheduled   ProcessorKind = "scheduled"
	KindSingleQueue ProcessorKind = "single-queue"
	KindDualQueue   ProcessorKind = "dual-queue"
)

// IsQueue reports whether the kind is driven by a request queue
func (k ProcessorKind) IsQueue() bool {
	return k == KindSingleQueue || k == KindDualQueue
}

// HostConfig is the settings object handed to the processor host
type HostConfig struct {
	MaxInstances int                   `mapstructure:"max_instances" validate:"gte=0"`
	StopTimeout  time.Duration         `mapstructure:"stop_timeout" validate:"gte=0"`
	SleepSlice   time.Duration         `mapstructure:"sleep_slice" validate:"gte=0"`
	Context      ContextConfig         `mapstructure:"context"`
	Processors   []ProcessorDefinition `mapstructure:"processors" validate:"dive"`
}

// ContextConfig describes an execution context
type ContextConfig struct {
	Properties map[string]any `mapstructure:"properties"`
}

// ProcessorDefinition is a named blueprint for one or more processor instances
type ProcessorDefinition struct {
	Name       string          `mapstructure:"name" validate:"required"`
	Kind       ProcessorKind   `mapstructure:"kind" validate:"required"`
	Task       string          `mapstructure:"task" validate:"required"`
	Argument   string          `mapstructure:"argument"`
	Result     string          `mapstructure:"result"`
	Instances  int             `mapstructure:"instances" validate:"gte=0"`
	Properties map[string]any  `mapstructure:"properties"`
	PeekPolicy string          `mapstructure:"peek_policy" validate:"omitempty,oneof=fixed greedy adaptive"`
	Schedule   *ScheduleConfig `mapstructure:"schedule"`
	Context    *ContextConfig  `mapstructure:"context"`
}

// ScheduleConfig describes the recurrence rule of a scheduled processor.
// Cron, when set, takes precedence over the calendar fields.
type ScheduleConfig struct {
	Frequency   string        `mapstructure:"frequency" validate:"omitempty,oneof=none month week day hour minute second"`
	Every       int           `mapstructure:"every"`
	Offset      time.Duration `mapstructure:"offset"`
	Weekdays    []string      `mapstructure:"weekdays"`
	EarliestRun *time.Time    `mapstructure:"earliest_run"`
	LatestRun   *time.Time    `mapstructure:"latest_run"`
	Cron        string        `mapstructure:"cron"`
}
