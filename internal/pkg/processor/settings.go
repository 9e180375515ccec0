package processor

import (
	"fmt"
	"strconv"
	"time"

	"taskhost/internal/pkg/config"

	"github.com/spf13/cast"
)

const (
	DefaultSleepInterval     = time.Second
	DefaultStopTimeout       = 10 * time.Second
	DefaultSleepSlice        = 100 * time.Millisecond
	DefaultVisibilityTimeout = 30 * time.Second
	DefaultBatchSize         = 1
)

// Settings are the per-instance properties every processor understands
type Settings struct {
	// SleepInterval is the wait between iterations of continuous and
	// scheduled processors, and the adaptive target of queue processors
	SleepInterval time.Duration `mapstructure:"sleep_interval"`

	// StopTimeout bounds how long the host waits for the instance to stop;
	// zero leaves it to the host default
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// QueueSettings are the extra properties of queue-driven processors
type QueueSettings struct {
	RequestQueue      string        `mapstructure:"request_queue"`
	ResponseQueue     string        `mapstructure:"response_queue"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	BatchSize         int           `mapstructure:"batch_size"`

	// MaxDequeueCount drops messages fetched more often than this; <= 0 disables it
	MaxDequeueCount int `mapstructure:"max_dequeue_count"`

	// SkipPeek fetches eagerly instead of peeking before each fetch
	SkipPeek    bool          `mapstructure:"skip_peek"`
	ResponseTTL time.Duration `mapstructure:"response_ttl"`
}

// durationUnits gives the unit of duration properties written as bare
// numbers; strings such as "30s" carry their own unit
var durationUnits = map[string]time.Duration{
	"sleep_interval":     time.Millisecond,
	"stop_timeout":       time.Millisecond,
	"visibility_timeout": time.Second,
	"response_ttl":       time.Second,
}

// withDurationUnits returns a copy of props where numeric duration
// properties are converted to time.Duration in their unit
func withDurationUnits(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
		unit, ok := durationUnits[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case nil, time.Duration:
		case string:
			// "30s" is left to the duration hook; "30" comes from env overrides
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				out[k] = time.Duration(n * float64(unit))
			}
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			n, err := cast.ToFloat64E(val)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", k, err)
			}
			out[k] = time.Duration(n * float64(unit))
		default:
			return nil, fmt.Errorf("property %s: unsupported duration value %v (%T)", k, v, v)
		}
	}
	return out, nil
}

// DecodeSettings reads Settings from instance properties, applying defaults
func DecodeSettings(props map[string]any) (Settings, error) {
	s := Settings{SleepInterval: DefaultSleepInterval}
	props, err := withDurationUnits(props)
	if err != nil {
		return s, fmt.Errorf("invalid processor properties: %w", err)
	}
	if err := config.Decode(props, &s); err != nil {
		return s, fmt.Errorf("invalid processor properties: %w", err)
	}
	if s.SleepInterval < 0 {
		s.SleepInterval = 0
	}
	if s.StopTimeout < 0 {
		s.StopTimeout = 0
	}
	return s, nil
}

// DecodeQueueSettings reads QueueSettings from instance properties
func DecodeQueueSettings(props map[string]any) (QueueSettings, error) {
	s := QueueSettings{
		VisibilityTimeout: DefaultVisibilityTimeout,
		BatchSize:         DefaultBatchSize,
	}
	props, err := withDurationUnits(props)
	if err != nil {
		return s, fmt.Errorf("invalid queue properties: %w", err)
	}
	if err := config.Decode(props, &s); err != nil {
		return s, fmt.Errorf("invalid queue properties: %w", err)
	}
	if s.RequestQueue == "" {
		return s, fmt.Errorf("request_queue is required")
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.VisibilityTimeout <= 0 {
		s.VisibilityTimeout = DefaultVisibilityTimeout
	}
	return s, nil
}
