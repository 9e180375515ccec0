package telemetry

import (
	"context"
	"time"

	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/redis/keys"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSink mirrors counters into Redis so several hosts can be observed
// from one place. Events are ignored. Redis errors are logged at debug level
// and dropped.
type RedisSink struct {
	client  *redisv9.Client
	prefix  string
	timeout time.Duration
	logger  *logger.Logger
}

// NewRedisSink creates a Redis counter sink
func NewRedisSink(client *redisv9.Client, prefix string, log *logger.Logger) *RedisSink {
	return &RedisSink{
		client:  client,
		prefix:  prefix,
		timeout: 500 * time.Millisecond,
		logger:  log,
	}
}

func (s *RedisSink) Log(kind EventKind, message string, err error) {}

func (s *RedisSink) Increment(instance string, c Counter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Incr(ctx, keys.MetricsKey(s.prefix, instance, string(c))).Err(); err != nil {
		s.logger.Debug("Failed to increment counter", zap.String("counter", string(c)), zap.Error(err))
	}
}

func (s *RedisSink) Set(instance string, c Counter, value int64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, keys.MetricsKey(s.prefix, instance, string(c)), value, 0).Err(); err != nil {
		s.logger.Debug("Failed to set counter", zap.String("counter", string(c)), zap.Error(err))
	}
}

// Read returns the stored value of one counter
func (s *RedisSink) Read(ctx context.Context, instance string, c Counter) (int64, error) {
	v, err := s.client.Get(ctx, keys.MetricsKey(s.prefix, instance, string(c))).Int64()
	if err == redisv9.Nil {
		return 0, nil
	}
	return v, err
}
