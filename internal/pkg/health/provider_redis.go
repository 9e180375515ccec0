package health

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// RedisProvider checks Redis with a PING and reports pool statistics
type RedisProvider struct {
	name     string
	client   redisv9.UniversalClient
	degraded time.Duration
}

// NewRedisProvider creates a Redis health provider. Pings slower than
// degraded report DEGRADED; zero uses 100ms.
func NewRedisProvider(client redisv9.UniversalClient, degraded time.Duration) *RedisProvider {
	if degraded <= 0 {
		degraded = 100 * time.Millisecond
	}
	return &RedisProvider{name: "redis", client: client, degraded: degraded}
}

func (p *RedisProvider) Name() string {
	return p.name
}

func (p *RedisProvider) Check(ctx context.Context) Result {
	result := Result{
		Name:      p.name,
		CheckedAt: time.Now(),
		Details:   make(map[string]any),
	}

	start := time.Now()
	err := p.client.Ping(ctx).Err()
	latency := time.Since(start)
	result.Details["latency_ms"] = latency.Milliseconds()

	if err != nil {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("failed to ping redis: %v", err)
		return result
	}

	if client, ok := p.client.(*redisv9.Client); ok {
		stats := client.PoolStats()
		result.Details["total_conns"] = stats.TotalConns
		result.Details["idle_conns"] = stats.IdleConns
		result.Details["pool_timeouts"] = stats.Timeouts
	}

	if latency > p.degraded {
		result.Status = StatusDegraded
		result.Details["message"] = "high latency detected"
		return result
	}

	result.Status = StatusUp
	return result
}
