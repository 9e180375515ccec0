package processor

import (
	"context"
	"testing"
	"time"

	"taskhost/internal/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionContext_Properties(t *testing.T) {
	ec := newTestContext(t, map[string]any{
		"peekwaittime": "250",
		"Region":       "eu-west",
		"bad":          []string{"x"},
	}, nil)

	assert.Equal(t, 250, ec.Int("PeekWaitTime", 0))
	assert.Equal(t, 7, ec.Int("missing", 7))
	assert.Equal(t, 7, ec.Int("bad", 7))
	assert.Equal(t, "eu-west", ec.String("region", ""))

	props := ec.Properties()
	props["Region"] = "mutated"
	assert.Equal(t, "eu-west", ec.String("Region", ""))
}

func TestExecutionContext_CancelBroadcasts(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()

	ec := NewExecutionContext(parent, nil, nil)
	assert.False(t, ec.Cancelled())

	ec.Cancel()
	assert.True(t, ec.Cancelled())
	select {
	case <-ec.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
	assert.NoError(t, parent.Err())
}

func TestExecutionContext_Queue(t *testing.T) {
	ec := newTestContext(t, nil, nil)
	_, err := ec.Queue("anything")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)

	r := queue.NewRegistry()
	r.Register(queue.NewMemoryQueue("jobs"))
	ec = newTestContext(t, nil, r)
	q, err := ec.Queue("jobs")
	require.NoError(t, err)
	assert.Equal(t, "jobs", q.Name())
}

func TestDecodeSettings(t *testing.T) {
	s, err := DecodeSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSleepInterval, s.SleepInterval)
	assert.Zero(t, s.StopTimeout)

	s, err = DecodeSettings(map[string]any{"sleep_interval": "250ms", "stop_timeout": "2s", "unrelated": 1})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, s.SleepInterval)
	assert.Equal(t, 2*time.Second, s.StopTimeout)

	qs, err := DecodeQueueSettings(map[string]any{
		"request_queue":     "in",
		"max_dequeue_count": "5",
		"skip_peek":         "true",
		"batch_size":        0,
	})
	require.NoError(t, err)
	assert.Equal(t, "in", qs.RequestQueue)
	assert.Equal(t, 5, qs.MaxDequeueCount)
	assert.True(t, qs.SkipPeek)
	assert.Equal(t, DefaultBatchSize, qs.BatchSize)
	assert.Equal(t, DefaultVisibilityTimeout, qs.VisibilityTimeout)
}

func TestDecodeSettings_NumericDurations(t *testing.T) {
	s, err := DecodeSettings(map[string]any{"sleep_interval": 5000, "stop_timeout": 1500.0})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, s.SleepInterval)
	assert.Equal(t, 1500*time.Millisecond, s.StopTimeout)

	// environment overrides arrive as strings
	s, err = DecodeSettings(map[string]any{"sleep_interval": "250"})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, s.SleepInterval)

	qs, err := DecodeQueueSettings(map[string]any{
		"request_queue":      "q",
		"visibility_timeout": 30,
		"response_ttl":       int64(3600),
	})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, qs.VisibilityTimeout)
	assert.Equal(t, time.Hour, qs.ResponseTTL)

	qs, err = DecodeQueueSettings(map[string]any{"request_queue": "q", "visibility_timeout": "45s"})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, qs.VisibilityTimeout)

	_, err = DecodeSettings(map[string]any{"sleep_interval": []int{1}})
	assert.Error(t, err)
}
