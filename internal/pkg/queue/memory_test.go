package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue() (*MemoryQueue, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)}
	q := NewMemoryQueue("orders")
	q.now = clock.now
	return q, clock
}

func TestMemoryQueue_PeekDoesNotHide(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue()

	_, err := q.Put(ctx, "a", 0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		msgs, err := q.Peek(ctx, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "a", msgs[0].Body)
		assert.Equal(t, 0, msgs[0].DequeueCount)
	}
}

func TestMemoryQueue_FetchHidesUntilVisibilityExpires(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue()

	_, _ = q.Put(ctx, "a", 0)
	_, _ = q.Put(ctx, "b", 0)

	msgs, err := q.Fetch(ctx, 1, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Body)
	assert.Equal(t, 1, msgs[0].DequeueCount)
	assert.NotEmpty(t, msgs[0].Receipt)

	msgs, err = q.Fetch(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b", msgs[0].Body)

	msgs, err = q.Fetch(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	clock.advance(31 * time.Second)
	msgs, err = q.Fetch(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 2, msgs[0].DequeueCount)
}

func TestMemoryQueue_DeleteChecksReceipt(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue()

	_, _ = q.Put(ctx, "a", 0)
	first, _ := q.Fetch(ctx, 1, time.Second)
	clock.advance(2 * time.Second)
	second, _ := q.Fetch(ctx, 1, time.Second)

	err := q.Delete(ctx, first[0])
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.Delete(ctx, second[0]))
	assert.Equal(t, 0, q.Len())

	assert.ErrorIs(t, q.Delete(ctx, second[0]), ErrMessageNotFound)
}

func TestMemoryQueue_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue()

	msg, err := q.Put(ctx, "short", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(time.Minute), msg.ExpiresAt)
	_, _ = q.Put(ctx, "forever", 0)

	clock.advance(time.Minute)
	msgs, err := q.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "forever", msgs[0].Body)
}

func TestMemoryQueue_CancelledContext(t *testing.T) {
	q, _ := newTestQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Put(ctx, "a", 0)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = q.Fetch(ctx, 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
