package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue implements Queue in process memory. Messages are served in
// insertion order.
type MemoryQueue struct {
	name     string
	mu       sync.Mutex
	messages []*memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	msg       Message
	visibleAt time.Time
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(name string) *MemoryQueue {
	return &MemoryQueue{
		name: name,
		now:  time.Now,
	}
}

// Name returns the queue name
func (q *MemoryQueue) Name() string {
	return q.name
}

// Peek returns up to max visible messages without hiding them
func (q *MemoryQueue) Peek(ctx context.Context, max int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.purgeLocked(now)

	var out []Message
	for _, e := range q.messages {
		if len(out) >= max {
			break
		}
		if e.visibleAt.After(now) {
			continue
		}
		m := e.msg
		m.Receipt = ""
		out = append(out, m)
	}
	return out, nil
}

// Fetch returns up to max visible messages and hides them for visibility
func (q *MemoryQueue) Fetch(ctx context.Context, max int, visibility time.Duration) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.purgeLocked(now)

	var out []Message
	for _, e := range q.messages {
		if len(out) >= max {
			break
		}
		if e.visibleAt.After(now) {
			continue
		}
		e.msg.DequeueCount++
		e.msg.Receipt = uuid.NewString()
		e.visibleAt = now.Add(visibility)
		out = append(out, e.msg)
	}
	return out, nil
}

// Delete removes a fetched message. The receipt must match the latest fetch.
func (q *MemoryQueue) Delete(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.messages {
		if e.msg.ID != msg.ID {
			continue
		}
		if msg.Receipt != "" && e.msg.Receipt != msg.Receipt {
			break
		}
		q.messages = append(q.messages[:i], q.messages[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s/%s", ErrMessageNotFound, q.name, msg.ID)
}

// Put enqueues a new, immediately visible message
func (q *MemoryQueue) Put(ctx context.Context, body string, ttl time.Duration) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	msg := Message{
		ID:         uuid.NewString(),
		Body:       body,
		InsertedAt: now,
	}
	if ttl > 0 {
		msg.ExpiresAt = now.Add(ttl)
	}
	q.messages = append(q.messages, &memoryEntry{msg: msg, visibleAt: now})
	return msg, nil
}

// Len returns the number of stored messages, visible or not
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purgeLocked(q.now())
	return len(q.messages)
}

func (q *MemoryQueue) purgeLocked(now time.Time) {
	kept := q.messages[:0]
	for _, e := range q.messages {
		if !e.msg.ExpiresAt.IsZero() && !e.msg.ExpiresAt.After(now) {
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.messages); i++ {
		q.messages[i] = nil
	}
	q.messages = kept
}
