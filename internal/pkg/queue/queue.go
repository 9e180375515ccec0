package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueNotFound is returned by a Resolver for an unknown queue name
	ErrQueueNotFound = errors.New("queue not found")

	// ErrMessageNotFound is returned when deleting a message that is gone or
	// whose receipt is stale because another consumer fetched it since
	ErrMessageNotFound = errors.New("message not found")

	// ErrBackendUnavailable wraps failures of the storage behind a queue
	ErrBackendUnavailable = errors.New("queue backend unavailable")
)

// Message is one queued payload
type Message struct {
	ID string

	// Body is the raw payload; converters turn it into task arguments
	Body string

	// DequeueCount is how many times the message has been fetched
	DequeueCount int

	// Receipt identifies the fetch that produced this copy; empty for peeked messages
	Receipt string

	InsertedAt time.Time

	// ExpiresAt is zero when the message never expires
	ExpiresAt time.Time
}

// Queue is a visibility-timeout message queue
type Queue interface {
	// Name returns the queue name
	Name() string

	// Peek returns up to max visible messages without hiding them
	Peek(ctx context.Context, max int) ([]Message, error)

	// Fetch returns up to max visible messages and hides them for visibility.
	// Each fetched message has its dequeue count incremented.
	Fetch(ctx context.Context, max int, visibility time.Duration) ([]Message, error)

	// Delete removes a fetched message
	Delete(ctx context.Context, msg Message) error

	// Put enqueues a new message. A ttl <= 0 keeps it until deleted.
	Put(ctx context.Context, body string, ttl time.Duration) (Message, error)
}

// Resolver resolves queue names to queues
type Resolver interface {
	Resolve(name string) (Queue, error)
}
