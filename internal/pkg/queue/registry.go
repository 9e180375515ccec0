package queue

import (
	"fmt"
	"sort"
	"sync"

	"taskhost/internal/pkg/config"

	redisv9 "github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Registry resolves configured queues by name
type Registry struct {
	mu     sync.RWMutex
	queues map[string]Queue
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]Queue)}
}

// Register adds or replaces a queue under its name
func (r *Registry) Register(q Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[q.Name()] = q
}

// Resolve returns the queue registered under name
func (r *Registry) Resolve(name string) (Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrQueueNotFound, name)
	}
	return q, nil
}

// Names returns the registered queue names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates one queue per declaration. Redis-backed declarations need a
// client.
func Build(decls []config.QueueConfig, client *redisv9.Client, prefix string) (*Registry, error) {
	r := NewRegistry()
	for _, d := range decls {
		switch d.Backend {
		case "", BackendMemory:
			r.Register(NewMemoryQueue(d.Name))
		case BackendRedis:
			if client == nil {
				return nil, fmt.Errorf("queue %q: redis backend requires a redis address", d.Name)
			}
			r.Register(NewRedisQueue(client, prefix, d.Name))
		default:
			return nil, fmt.Errorf("queue %q: unknown backend %q", d.Name, d.Backend)
		}
	}
	return r, nil
}
