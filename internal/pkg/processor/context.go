package processor

import (
	"context"
	"fmt"
	"strings"

	"taskhost/internal/pkg/queue"

	"github.com/spf13/cast"
)

// ExecutionContext is shared by every processor instance built from one
// definition (or by every definition without its own context). It carries
// the cancellation signal, a read-mostly property bag and the queue resolver.
type ExecutionContext struct {
	ctx        context.Context
	cancel     context.CancelFunc
	properties map[string]any
	queues     queue.Resolver
}

// NewExecutionContext derives a cancellable context from parent. The
// properties map is owned by the execution context afterwards.
func NewExecutionContext(parent context.Context, properties map[string]any, queues queue.Resolver) *ExecutionContext {
	if parent == nil {
		parent = context.Background()
	}
	if properties == nil {
		properties = map[string]any{}
	}
	ctx, cancel := context.WithCancel(parent)
	return &ExecutionContext{
		ctx:        ctx,
		cancel:     cancel,
		properties: properties,
		queues:     queues,
	}
}

// Context returns the context cancelled when the execution context is
func (ec *ExecutionContext) Context() context.Context {
	return ec.ctx
}

// Cancel broadcasts cancellation to every instance sharing ec
func (ec *ExecutionContext) Cancel() {
	ec.cancel()
}

func (ec *ExecutionContext) Cancelled() bool {
	return ec.ctx.Err() != nil
}

// Property looks key up exactly, then case-insensitively. Config loaders
// lowercase map keys, so "PeekWaitTime" must also find "peekwaittime".
func (ec *ExecutionContext) Property(key string) (any, bool) {
	if ec == nil {
		return nil, false
	}
	if v, ok := ec.properties[key]; ok {
		return v, true
	}
	for k, v := range ec.properties {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// Int returns an integer property, or def when absent or not numeric
func (ec *ExecutionContext) Int(key string, def int) int {
	v, ok := ec.Property(key)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// String returns a string property, or def when absent
func (ec *ExecutionContext) String(key, def string) string {
	v, ok := ec.Property(key)
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// Properties returns a shallow copy of the property bag
func (ec *ExecutionContext) Properties() map[string]any {
	out := make(map[string]any, len(ec.properties))
	for k, v := range ec.properties {
		out[k] = v
	}
	return out
}

// Queue resolves a queue through the injected resolver
func (ec *ExecutionContext) Queue(name string) (queue.Queue, error) {
	if ec.queues == nil {
		return nil, fmt.Errorf("%w: %q (no resolver)", queue.ErrQueueNotFound, name)
	}
	return ec.queues.Resolve(name)
}
