package health

import (
	"context"
	"time"

	"taskhost/internal/pkg/queue"
)

// QueueLister lists and resolves the configured queues
type QueueLister interface {
	queue.Resolver
	Names() []string
}

// QueueProvider peeks every configured queue; an unreachable backend
// makes it DOWN
type QueueProvider struct {
	queues QueueLister
}

// NewQueueProvider creates a queue health provider
func NewQueueProvider(queues QueueLister) *QueueProvider {
	return &QueueProvider{queues: queues}
}

func (p *QueueProvider) Name() string { return "queues" }

func (p *QueueProvider) Check(ctx context.Context) Result {
	result := Result{
		Name:      p.Name(),
		Status:    StatusUp,
		Details:   make(map[string]any),
		CheckedAt: time.Now(),
	}

	for _, name := range p.queues.Names() {
		q, err := p.queues.Resolve(name)
		if err == nil {
			_, err = q.Peek(ctx, 1)
		}
		if err != nil {
			result.Status = StatusDown
			result.Error = "queue " + name + ": " + err.Error()
			result.Details[name] = "unreachable"
			continue
		}
		result.Details[name] = "ok"
	}
	return result
}
