package processor

import (
	"context"
	"errors"
	"time"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/errorsx"
)

// continuous always has work and sleeps a fixed interval between units
type continuous struct {
	p       *Processor
	factory Factory[Task]
}

// NewContinuous creates a processor running a fresh task on every iteration
func NewContinuous(opts Options, factory Factory[Task]) (*Processor, error) {
	if factory == nil {
		return nil, errorsx.WrapConfiguration(errors.New("task factory is required"))
	}
	return newProcessor(config.KindContinuous, opts, &continuous{factory: factory})
}

func (c *continuous) bind(p *Processor) error {
	c.p = p
	return nil
}

func (c *continuous) start(time.Time) {}

func (c *continuous) hasWork(context.Context) bool { return true }

func (c *continuous) execute(ctx context.Context) {
	runTask(ctx, c.p, c.factory)
}

func (c *continuous) nextDelay(bool) time.Duration {
	return c.p.settings.SleepInterval
}

// runTask runs one fresh Task as a unit of work
func runTask(ctx context.Context, p *Processor, factory Factory[Task]) {
	var task Task
	_ = p.runUnit(ctx,
		func(ctx context.Context) error {
			task = factory()
			return task.Setup(ctx, p.ec)
		},
		func(ctx context.Context) error {
			return task.Run(ctx)
		},
		func() {
			if task != nil {
				p.disposeTask(ctx, task)
			}
		},
	)
}
