package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/errorsx"
	"taskhost/internal/pkg/schedule"
)

// scheduled runs a task whenever the schedule's next run comes due
type scheduled struct {
	p        *Processor
	schedule schedule.Schedule
	factory  Factory[Task]
	next     atomic.Value
}

// NewScheduled creates a processor running a fresh task at each run of s
func NewScheduled(opts Options, s schedule.Schedule, factory Factory[Task]) (*Processor, error) {
	if s == nil {
		return nil, errorsx.WrapConfiguration(errors.New("schedule is required"))
	}
	if factory == nil {
		return nil, errorsx.WrapConfiguration(errors.New("task factory is required"))
	}
	st := &scheduled{schedule: s, factory: factory}
	st.next.Store(schedule.Never)
	return newProcessor(config.KindScheduled, opts, st)
}

func (s *scheduled) bind(p *Processor) error {
	s.p = p
	return nil
}

func (s *scheduled) start(now time.Time) {
	s.next.Store(s.schedule.NextRun(now))
}

func (s *scheduled) nextRun() time.Time {
	return s.next.Load().(time.Time)
}

func (s *scheduled) hasWork(context.Context) bool {
	return !s.nextRun().After(s.p.now())
}

// execute runs the task and always moves the next run forward, so a
// failing run cannot make the schedule fire in a tight loop
func (s *scheduled) execute(ctx context.Context) {
	defer func() {
		if o, ok := s.schedule.(schedule.OneShot); ok && o.RunsOnce() {
			s.next.Store(schedule.Never)
			return
		}
		s.next.Store(s.schedule.NextRun(s.p.now()))
	}()
	runTask(ctx, s.p, s.factory)
}

// nextDelay sleeps the configured interval, waking early for a due run.
// Without an interval it sleeps until the next run.
func (s *scheduled) nextDelay(bool) time.Duration {
	d := s.p.settings.SleepInterval
	if until := s.nextRun().Sub(s.p.now()); d <= 0 || until < d {
		d = until
	}
	if d < 0 {
		d = 0
	}
	return d
}
