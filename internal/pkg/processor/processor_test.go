package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"taskhost/internal/pkg/errorsx"
	"taskhost/internal/pkg/logctx"
	"taskhost/internal/pkg/schedule"
	"taskhost/internal/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinuous_CountsProcessedRuns(t *testing.T) {
	sink := newRecordingSink()
	ec := newTestContext(t, nil, nil)

	var runs atomic.Int32
	p, err := NewContinuous(Options{
		Name:       "counter",
		Context:    ec,
		Properties: map[string]any{"sleep_interval": "1ms"},
		Sink:       sink,
	}, func() Task {
		return TaskFunc(func(ctx context.Context) error {
			if runs.Add(1) == 3 {
				ec.Cancel()
			}
			return nil
		})
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	waitDone(t, p)

	stats := p.Stats()
	assert.Equal(t, int64(3), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, StateStopped.String(), stats.State)
	assert.NotNil(t, stats.LastRun)

	assert.Equal(t, int64(3), sink.counter(p.ID(), telemetry.Processed))
	assert.Equal(t, int64(0), sink.counter(p.ID(), telemetry.Failed))
	assert.Equal(t, 1, sink.count(telemetry.EventStarted))
	assert.Equal(t, 1, sink.count(telemetry.EventStopped))
}

func TestContinuous_FailuresNeverStopTheLoop(t *testing.T) {
	sink := newRecordingSink()
	ec := newTestContext(t, nil, nil)

	var runs atomic.Int32
	p, err := NewContinuous(Options{
		Name:       "flaky",
		Context:    ec,
		Properties: map[string]any{"sleep_interval": "1ms"},
		Sink:       sink,
	}, func() Task {
		return TaskFunc(func(ctx context.Context) error {
			switch runs.Add(1) {
			case 1:
				return errors.New("boom")
			case 2:
				panic("kaboom")
			case 3:
				return errorsx.WrapCancelled(errors.New("aborted"))
			default:
				ec.Cancel()
				return nil
			}
		})
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	waitDone(t, p)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(3), stats.Failed)
	assert.Equal(t, 2, sink.count(telemetry.EventFailed))
	assert.Equal(t, 1, sink.count(telemetry.EventInterrupted))
	assert.Equal(t, int64(3), sink.counter(p.ID(), telemetry.Failed))
	assert.Equal(t, int64(3), sink.counter(p.ID(), telemetry.FailedPerSec))
}

type disposable struct {
	Base
	disposed *atomic.Int32
	fail     bool
}

func (d *disposable) Run(ctx context.Context) error {
	if d.fail {
		return errors.New("run failed")
	}
	return nil
}

func (d *disposable) Dispose() error {
	d.disposed.Add(1)
	return nil
}

func TestContinuous_DisposesAfterEveryRun(t *testing.T) {
	ec := newTestContext(t, nil, nil)

	var disposed atomic.Int32
	var built atomic.Int32
	p, err := NewContinuous(Options{
		Name:       "disposing",
		Context:    ec,
		Properties: map[string]any{"sleep_interval": "1ms"},
	}, func() Task {
		n := built.Add(1)
		if n == 4 {
			ec.Cancel()
		}
		return &disposable{disposed: &disposed, fail: n%2 == 0}
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	waitDone(t, p)

	assert.Equal(t, built.Load(), disposed.Load())
}

func TestProcessor_StopIsResponsiveDuringLongSleep(t *testing.T) {
	ec := newTestContext(t, nil, nil)
	ran := make(chan struct{}, 1)

	p, err := NewContinuous(Options{
		Name:       "sleepy",
		Context:    ec,
		Properties: map[string]any{"sleep_interval": "5s"},
	}, func() Task {
		return TaskFunc(func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		})
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	<-ran

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	begin := time.Now()
	require.NoError(t, p.Stop(ctx))
	assert.Less(t, time.Since(begin), 300*time.Millisecond)
	assert.Equal(t, StateStopped, p.State())
	assert.False(t, ec.Cancelled(), "stopping an instance must not cancel the shared context")
}

func TestProcessor_StopTimeoutLeavesLoopRunning(t *testing.T) {
	ec := newTestContext(t, nil, nil)
	entered := make(chan struct{})
	release := make(chan struct{})

	p, err := NewContinuous(Options{Name: "stubborn", Context: ec}, func() Task {
		return TaskFunc(func(ctx context.Context) error {
			close(entered)
			<-release
			return nil
		})
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = p.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateStopRequested, p.State())
	assert.ErrorIs(t, p.Start(), ErrAlreadyRunning)

	close(release)
	waitDone(t, p)
	assert.Equal(t, StateStopped, p.State())
	assert.Equal(t, int64(1), p.Stats().Processed)
}

func TestProcessor_Lifecycle(t *testing.T) {
	ec := newTestContext(t, nil, nil)
	p, err := NewContinuous(Options{
		Name:       "cycle",
		Context:    ec,
		Properties: map[string]any{"sleep_interval": "10ms"},
	}, func() Task {
		return TaskFunc(func(ctx context.Context) error { return nil })
	})
	require.NoError(t, err)
	stopOnCleanup(t, p)
	assert.Equal(t, StateIdle, p.State())

	require.NoError(t, p.Start())
	assert.ErrorIs(t, p.Start(), ErrAlreadyRunning)
	assert.ErrorIs(t, p.Reconfigure(nil), ErrAlreadyRunning)

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, StateStopped, p.State())
	assert.ErrorIs(t, p.Start(), ErrStopped)

	// a second stop is a no-op
	require.NoError(t, p.Stop(context.Background()))

	other := newTestContext(t, nil, nil)
	require.NoError(t, p.Reconfigure(other))
	assert.Same(t, other, p.Context())
	assert.Equal(t, StateIdle, p.State())
	require.NoError(t, p.Start())
	assert.Equal(t, StateRunning, p.State())
}

func TestProcessor_StopBeforeStart(t *testing.T) {
	p, err := NewContinuous(Options{Name: "idle"}, func() Task {
		return TaskFunc(func(ctx context.Context) error { return nil })
	})
	require.NoError(t, err)
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, StateStopped, p.State())
}

func TestProcessor_TaskContextCarriesIdentity(t *testing.T) {
	ec := newTestContext(t, nil, nil)
	seen := make(chan [2]string, 1)

	p, err := NewContinuous(Options{Name: "tagged", Context: ec}, func() Task {
		return TaskFunc(func(ctx context.Context) error {
			name, _ := logctx.Processor(ctx)
			id, _ := logctx.Instance(ctx)
			ec.Cancel()
			seen <- [2]string{name, id}
			return nil
		})
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	waitDone(t, p)

	got := <-seen
	assert.Equal(t, "tagged", got[0])
	assert.Equal(t, p.ID(), got[1])
}

type panickingSink struct{}

func (panickingSink) Log(telemetry.EventKind, string, error) { panic("log") }
func (panickingSink) Increment(string, telemetry.Counter)    { panic("increment") }
func (panickingSink) Set(string, telemetry.Counter, int64)   { panic("set") }

func TestProcessor_BrokenSinkIsHarmless(t *testing.T) {
	ec := newTestContext(t, nil, nil)
	var runs atomic.Int32
	p, err := NewContinuous(Options{
		Name:       "sink",
		Context:    ec,
		Properties: map[string]any{"sleep_interval": "1ms"},
		Sink:       panickingSink{},
	}, func() Task {
		return TaskFunc(func(ctx context.Context) error {
			if runs.Add(1) == 2 {
				ec.Cancel()
			}
			return nil
		})
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())
	waitDone(t, p)
	assert.Equal(t, int64(2), p.Stats().Processed)
}

func TestScheduled_RunOnceSchedule(t *testing.T) {
	ec := newTestContext(t, nil, nil)
	once, err := schedule.New(schedule.None, 1, 0)
	require.NoError(t, err)

	var runs atomic.Int32
	p, err := NewScheduled(Options{
		Name:       "once",
		Context:    ec,
		Properties: map[string]any{"sleep_interval": "5ms"},
	}, once, func() Task {
		return TaskFunc(func(ctx context.Context) error {
			runs.Add(1)
			return nil
		})
	})
	require.NoError(t, err)
	stopOnCleanup(t, p)
	require.NoError(t, p.Start())

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	next := p.Stats().NextRun
	require.NotNil(t, next)
	assert.True(t, next.Equal(schedule.Never))
}

// stepSchedule is due immediately the first time, then an hour after each run
type stepSchedule struct{ calls atomic.Int32 }

func (s *stepSchedule) NextRun(from time.Time) time.Time {
	if s.calls.Add(1) == 1 {
		return from
	}
	return from.Add(time.Hour)
}

func (s *stepSchedule) String() string { return "step" }

func TestScheduled_FailingRunStillAdvances(t *testing.T) {
	sink := newRecordingSink()
	ec := newTestContext(t, nil, nil)

	var runs atomic.Int32
	p, err := NewScheduled(Options{
		Name:       "failing",
		Context:    ec,
		Properties: map[string]any{"sleep_interval": "5ms"},
		Sink:       sink,
	}, &stepSchedule{}, func() Task {
		return TaskFunc(func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("report backend down")
		})
	})
	require.NoError(t, err)
	stopOnCleanup(t, p)
	require.NoError(t, p.Start())

	assert.Eventually(t, func() bool { return sink.count(telemetry.EventFailed) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	next := p.Stats().NextRun
	require.NotNil(t, next)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *next, time.Minute)
}

func TestScheduled_IdlesUntilNextRunWithoutInterval(t *testing.T) {
	daily, err := schedule.New(schedule.Day, 1, 0)
	require.NoError(t, err)
	once, err := schedule.New(schedule.None, 1, 0)
	require.NoError(t, err)

	for name, s := range map[string]schedule.Schedule{"daily": daily, "spent run-once": once} {
		t.Run(name, func(t *testing.T) {
			ec := newTestContext(t, nil, nil)
			p, err := NewScheduled(Options{
				Name:       "idle",
				Context:    ec,
				Properties: map[string]any{"sleep_interval": "0s"},
				SleepSlice: 10 * time.Millisecond,
			}, s, func() Task {
				return TaskFunc(func(ctx context.Context) error { return nil })
			})
			require.NoError(t, err)

			var reads atomic.Int64
			p.now = func() time.Time {
				reads.Add(1)
				return time.Now()
			}
			stopOnCleanup(t, p)
			require.NoError(t, p.Start())

			time.Sleep(200 * time.Millisecond)
			assert.Less(t, reads.Load(), int64(20))
			assert.Equal(t, StateRunning, p.State())
		})
	}
}

func TestNewScheduled_RequiresSchedule(t *testing.T) {
	_, err := NewScheduled(Options{Name: "x"}, nil, func() Task { return nil })
	assert.True(t, errorsx.IsConfiguration(err))

	_, err = NewContinuous(Options{Name: "x"}, nil)
	assert.True(t, errorsx.IsConfiguration(err))

	_, err = NewContinuous(Options{}, func() Task { return nil })
	assert.True(t, errorsx.IsConfiguration(err))
}
