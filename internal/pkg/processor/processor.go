package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/errorsx"
	"taskhost/internal/pkg/logctx"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of a processor instance
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopRequested
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// strategy is what varies between processor kinds
type strategy interface {
	// bind resolves everything the strategy needs from the execution context
	bind(p *Processor) error
	// start runs on every Start before the loop
	start(now time.Time)
	hasWork(ctx context.Context) bool
	execute(ctx context.Context)
	nextDelay(foundWork bool) time.Duration
}

// Options are shared by every processor constructor
type Options struct {
	// Name is the owning definition's name, shared by sibling instances
	Name string

	// Context is the execution context; a private one is created when nil
	Context *ExecutionContext

	// Properties are decoded into Settings (and QueueSettings for queue kinds)
	Properties map[string]any

	Sink   telemetry.Sink
	Logger *logger.Logger

	// SleepSlice bounds how long a stop request can go unnoticed
	SleepSlice time.Duration
}

// Processor runs one polling loop that discovers and executes units of
// work. Units run strictly one after another.
type Processor struct {
	name     string
	id       string
	label    string
	kind     config.ProcessorKind
	ec       *ExecutionContext
	settings Settings
	slice    time.Duration
	strategy strategy
	sink     telemetry.Sink
	logger   *logger.Logger
	now      func() time.Time

	mu            sync.Mutex
	state         atomic.Int32
	stopRequested atomic.Bool
	stopCh        chan struct{}
	done          chan struct{}

	processed    atomic.Int64
	failed       atomic.Int64
	lastDuration atomic.Int64
	lastRun      atomic.Int64
}

func newProcessor(kind config.ProcessorKind, opts Options, s strategy) (*Processor, error) {
	if opts.Name == "" {
		return nil, errorsx.WrapConfiguration(errors.New("processor name is required"))
	}
	settings, err := DecodeSettings(opts.Properties)
	if err != nil {
		return nil, errorsx.WrapConfiguration(err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	ec := opts.Context
	if ec == nil {
		ec = NewExecutionContext(context.Background(), opts.Properties, nil)
	}
	slice := opts.SleepSlice
	if slice <= 0 {
		slice = DefaultSleepSlice
	}

	id := uuid.NewString()
	p := &Processor{
		name:     opts.Name,
		id:       id,
		label:    opts.Name + "/" + id[:8],
		kind:     kind,
		ec:       ec,
		settings: settings,
		slice:    slice,
		strategy: s,
		logger:   log.With(zap.String("processor", opts.Name), zap.String("instance", id)),
		now:      time.Now,
	}
	p.sink = telemetry.Safe(opts.Sink, func(err error) {
		p.logger.Error("Telemetry sink failure", zap.Error(err))
	})

	if err := s.bind(p); err != nil {
		return nil, errorsx.WrapConfiguration(fmt.Errorf("processor %q: %w", opts.Name, err))
	}
	return p, nil
}

func (p *Processor) Name() string               { return p.name }
func (p *Processor) ID() string                 { return p.id }
func (p *Processor) Kind() config.ProcessorKind { return p.kind }
func (p *Processor) Settings() Settings         { return p.settings }

// Context returns the execution context the instance is bound to
func (p *Processor) Context() *ExecutionContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ec
}

func (p *Processor) State() State {
	return State(p.state.Load())
}

// Start launches the polling loop. A stopped processor must be
// reconfigured first.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateRunning, StateStopRequested:
		return ErrAlreadyRunning
	case StateStopped:
		return ErrStopped
	}

	p.strategy.start(p.now())
	p.stopRequested.Store(false)
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.state.Store(int32(StateRunning))

	ctx := logctx.WithInstance(logctx.WithProcessor(p.ec.Context(), p.name), p.id)
	go p.loop(ctx, p.stopCh, p.done)

	p.sink.Log(telemetry.EventStarted, p.label+": started", nil)
	return nil
}

// Stop asks the loop to finish its current iteration and waits for it
// until ctx expires. On timeout the loop keeps running to completion in
// the background and ctx's error is returned.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	switch p.State() {
	case StateIdle:
		p.state.Store(int32(StateStopped))
		p.mu.Unlock()
		return nil
	case StateRunning:
		p.stopRequested.Store(true)
		p.state.Store(int32(StateStopRequested))
		close(p.stopCh)
	}
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("Processor stop timeout exceeded", zap.Error(ctx.Err()))
		p.sink.Log(telemetry.EventWarning, p.label+": stop timed out, loop still finishing", ctx.Err())
		return ctx.Err()
	}
}

// Done is closed when the current loop exits; nil before the first Start
func (p *Processor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Reconfigure moves an idle or stopped processor back to idle, optionally
// binding it to a new execution context.
func (p *Processor) Reconfigure(ec *ExecutionContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateRunning, StateStopRequested:
		return ErrAlreadyRunning
	}
	if ec != nil {
		p.ec = ec
	}
	if err := p.strategy.bind(p); err != nil {
		return errorsx.WrapConfiguration(fmt.Errorf("processor %q: %w", p.name, err))
	}
	p.state.Store(int32(StateIdle))
	return nil
}

func (p *Processor) loop(ctx context.Context, stopCh <-chan struct{}, done chan struct{}) {
	defer func() {
		p.state.Store(int32(StateStopped))
		p.sink.Log(telemetry.EventStopped, p.label+": stopped", nil)
		close(done)
	}()

	for !p.stopping(ctx) {
		found := p.iterate(ctx)
		if !p.sleep(ctx, stopCh, p.strategy.nextDelay(found)) {
			return
		}
	}
}

// iterate runs one has-work/execute step; a panic outside a unit of work
// is reported and the loop carries on
func (p *Processor) iterate(ctx context.Context) (found bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Polling iteration panicked",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			p.sink.Log(telemetry.EventError, p.label+": polling iteration panicked", fmt.Errorf("panic recovered: %v", r))
		}
	}()

	found = p.strategy.hasWork(ctx)
	if found && !p.stopRequested.Load() {
		p.strategy.execute(ctx)
	}
	return found
}

func (p *Processor) stopping(ctx context.Context) bool {
	return p.stopRequested.Load() || ctx.Err() != nil
}

// sleep waits d in slices and reports whether the loop should go on
func (p *Processor) sleep(ctx context.Context, stopCh <-chan struct{}, d time.Duration) bool {
	for d > 0 {
		step := p.slice
		if d < step {
			step = d
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-stopCh:
			timer.Stop()
			return false
		case <-timer.C:
		}
		d -= step
	}
	return !p.stopping(ctx)
}

// runUnit runs one unit of work: setup, then run after a cancellation
// check, then dispose whatever happened. Failures are classified,
// counted and reported, and returned for the caller's bookkeeping only.
// A unit reached after a stop request is skipped without being counted.
func (p *Processor) runUnit(ctx context.Context, setup, run func(context.Context) error, dispose func()) error {
	if p.stopping(ctx) {
		return errStopRequested
	}

	start := p.now()
	err := p.guard(ctx, func() error {
		if err := setup(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return errorsx.WrapCancelled(err)
		}
		return run(ctx)
	})
	if dispose != nil {
		dispose()
	}
	elapsed := p.now().Sub(start)

	p.lastDuration.Store(int64(elapsed))
	p.lastRun.Store(start.UnixNano())
	p.sink.Set(p.id, telemetry.LastDurationMs, elapsed.Milliseconds())

	if err == nil {
		p.processed.Add(1)
		p.sink.Increment(p.id, telemetry.Processed)
		p.sink.Increment(p.id, telemetry.ProcessedPerSec)
		p.sink.Log(telemetry.EventProcessed, fmt.Sprintf("%s: processed in %s", p.label, elapsed), nil)
		return nil
	}

	p.failed.Add(1)
	p.sink.Increment(p.id, telemetry.Failed)
	p.sink.Increment(p.id, telemetry.FailedPerSec)
	if errorsx.IsCancelled(err) || ctx.Err() != nil {
		p.sink.Log(telemetry.EventInterrupted, fmt.Sprintf("%s: interrupted after %s", p.label, elapsed), err)
	} else {
		p.sink.Log(telemetry.EventFailed, fmt.Sprintf("%s: failed after %s", p.label, elapsed), err)
	}
	return err
}

// guard converts a panic in fn into an error
func (p *Processor) guard(ctx context.Context, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fields := append(logctx.Fields(ctx),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			p.logger.Error("Task panicked", fields...)
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	return fn()
}

// disposeTask disposes t if it holds resources; failures are only reported
func (p *Processor) disposeTask(ctx context.Context, t any) {
	d, ok := t.(Disposer)
	if !ok {
		return
	}
	if err := p.guard(ctx, d.Dispose); err != nil {
		p.sink.Log(telemetry.EventWarning, p.label+": dispose failed", err)
	}
}

// report sends an infrastructure error to the sink unless the loop is shutting down
func (p *Processor) report(ctx context.Context, message string, err error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	p.sink.Log(telemetry.EventError, p.label+": "+message, err)
}

// Stats is a point-in-time view of an instance
type Stats struct {
	Name           string     `json:"name"`
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	State          string     `json:"state"`
	Processed      int64      `json:"processed"`
	Failed         int64      `json:"failed"`
	LastDurationMs int64      `json:"last_duration_ms"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
}

// Stats reads the instance counters; safe to call from any goroutine
func (p *Processor) Stats() Stats {
	s := Stats{
		Name:           p.name,
		ID:             p.id,
		Kind:           string(p.kind),
		State:          p.State().String(),
		Processed:      p.processed.Load(),
		Failed:         p.failed.Load(),
		LastDurationMs: time.Duration(p.lastDuration.Load()).Milliseconds(),
	}
	if ns := p.lastRun.Load(); ns != 0 {
		t := time.Unix(0, ns)
		s.LastRun = &t
	}
	if r, ok := p.strategy.(interface{ nextRun() time.Time }); ok {
		t := r.nextRun()
		s.NextRun = &t
	}
	return s
}
