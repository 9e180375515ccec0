package host

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/errorsx"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/processor"
	"taskhost/internal/pkg/queue"
	"taskhost/internal/pkg/schedule"
	"taskhost/internal/pkg/telemetry"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrGroupNotFound is returned when no processor definition has the given name
var ErrGroupNotFound = errors.New("processor group not found")

// Host builds processor instances from a HostConfig and owns their
// lifecycle. Start and Stop never fail: problems are logged and the rest
// of the host keeps going.
type Host struct {
	registry *Registry
	queues   queue.Resolver
	sink     telemetry.Sink
	logger   *logger.Logger

	mu           sync.Mutex
	cfg          *config.HostConfig
	maxInstances int
	started      bool
	groups       map[string][]*processor.Processor
	order        []string
	contexts     []*processor.ExecutionContext
}

// New creates a host. maxInstances <= 0 uses config.DefaultMaxInstances.
func New(cfg *config.HostConfig, maxInstances int, registry *Registry, queues queue.Resolver, sink telemetry.Sink, log *logger.Logger) *Host {
	if cfg == nil {
		cfg = &config.HostConfig{}
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = logger.NewNop()
	}
	h := &Host{
		registry:     registry,
		queues:       queues,
		logger:       log.Named("host"),
		cfg:          cfg.Clone(),
		maxInstances: normalizeMax(maxInstances),
		groups:       make(map[string][]*processor.Processor),
	}
	h.sink = telemetry.Safe(sink, func(err error) {
		h.logger.Error("Telemetry sink failure", zap.Error(err))
	})
	return h
}

func normalizeMax(n int) int {
	if n <= 0 {
		return config.DefaultMaxInstances
	}
	return n
}

// Start builds fresh instances for every definition and starts them. It
// is a no-op while the host is started.
func (h *Host) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startLocked()
}

// Stop cancels the execution contexts and stops every instance
// concurrently, waiting at most the stop timeout for each.
func (h *Host) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.stopLocked(); err != nil {
		h.logger.Warn("Host stopped with errors", zap.Error(err))
	}
}

// Reconfigure swaps the configuration and instance cap. A started host is
// stopped and started again on the new configuration.
func (h *Host) Reconfigure(cfg *config.HostConfig, maxInstances int) {
	if cfg == nil {
		cfg = &config.HostConfig{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	wasStarted := h.started
	if wasStarted {
		if err := h.stopLocked(); err != nil {
			h.logger.Warn("Host stopped with errors", zap.Error(err))
		}
	}

	h.cfg = cfg.Clone()
	h.maxInstances = normalizeMax(maxInstances)
	h.logger.Info("Host reconfigured",
		zap.Int("definitions", len(h.cfg.Processors)),
		zap.Int("max_instances", h.maxInstances),
	)

	if wasStarted {
		h.startLocked()
	}
}

// Close stops the host and releases every instance
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	err := h.stopLocked()
	h.release()
	return err
}

// Started reports whether the host is started
func (h *Host) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Configuration returns a copy of the current configuration
func (h *Host) Configuration() *config.HostConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.Clone()
}

// MaxInstances returns the current instance cap
func (h *Host) MaxInstances() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxInstances
}

// ProcessorInstances returns the instances of the last start grouped by
// definition name. Stopped instances stay listed until the next start.
func (h *Host) ProcessorInstances() map[string][]*processor.Processor {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string][]*processor.Processor, len(h.groups))
	for name, group := range h.groups {
		out[name] = append([]*processor.Processor(nil), group...)
	}
	return out
}

// Groups returns the definition names that produced instances, in
// definition order
func (h *Host) Groups() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

// StopGroup stops the instances of one definition without touching the
// shared execution contexts
func (h *Host) StopGroup(ctx context.Context, name string) error {
	h.mu.Lock()
	group, ok := h.groups[name]
	timeout := h.stopTimeout()
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}

	h.logger.Info("Stopping processor group", zap.String("group", name), zap.Int("instances", len(group)))
	return stopAll(ctx, group, timeout)
}

func (h *Host) stopTimeout() time.Duration {
	if h.cfg.StopTimeout > 0 {
		return h.cfg.StopTimeout
	}
	return processor.DefaultStopTimeout
}

func (h *Host) startLocked() {
	if h.started {
		return
	}
	h.started = true

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Host start panicked",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			h.sink.Log(telemetry.EventError, "host start panicked", fmt.Errorf("panic: %v", r))
		}
	}()

	h.build()

	started := 0
	for _, name := range h.order {
		for _, p := range h.groups[name] {
			if err := p.Start(); err != nil {
				h.logger.Error("Failed to start processor instance",
					zap.String("group", name),
					zap.String("instance", p.ID()),
					zap.Error(err),
				)
				continue
			}
			started++
		}
	}

	h.logger.Info("Host started",
		zap.Int("groups", len(h.order)),
		zap.Int("instances", started),
		zap.Int("max_instances", h.maxInstances),
	)
	h.sink.Log(telemetry.EventStarted, fmt.Sprintf("host started %d instances", started), nil)
}

func (h *Host) stopLocked() error {
	if !h.started {
		return nil
	}
	h.started = false

	h.logger.Info("Stopping host")
	for _, ec := range h.contexts {
		ec.Cancel()
	}

	var all []*processor.Processor
	for _, name := range h.order {
		all = append(all, h.groups[name]...)
	}
	err := stopAll(context.Background(), all, h.stopTimeout())

	h.logger.Info("Host stopped", zap.Int("instances", len(all)))
	h.sink.Log(telemetry.EventStopped, fmt.Sprintf("host stopped %d instances", len(all)), err)
	return err
}

// stopAll stops the instances concurrently, each bounded by timeout
func stopAll(ctx context.Context, instances []*processor.Processor, timeout time.Duration) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, p := range instances {
		wg.Add(1)
		go func(p *processor.Processor) {
			defer wg.Done()

			d := timeout
			if s := p.Settings().StopTimeout; s > 0 {
				d = s
			}
			stopCtx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			if err := p.Stop(stopCtx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("instance %s of %s: %w", p.ID(), p.Name(), err))
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return errs
}

// release drops the instances and contexts of the last start
func (h *Host) release() {
	for _, ec := range h.contexts {
		ec.Cancel()
	}
	h.contexts = nil
	h.groups = make(map[string][]*processor.Processor)
	h.order = nil
}

// build creates instances for every definition in order until the
// instance cap is spent. A definition that cannot be built is skipped
// without consuming any of the cap.
func (h *Host) build() {
	h.release()

	shared := processor.NewExecutionContext(context.Background(), h.cfg.Context.Properties, h.queues)
	h.contexts = append(h.contexts, shared)

	h.allocate(func(def config.ProcessorDefinition, n int) (int, error) {
		ec := shared
		if def.Context != nil {
			ec = processor.NewExecutionContext(context.Background(), def.Context.Properties, h.queues)
		}

		instances, err := h.instantiate(def, ec, n)
		if err != nil {
			if ec != shared {
				ec.Cancel()
			}
			return 0, err
		}
		if ec != shared {
			h.contexts = append(h.contexts, ec)
		}
		h.groups[def.Name] = instances
		h.order = append(h.order, def.Name)
		return len(instances), nil
	})
}

// allocate walks the definitions applying the instance cap. fn receives
// the number of instances granted and returns how many it used.
func (h *Host) allocate(fn func(def config.ProcessorDefinition, n int) (int, error)) {
	remaining := h.maxInstances
	for _, def := range h.cfg.Processors {
		requested := def.Instances
		if requested < 1 {
			requested = 1
		}

		n := requested
		if n > remaining {
			n = remaining
			msg := fmt.Sprintf("instance cap %d reached: definition %q gets %d of %d requested instances",
				h.maxInstances, def.Name, n, requested)
			h.logger.Warn("Instance cap reached",
				zap.String("definition", def.Name),
				zap.Int("requested", requested),
				zap.Int("allocated", n),
				zap.Int("max_instances", h.maxInstances),
			)
			h.sink.Log(telemetry.EventWarning, msg, nil)
		}
		if n == 0 {
			continue
		}

		used, err := fn(def, n)
		if err != nil {
			h.logger.Error("Skipping processor definition",
				zap.String("definition", def.Name),
				zap.String("kind", string(def.Kind)),
				zap.String("task", def.Task),
				zap.Error(err),
			)
			h.sink.Log(telemetry.EventError, fmt.Sprintf("definition %q skipped", def.Name), err)
			continue
		}
		remaining -= used
	}
}

// instantiate builds n instances of a definition. Each queue instance gets
// its own peek policy.
func (h *Host) instantiate(def config.ProcessorDefinition, ec *processor.ExecutionContext, n int) ([]*processor.Processor, error) {
	e, sched, settings, err := h.resolve(def)
	if err != nil {
		return nil, err
	}

	instances := make([]*processor.Processor, 0, n)
	for i := 0; i < n; i++ {
		var policy processor.PeekPolicy
		if def.Kind.IsQueue() {
			if policy, err = processor.NewPeekPolicy(def.PeekPolicy, settings.SleepInterval); err != nil {
				return nil, errorsx.WrapConfiguration(err)
			}
		}

		p, err := e.build(processor.Options{
			Name:       def.Name,
			Context:    ec,
			Properties: def.Properties,
			Sink:       h.sink,
			Logger:     h.logger.Named("processor"),
			SleepSlice: h.cfg.SleepSlice,
		}, policy, sched)
		if err != nil {
			return nil, err
		}
		instances = append(instances, p)
	}
	return instances, nil
}

// resolve checks everything about a definition that does not need an instance
func (h *Host) resolve(def config.ProcessorDefinition) (entry, schedule.Schedule, processor.Settings, error) {
	e, err := h.registry.lookup(def)
	if err != nil {
		return entry{}, nil, processor.Settings{}, errorsx.WrapConfiguration(err)
	}

	settings, err := processor.DecodeSettings(def.Properties)
	if err != nil {
		return entry{}, nil, processor.Settings{}, errorsx.WrapConfiguration(err)
	}

	var sched schedule.Schedule
	if def.Kind == config.KindScheduled {
		if sched, err = schedule.FromConfig(def.Schedule); err != nil {
			return entry{}, nil, processor.Settings{}, errorsx.WrapConfiguration(err)
		}
	}

	if def.Kind.IsQueue() {
		qs, err := processor.DecodeQueueSettings(def.Properties)
		if err != nil {
			return entry{}, nil, processor.Settings{}, errorsx.WrapConfiguration(err)
		}
		if h.queues == nil {
			return entry{}, nil, processor.Settings{}, errorsx.WrapConfiguration(errors.New("no queues are available"))
		}
		names := []string{qs.RequestQueue}
		if def.Kind == config.KindDualQueue && qs.ResponseQueue != "" {
			names = append(names, qs.ResponseQueue)
		}
		for _, name := range names {
			if _, err := h.queues.Resolve(name); err != nil {
				return entry{}, nil, processor.Settings{}, errorsx.WrapConfiguration(err)
			}
		}
	}

	return e, sched, settings, nil
}
