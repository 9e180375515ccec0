package host

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/processor"
	"taskhost/internal/pkg/queue"
	"taskhost/internal/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type eventSink struct {
	mu     sync.Mutex
	events map[telemetry.EventKind][]string
}

func newEventSink() *eventSink {
	return &eventSink{events: make(map[telemetry.EventKind][]string)}
}

func (s *eventSink) Log(kind telemetry.EventKind, message string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[kind] = append(s.events[kind], message)
}

func (s *eventSink) Increment(string, telemetry.Counter)  {}
func (s *eventSink) Set(string, telemetry.Counter, int64) {}

func (s *eventSink) messages(kind telemetry.EventKind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events[kind]...)
}

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.Wrap(zap.New(core)), logs
}

func idleRegistry(t *testing.T, runs *atomic.Int64) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterContinuous(r, "idle", func() processor.Task {
		return processor.TaskFunc(func(ctx context.Context) error {
			if runs != nil {
				runs.Add(1)
			}
			return nil
		})
	}))
	return r
}

func continuousDef(name string, instances int) config.ProcessorDefinition {
	return config.ProcessorDefinition{
		Name:       name,
		Kind:       config.KindContinuous,
		Task:       "idle",
		Instances:  instances,
		Properties: map[string]any{"sleep_interval": "1h"},
	}
}

func TestHost_InstanceCapTruncatesWithWarning(t *testing.T) {
	log, logs := observedLogger()
	sink := newEventSink()

	h := New(&config.HostConfig{
		Processors: []config.ProcessorDefinition{continuousDef("crowd", 300)},
	}, 256, idleRegistry(t, nil), nil, sink, log)
	h.Start()
	t.Cleanup(func() { _ = h.Close() })

	instances := h.ProcessorInstances()["crowd"]
	assert.Len(t, instances, 256)
	assert.Equal(t, 1, logs.FilterMessage("Instance cap reached").Len())

	warnings := sink.messages(telemetry.EventWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "256 of 300")

	ids := make(map[string]struct{}, len(instances))
	for _, p := range instances {
		assert.Equal(t, "crowd", p.Name())
		ids[p.ID()] = struct{}{}
	}
	assert.Len(t, ids, 256)
}

func TestHost_InstanceCapAcrossDefinitions(t *testing.T) {
	log, logs := observedLogger()
	sink := newEventSink()

	h := New(&config.HostConfig{
		Processors: []config.ProcessorDefinition{
			continuousDef("first", 200),
			continuousDef("second", 100),
		},
	}, 256, idleRegistry(t, nil), nil, sink, log)
	h.Start()
	t.Cleanup(func() { _ = h.Close() })

	groups := h.ProcessorInstances()
	assert.Len(t, groups["first"], 200)
	assert.Len(t, groups["second"], 56)
	assert.Equal(t, 256, len(groups["first"])+len(groups["second"]))

	entries := logs.FilterMessage("Instance cap reached").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].ContextMap()["definition"])

	warnings := sink.messages(telemetry.EventWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"second" gets 56 of 100`)
}

func TestHost_PlanSpendsCapInDefinitionOrder(t *testing.T) {
	h := New(&config.HostConfig{
		Processors: []config.ProcessorDefinition{
			continuousDef("a", 3),
			continuousDef("b", 3),
			continuousDef("c", 0),
		},
	}, 5, idleRegistry(t, nil), nil, nil, nil)

	plan := h.Plan()
	require.Len(t, plan, 3)
	assert.Equal(t, 3, plan[0].Allocated)
	assert.Equal(t, 2, plan[1].Allocated)
	assert.Equal(t, 1, plan[2].Requested)
	assert.Equal(t, 0, plan[2].Allocated)
	assert.Empty(t, h.ProcessorInstances(), "plan must not create instances")
}

func TestHost_BrokenDefinitionDoesNotConsumeCap(t *testing.T) {
	log, logs := observedLogger()
	sink := newEventSink()

	h := New(&config.HostConfig{
		Processors: []config.ProcessorDefinition{
			{Name: "ghost", Kind: config.KindContinuous, Task: "missing", Instances: 2},
			continuousDef("real", 2),
		},
	}, 2, idleRegistry(t, nil), nil, sink, log)
	h.Start()
	t.Cleanup(func() { _ = h.Close() })

	groups := h.ProcessorInstances()
	assert.NotContains(t, groups, "ghost")
	assert.Len(t, groups["real"], 2)
	assert.Equal(t, []string{"real"}, h.Groups())
	assert.Equal(t, 1, logs.FilterMessage("Skipping processor definition").Len())
	assert.Len(t, sink.messages(telemetry.EventError), 1)

	plan := h.Plan()
	assert.Contains(t, plan[0].Error, ErrTaskNotFound.Error())
	assert.Equal(t, 2, plan[1].Allocated)
}

func TestHost_StartStop(t *testing.T) {
	var runs atomic.Int64
	h := New(&config.HostConfig{
		StopTimeout: time.Second,
		Processors: []config.ProcessorDefinition{{
			Name:       "spin",
			Kind:       config.KindContinuous,
			Task:       "idle",
			Instances:  2,
			Properties: map[string]any{"sleep_interval": "5ms"},
		}},
	}, 0, idleRegistry(t, &runs), nil, nil, nil)

	h.Start()
	assert.True(t, h.Started())
	assert.Eventually(t, func() bool { return runs.Load() >= 4 }, time.Second, 5*time.Millisecond)

	first := h.ProcessorInstances()["spin"]
	h.Start() // no-op while started
	assert.Equal(t, first, h.ProcessorInstances()["spin"])

	begin := time.Now()
	h.Stop()
	assert.Less(t, time.Since(begin), 500*time.Millisecond)
	assert.False(t, h.Started())
	for _, p := range first {
		assert.Equal(t, processor.StateStopped, p.State())
		assert.True(t, p.Context().Cancelled())
	}

	// a restart builds fresh instances
	h.Start()
	second := h.ProcessorInstances()["spin"]
	require.Len(t, second, 2)
	assert.NotEqual(t, first[0].ID(), second[0].ID())
	assert.False(t, second[0].Context().Cancelled())
	require.NoError(t, h.Close())
	assert.Empty(t, h.ProcessorInstances())
}

func TestHost_DefinitionContextOverridesShared(t *testing.T) {
	h := New(&config.HostConfig{
		Context: config.ContextConfig{Properties: map[string]any{"region": "shared"}},
		Processors: []config.ProcessorDefinition{
			continuousDef("plain", 1),
			func() config.ProcessorDefinition {
				def := continuousDef("special", 1)
				def.Context = &config.ContextConfig{Properties: map[string]any{"region": "own"}}
				return def
			}(),
		},
	}, 0, idleRegistry(t, nil), nil, nil, nil)
	h.Start()
	t.Cleanup(func() { _ = h.Close() })

	groups := h.ProcessorInstances()
	assert.Equal(t, "shared", groups["plain"][0].Context().String("region", ""))
	assert.Equal(t, "own", groups["special"][0].Context().String("region", ""))
}

func TestHost_ReconfigureRestartsOnNewConfiguration(t *testing.T) {
	h := New(&config.HostConfig{
		Processors: []config.ProcessorDefinition{continuousDef("old", 1)},
	}, 0, idleRegistry(t, nil), nil, nil, nil)
	h.Start()
	t.Cleanup(func() { _ = h.Close() })
	old := h.ProcessorInstances()["old"][0]

	h.Reconfigure(&config.HostConfig{
		Processors: []config.ProcessorDefinition{continuousDef("new", 3)},
	}, 2)

	assert.True(t, h.Started())
	assert.Equal(t, processor.StateStopped, old.State())
	groups := h.ProcessorInstances()
	assert.NotContains(t, groups, "old")
	assert.Len(t, groups["new"], 2)
	assert.Equal(t, 2, h.MaxInstances())
}

func TestHost_ConfigurationIsACopy(t *testing.T) {
	original := &config.HostConfig{
		Processors: []config.ProcessorDefinition{continuousDef("a", 1)},
	}
	h := New(original, 0, idleRegistry(t, nil), nil, nil, nil)

	original.Processors[0].Name = "changed by caller"
	got := h.Configuration()
	assert.Equal(t, "a", got.Processors[0].Name)

	got.Processors[0].Properties["sleep_interval"] = "1ms"
	assert.Equal(t, "1h", h.Configuration().Processors[0].Properties["sleep_interval"])
	assert.Equal(t, config.DefaultMaxInstances, h.MaxInstances())
}

func TestHost_QueueDefinitions(t *testing.T) {
	queues := queue.NewRegistry()
	in := queue.NewMemoryQueue("in")
	out := queue.NewMemoryQueue("out")
	queues.Register(in)
	queues.Register(out)

	r := NewRegistry()
	require.NoError(t, RegisterResultQueueTask(r, "upper", ResultQueueTask[string, string]{
		Factory: func() processor.ResultTask[string, string] {
			return processor.ResultFunc[string, string](func(ctx context.Context, arg string) (string, error) {
				return strings.ToUpper(arg), nil
			})
		},
		Converter: processor.StringConverter,
		Encoder:   processor.StringEncoder,
	}))

	h := New(&config.HostConfig{
		Processors: []config.ProcessorDefinition{{
			Name:       "shout",
			Kind:       config.KindDualQueue,
			Task:       "upper",
			Argument:   "string",
			Result:     "string",
			Instances:  2,
			PeekPolicy: processor.PolicyGreedy,
			Properties: map[string]any{"request_queue": "in", "response_queue": "out"},
		}},
	}, 0, r, queues, nil, nil)

	ctx := context.Background()
	_, err := in.Put(ctx, "hello", 0)
	require.NoError(t, err)
	_, err = in.Put(ctx, "world", 0)
	require.NoError(t, err)

	h.Start()
	t.Cleanup(func() { _ = h.Close() })

	assert.Eventually(t, func() bool { return out.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, in.Len())

	msgs, err := out.Peek(ctx, 10)
	require.NoError(t, err)
	var bodies []string
	for _, m := range msgs {
		bodies = append(bodies, m.Body)
	}
	assert.ElementsMatch(t, []string{"HELLO", "WORLD"}, bodies)
}

func TestHost_QueueDefinitionErrors(t *testing.T) {
	queues := queue.NewRegistry()
	queues.Register(queue.NewMemoryQueue("in"))

	r := NewRegistry()
	require.NoError(t, RegisterQueueTask(r, "sink", QueueTask[string]{
		Factory: func() processor.ArgumentTask[string] {
			return processor.ArgumentFunc[string](func(ctx context.Context, arg string) error { return nil })
		},
		Converter: processor.StringConverter,
	}))

	h := New(&config.HostConfig{
		Processors: []config.ProcessorDefinition{
			{Name: "wrong-type", Kind: config.KindSingleQueue, Task: "sink", Argument: "int",
				Properties: map[string]any{"request_queue": "in"}},
			{Name: "no-queue", Kind: config.KindSingleQueue, Task: "sink",
				Properties: map[string]any{"request_queue": "missing"}},
			{Name: "wrong-kind", Kind: config.KindDualQueue, Task: "sink",
				Properties: map[string]any{"request_queue": "in", "response_queue": "in"}},
			{Name: "ok", Kind: config.KindSingleQueue, Task: "sink", Argument: "string",
				Properties: map[string]any{"request_queue": "in"}},
		},
	}, 0, r, queues, nil, nil)

	plan := h.Plan()
	require.Len(t, plan, 4)
	assert.Contains(t, plan[0].Error, ErrTypeMismatch.Error())
	assert.Contains(t, plan[1].Error, queue.ErrQueueNotFound.Error())
	assert.Contains(t, plan[2].Error, ErrTaskNotFound.Error())
	assert.Empty(t, plan[3].Error)
	assert.Equal(t, 1, plan[3].Allocated)
	assert.Equal(t, processor.PolicyAdaptive, plan[3].PeekPolicy)
}

func TestHost_StopGroup(t *testing.T) {
	h := New(&config.HostConfig{
		Processors: []config.ProcessorDefinition{continuousDef("a", 2), continuousDef("b", 1)},
	}, 0, idleRegistry(t, nil), nil, nil, nil)
	h.Start()
	t.Cleanup(func() { _ = h.Close() })

	assert.ErrorIs(t, h.StopGroup(context.Background(), "nope"), ErrGroupNotFound)
	require.NoError(t, h.StopGroup(context.Background(), "a"))

	groups := h.ProcessorInstances()
	for _, p := range groups["a"] {
		assert.Equal(t, processor.StateStopped, p.State())
		assert.False(t, p.Context().Cancelled())
	}
	assert.Equal(t, processor.StateRunning, groups["b"][0].State())
}

func TestRegistry(t *testing.T) {
	r := idleRegistry(t, nil)
	assert.ErrorIs(t, RegisterContinuous(r, "idle", nil), ErrTaskAlreadyRegistered)
	require.NoError(t, RegisterScheduled(r, "idle", nil))
	require.NoError(t, RegisterQueueTask(r, "json", QueueTask[map[string]any]{
		Converter: processor.JSONConverter[map[string]any](),
	}))

	tasks := r.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, config.KindContinuous, tasks[0].Kind)
	assert.Equal(t, config.KindScheduled, tasks[1].Kind)
	assert.Equal(t, "map[string]interface {}", tasks[2].Argument)

	_, err := r.lookup(config.ProcessorDefinition{Kind: config.KindScheduled, Task: "idle"})
	assert.NoError(t, err)
	_, err = r.lookup(config.ProcessorDefinition{Kind: config.KindDualQueue, Task: "idle"})
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
