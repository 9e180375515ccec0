package host

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/processor"
	"taskhost/internal/pkg/schedule"
)

var (
	// ErrTaskNotFound is returned when a definition names an unregistered task
	ErrTaskNotFound = errors.New("task not registered")
	// ErrTaskAlreadyRegistered is returned when a task name is registered twice for one kind
	ErrTaskAlreadyRegistered = errors.New("task already registered")
	// ErrTypeMismatch is returned when a definition declares argument or
	// result types the registered task does not take
	ErrTypeMismatch = errors.New("task type mismatch")
)

// constructor builds one processor instance. policy is nil for
// non-queue kinds and sched is nil for non-scheduled kinds.
type constructor func(opts processor.Options, policy processor.PeekPolicy, sched schedule.Schedule) (*processor.Processor, error)

type entry struct {
	kind     config.ProcessorKind
	task     string
	argument string
	result   string
	build    constructor
}

// TaskInfo describes a registered task
type TaskInfo struct {
	Kind     config.ProcessorKind `json:"kind" yaml:"kind"`
	Task     string               `json:"task" yaml:"task"`
	Argument string               `json:"argument,omitempty" yaml:"argument,omitempty"`
	Result   string               `json:"result,omitempty" yaml:"result,omitempty"`
}

// Registry maps (kind, task name) to the constructor of a processor
// running that task. Definitions refer to tasks by name; the registry is
// the only place where names become code.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func registryKey(kind config.ProcessorKind, task string) string {
	return string(kind) + "/" + task
}

func (r *Registry) add(e entry) error {
	if e.task == "" {
		return errors.New("task name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(e.kind, e.task)
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, key)
	}
	r.entries[key] = e
	return nil
}

// RegisterContinuous registers a task run back to back by continuous processors
func RegisterContinuous(r *Registry, name string, factory processor.Factory[processor.Task]) error {
	return r.add(entry{
		kind: config.KindContinuous,
		task: name,
		build: func(opts processor.Options, _ processor.PeekPolicy, _ schedule.Schedule) (*processor.Processor, error) {
			return processor.NewContinuous(opts, factory)
		},
	})
}

// RegisterScheduled registers a task run by scheduled processors
func RegisterScheduled(r *Registry, name string, factory processor.Factory[processor.Task]) error {
	return r.add(entry{
		kind: config.KindScheduled,
		task: name,
		build: func(opts processor.Options, _ processor.PeekPolicy, sched schedule.Schedule) (*processor.Processor, error) {
			return processor.NewScheduled(opts, sched, factory)
		},
	})
}

// QueueTask describes a task fed by a request queue
type QueueTask[A any] struct {
	// Argument names the argument type in definitions; defaults to the Go type name
	Argument  string
	Factory   processor.Factory[processor.ArgumentTask[A]]
	Converter processor.Converter[A]
	Hooks     processor.Hooks[A]
}

// RegisterQueueTask registers a task run by single-queue processors
func RegisterQueueTask[A any](r *Registry, name string, t QueueTask[A]) error {
	return r.add(entry{
		kind:     config.KindSingleQueue,
		task:     name,
		argument: typeName[A](t.Argument),
		build: func(opts processor.Options, policy processor.PeekPolicy, _ schedule.Schedule) (*processor.Processor, error) {
			return processor.NewQueue(opts, t.Factory, processor.QueueOptions[A]{
				Converter: t.Converter,
				Policy:    policy,
				Hooks:     t.Hooks,
			})
		},
	})
}

// ResultQueueTask describes a task fed by a request queue whose results
// go to a response queue
type ResultQueueTask[A, R any] struct {
	Argument  string
	Result    string
	Factory   processor.Factory[processor.ResultTask[A, R]]
	Converter processor.Converter[A]
	Encoder   processor.Encoder[R]
	Hooks     processor.Hooks[A]
}

// RegisterResultQueueTask registers a task run by dual-queue processors
func RegisterResultQueueTask[A, R any](r *Registry, name string, t ResultQueueTask[A, R]) error {
	return r.add(entry{
		kind:     config.KindDualQueue,
		task:     name,
		argument: typeName[A](t.Argument),
		result:   typeName[R](t.Result),
		build: func(opts processor.Options, policy processor.PeekPolicy, _ schedule.Schedule) (*processor.Processor, error) {
			return processor.NewResultQueue(opts, t.Factory, t.Encoder, processor.QueueOptions[A]{
				Converter: t.Converter,
				Policy:    policy,
				Hooks:     t.Hooks,
			})
		},
	})
}

func typeName[T any](declared string) string {
	if declared != "" {
		return declared
	}
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// lookup resolves a definition to its registry entry, checking declared types
func (r *Registry) lookup(def config.ProcessorDefinition) (entry, error) {
	r.mu.RLock()
	e, ok := r.entries[registryKey(def.Kind, def.Task)]
	r.mu.RUnlock()
	if !ok {
		return entry{}, fmt.Errorf("%w: %s task %q", ErrTaskNotFound, def.Kind, def.Task)
	}

	if def.Argument != "" && def.Argument != e.argument {
		return entry{}, fmt.Errorf("%w: task %q takes argument %q, definition declares %q",
			ErrTypeMismatch, def.Task, e.argument, def.Argument)
	}
	if def.Result != "" && def.Result != e.result {
		return entry{}, fmt.Errorf("%w: task %q returns %q, definition declares %q",
			ErrTypeMismatch, def.Task, e.result, def.Result)
	}
	return e, nil
}

// Tasks lists the registered tasks sorted by kind and name
func (r *Registry) Tasks() []TaskInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]TaskInfo, 0, len(r.entries))
	for _, e := range r.entries {
		tasks = append(tasks, TaskInfo{Kind: e.kind, Task: e.task, Argument: e.argument, Result: e.result})
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Kind != tasks[j].Kind {
			return tasks[i].Kind < tasks[j].Kind
		}
		return tasks[i].Task < tasks[j].Task
	})
	return tasks
}
