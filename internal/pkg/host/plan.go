package host

import (
	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/processor"
)

// Allocation is the dry-run outcome of one processor definition
type Allocation struct {
	Name       string               `json:"name" yaml:"name"`
	Kind       config.ProcessorKind `json:"kind" yaml:"kind"`
	Task       string               `json:"task" yaml:"task"`
	Requested  int                  `json:"requested" yaml:"requested"`
	Allocated  int                  `json:"allocated" yaml:"allocated"`
	PeekPolicy string               `json:"peek_policy,omitempty" yaml:"peek_policy,omitempty"`
	Schedule   string               `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Error      string               `json:"error,omitempty" yaml:"error,omitempty"`
}

// Plan resolves every definition against the registry and the queues and
// applies the instance cap, without creating anything. Start would create
// exactly the allocated instances.
func (h *Host) Plan() []Allocation {
	h.mu.Lock()
	defer h.mu.Unlock()

	plan := make([]Allocation, 0, len(h.cfg.Processors))
	byName := make(map[string]int, len(h.cfg.Processors))
	for _, def := range h.cfg.Processors {
		requested := def.Instances
		if requested < 1 {
			requested = 1
		}
		a := Allocation{Name: def.Name, Kind: def.Kind, Task: def.Task, Requested: requested}
		if def.Kind.IsQueue() {
			a.PeekPolicy = def.PeekPolicy
			if a.PeekPolicy == "" {
				a.PeekPolicy = processor.PolicyAdaptive
			}
		}
		byName[def.Name] = len(plan)
		plan = append(plan, a)
	}

	// every definition is checked, including those the cap leaves out
	problems := make(map[string]error, len(plan))
	for _, def := range h.cfg.Processors {
		a := &plan[byName[def.Name]]
		_, sched, _, err := h.resolve(def)
		if err == nil && def.PeekPolicy != "" {
			_, err = processor.NewPeekPolicy(def.PeekPolicy, 0)
		}
		if err != nil {
			a.Error = err.Error()
			problems[def.Name] = err
			continue
		}
		if sched != nil {
			a.Schedule = sched.String()
		}
	}

	h.allocate(func(def config.ProcessorDefinition, n int) (int, error) {
		if err := problems[def.Name]; err != nil {
			return 0, err
		}
		plan[byName[def.Name]].Allocated = n
		return n, nil
	})
	return plan
}
