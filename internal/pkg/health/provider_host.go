package health

import (
	"context"
	"time"

	"taskhost/internal/pkg/processor"
)

// HostChecker is the part of the processor host the provider inspects
type HostChecker interface {
	Started() bool
	ProcessorInstances() map[string][]*processor.Processor
}

// HostProvider reports the processor host as DOWN when it is not started
// and DEGRADED when some of its instances are no longer running
type HostProvider struct {
	name string
	host HostChecker
}

// NewHostProvider creates a host health provider
func NewHostProvider(name string, host HostChecker) *HostProvider {
	if name == "" {
		name = "processors"
	}
	return &HostProvider{name: name, host: host}
}

func (p *HostProvider) Name() string {
	return p.name
}

func (p *HostProvider) Check(ctx context.Context) Result {
	result := Result{
		Name:      p.name,
		Status:    StatusDown,
		Details:   make(map[string]any),
		CheckedAt: time.Now(),
	}

	if !p.host.Started() {
		result.Error = "processor host is not started"
		result.Details["started"] = false
		return result
	}
	result.Details["started"] = true

	groups := p.host.ProcessorInstances()
	total, running := 0, 0
	states := make(map[string]int)
	for _, group := range groups {
		for _, inst := range group {
			total++
			state := inst.State()
			states[state.String()]++
			if state == processor.StateRunning {
				running++
			}
		}
	}
	result.Details["groups"] = len(groups)
	result.Details["instances"] = total
	result.Details["states"] = states

	if running < total {
		result.Status = StatusDegraded
		result.Details["reason"] = "some instances are not running"
		return result
	}

	result.Status = StatusUp
	return result
}
