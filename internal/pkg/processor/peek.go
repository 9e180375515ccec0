package processor

import (
	"fmt"
	"sync"
	"time"
)

// PeekWaitTimeProperty is the context property read by FixedPolicy, in milliseconds
const PeekWaitTimeProperty = "PeekWaitTime"

const (
	DefaultAdaptiveMin = 1000 * time.Millisecond
	DefaultAdaptiveMax = 16000 * time.Millisecond
)

// PeekPolicy decides how long a queue processor waits between checks for work
type PeekPolicy interface {
	// Bind is called once before first use
	Bind(ec *ExecutionContext)
	// NextDelay returns the wait before the next check; foundWork reports
	// whether the previous check found anything
	NextDelay(foundWork bool) time.Duration
}

// FixedPolicy always waits the PeekWaitTime property of the bound context
type FixedPolicy struct {
	wait time.Duration
}

func (p *FixedPolicy) Bind(ec *ExecutionContext) {
	p.wait = time.Duration(ec.Int(PeekWaitTimeProperty, 0)) * time.Millisecond
}

func (p *FixedPolicy) NextDelay(bool) time.Duration {
	return p.wait
}

// GreedyPolicy never waits
type GreedyPolicy struct{}

func (GreedyPolicy) Bind(*ExecutionContext)       {}
func (GreedyPolicy) NextDelay(bool) time.Duration { return 0 }

// AdaptivePolicy backs off exponentially while idle and re-polls quickly
// under load. The idle path doubles the last wait; the busy path resets it
// to half of Target, not half of the last wait.
type AdaptivePolicy struct {
	Min    time.Duration
	Max    time.Duration
	Target time.Duration

	mu   sync.Mutex
	last time.Duration
}

// NewAdaptivePolicy creates an adaptive policy starting at min
func NewAdaptivePolicy(min, max, target time.Duration) *AdaptivePolicy {
	p := &AdaptivePolicy{Min: min, Max: max, Target: target}
	p.Bind(nil)
	return p
}

// Bind resets the last wait to Min, filling unset bounds with defaults
func (p *AdaptivePolicy) Bind(*ExecutionContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Min <= 0 {
		p.Min = DefaultAdaptiveMin
	}
	if p.Max <= 0 {
		p.Max = DefaultAdaptiveMax
	}
	if p.Max < p.Min {
		p.Max = p.Min
	}
	p.last = p.Min
}

func (p *AdaptivePolicy) NextDelay(foundWork bool) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last <= 0 {
		p.last = p.Min
	}

	if foundWork {
		p.last = p.Target / 2
		if p.last < p.Min {
			p.last = p.Min
		}
	} else {
		p.last *= 2
	}
	if p.last > p.Max {
		p.last = p.Max
	}
	return p.last
}

// Current returns the last computed wait
func (p *AdaptivePolicy) Current() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Peek policy names accepted by NewPeekPolicy
const (
	PolicyFixed    = "fixed"
	PolicyGreedy   = "greedy"
	PolicyAdaptive = "adaptive"
)

// NewPeekPolicy creates an unbound policy by name. target seeds the
// adaptive policy's busy wait.
func NewPeekPolicy(name string, target time.Duration) (PeekPolicy, error) {
	switch name {
	case PolicyFixed:
		return &FixedPolicy{}, nil
	case PolicyGreedy:
		return GreedyPolicy{}, nil
	case "", PolicyAdaptive:
		return &AdaptivePolicy{Min: DefaultAdaptiveMin, Max: DefaultAdaptiveMax, Target: target}, nil
	default:
		return nil, fmt.Errorf("unknown peek policy %q", name)
	}
}
