package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskhost/internal/pkg/queue"
	"taskhost/internal/pkg/telemetry"

	"github.com/stretchr/testify/require"
)

type event struct {
	kind    telemetry.EventKind
	message string
	err     error
}

// recordingSink keeps every event and counter update for assertions
type recordingSink struct {
	mu       sync.Mutex
	events   []event
	counters map[string]map[telemetry.Counter]int64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counters: make(map[string]map[telemetry.Counter]int64)}
}

func (s *recordingSink) Log(kind telemetry.EventKind, message string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event{kind: kind, message: message, err: err})
}

func (s *recordingSink) Increment(instance string, c telemetry.Counter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instance(instance)[c]++
}

func (s *recordingSink) Set(instance string, c telemetry.Counter, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instance(instance)[c] = value
}

func (s *recordingSink) instance(id string) map[telemetry.Counter]int64 {
	m, ok := s.counters[id]
	if !ok {
		m = make(map[telemetry.Counter]int64)
		s.counters[id] = m
	}
	return m
}

func (s *recordingSink) count(kind telemetry.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (s *recordingSink) counter(instance string, c telemetry.Counter) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[instance][c]
}

func newTestContext(t *testing.T, props map[string]any, queues queue.Resolver) *ExecutionContext {
	t.Helper()
	ec := NewExecutionContext(context.Background(), props, queues)
	t.Cleanup(ec.Cancel)
	return ec
}

// stopOnCleanup makes sure no loop outlives its test
func stopOnCleanup(t *testing.T, p *Processor) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})
}

func waitDone(t *testing.T, p *Processor) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		require.FailNow(t, "processor loop did not exit")
	}
}
