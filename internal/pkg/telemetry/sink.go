package telemetry

import (
	"fmt"
	"runtime/debug"
)

// EventKind classifies a processor log event
type EventKind string

const (
	EventStarted     EventKind = "started"
	EventStopped     EventKind = "stopped"
	EventProcessed   EventKind = "processed"
	EventInterrupted EventKind = "interrupted"
	EventFailed      EventKind = "failed"
	EventPoisoning   EventKind = "poisoning"
	EventWarning     EventKind = "warning"
	EventError       EventKind = "error"
)

// Counter names one of the per-instance performance counters
type Counter string

const (
	Processed       Counter = "processed"
	ProcessedPerSec Counter = "processed_per_sec"
	Failed          Counter = "failed"
	FailedPerSec    Counter = "failed_per_sec"
	LastDurationMs  Counter = "last_duration_ms"
)

// Counters lists every counter a processor instance maintains
var Counters = []Counter{Processed, ProcessedPerSec, Failed, FailedPerSec, LastDurationMs}

// Sink receives processor events and counter updates. Implementations
// must be safe for concurrent use.
type Sink interface {
	Log(kind EventKind, message string, err error)
	Increment(instance string, c Counter)
	Set(instance string, c Counter, value int64)
}

// Nop is a sink that does nothing.
type Nop struct{}

func (Nop) Log(kind EventKind, message string, err error) {}
func (Nop) Increment(instance string, c Counter)          {}
func (Nop) Set(instance string, c Counter, value int64)   {}

// Multi fans every call out to each sink in order
type Multi []Sink

func (m Multi) Log(kind EventKind, message string, err error) {
	for _, s := range m {
		s.Log(kind, message, err)
	}
}

func (m Multi) Increment(instance string, c Counter) {
	for _, s := range m {
		s.Increment(instance, c)
	}
}

func (m Multi) Set(instance string, c Counter, value int64) {
	for _, s := range m {
		s.Set(instance, c, value)
	}
}

// Safe wraps a sink so that a nil sink is a no-op and a panicking sink
// cannot take down the caller. Panics are reported to onPanic when set.
// Each member of a Multi is wrapped on its own, so one failing member
// does not starve the others.
func Safe(s Sink, onPanic func(error)) Sink {
	if s == nil {
		return Nop{}
	}
	if _, ok := s.(*safeSink); ok {
		return s
	}
	if m, ok := s.(Multi); ok {
		members := make(Multi, len(m))
		for i, member := range m {
			members[i] = Safe(member, onPanic)
		}
		s = members
	}
	return &safeSink{next: s, onPanic: onPanic}
}

type safeSink struct {
	next    Sink
	onPanic func(error)
}

func (s *safeSink) recover() {
	if r := recover(); r != nil {
		if s.onPanic != nil {
			s.onPanic(fmt.Errorf("telemetry sink panicked: %v\n%s", r, debug.Stack()))
		}
	}
}

func (s *safeSink) Log(kind EventKind, message string, err error) {
	defer s.recover()
	s.next.Log(kind, message, err)
}

func (s *safeSink) Increment(instance string, c Counter) {
	defer s.recover()
	s.next.Increment(instance, c)
}

func (s *safeSink) Set(instance string, c Counter, value int64) {
	defer s.recover()
	s.next.Set(instance, c, value)
}
