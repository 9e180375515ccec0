package telemetry

import (
	"sort"
	"sync"
	"time"
)

// Store keeps counters in memory so the status API can read them.
// Per-second counters report the count of the last complete one-second window.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*instanceCounters
	now       func() time.Time
}

type instanceCounters struct {
	mu     sync.Mutex
	values map[Counter]int64
	rates  map[Counter]*rate
}

type rate struct {
	window  time.Time
	current int64
	last    int64
}

// NewStore creates an empty counter store
func NewStore() *Store {
	return &Store{
		instances: make(map[string]*instanceCounters),
		now:       time.Now,
	}
}

func (s *Store) Log(kind EventKind, message string, err error) {}

func (s *Store) Increment(instance string, c Counter) {
	ic := s.get(instance)
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if isRate(c) {
		r := ic.rates[c]
		if r == nil {
			r = &rate{}
			ic.rates[c] = r
		}
		r.add(s.now())
		return
	}
	ic.values[c]++
}

func (s *Store) Set(instance string, c Counter, value int64) {
	ic := s.get(instance)
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.values[c] = value
}

// Snapshot returns every counter of an instance; unknown instances yield zeros
func (s *Store) Snapshot(instance string) map[Counter]int64 {
	out := make(map[Counter]int64, len(Counters))
	for _, c := range Counters {
		out[c] = 0
	}

	s.mu.RLock()
	ic, ok := s.instances[instance]
	s.mu.RUnlock()
	if !ok {
		return out
	}

	now := s.now()
	ic.mu.Lock()
	defer ic.mu.Unlock()
	for c, v := range ic.values {
		out[c] = v
	}
	for c, r := range ic.rates {
		out[c] = r.read(now)
	}
	return out
}

// Instances returns the ids of every instance that reported, sorted
func (s *Store) Instances() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Forget drops the counters of an instance
func (s *Store) Forget(instance string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, instance)
}

func (s *Store) get(instance string) *instanceCounters {
	s.mu.RLock()
	ic, ok := s.instances[instance]
	s.mu.RUnlock()
	if ok {
		return ic
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ic, ok = s.instances[instance]; ok {
		return ic
	}
	ic = &instanceCounters{
		values: make(map[Counter]int64),
		rates:  make(map[Counter]*rate),
	}
	s.instances[instance] = ic
	return ic
}

func isRate(c Counter) bool {
	return c == ProcessedPerSec || c == FailedPerSec
}

func (r *rate) roll(now time.Time) {
	w := now.Truncate(time.Second)
	switch {
	case w.Equal(r.window):
	case w.Equal(r.window.Add(time.Second)):
		r.last, r.current, r.window = r.current, 0, w
	default:
		r.last, r.current, r.window = 0, 0, w
	}
}

func (r *rate) add(now time.Time) {
	r.roll(now)
	r.current++
}

func (r *rate) read(now time.Time) int64 {
	r.roll(now)
	return r.last
}
