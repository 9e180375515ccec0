package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds a single provider check
const DefaultTimeout = 5 * time.Second

// Service runs the registered providers and aggregates their results.
// A critical provider that is DOWN takes the service DOWN; any other
// unhealthy provider only degrades it.
type Service struct {
	timeout time.Duration

	mu        sync.RWMutex
	providers []Provider
	critical  map[string]bool
}

// NewService creates a health service. timeout <= 0 uses DefaultTimeout.
func NewService(timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		timeout:  timeout,
		critical: make(map[string]bool),
	}
}

// Register adds a provider; critical providers decide the overall status
func (s *Service) Register(p Provider, critical bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append(s.providers, p)
	s.critical[p.Name()] = critical
}

// Check runs every provider in parallel, each bounded by the timeout
func (s *Service) Check(ctx context.Context) ([]Result, Status) {
	s.mu.RLock()
	providers := append([]Provider(nil), s.providers...)
	s.mu.RUnlock()

	results := make([]Result, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(idx int, p Provider) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			resultCh := make(chan Result, 1)
			go func() {
				resultCh <- p.Check(checkCtx)
			}()

			var r Result
			select {
			case r = <-resultCh:
			case <-checkCtx.Done():
				r = Result{
					Name:      p.Name(),
					Status:    StatusDown,
					CheckedAt: time.Now(),
					Error:     "health check timeout",
				}
			}
			s.mu.RLock()
			r.Critical = s.critical[p.Name()]
			s.mu.RUnlock()
			results[idx] = r
		}(i, p)
	}
	wg.Wait()

	return results, aggregate(results)
}

func aggregate(results []Result) Status {
	status := StatusUp
	for _, r := range results {
		switch {
		case r.Status == StatusDown && r.Critical:
			return StatusDown
		case r.Status != StatusUp:
			status = StatusDegraded
		}
	}
	return status
}

// Response runs the checks and wraps them for the HTTP endpoint
func (s *Service) Response(ctx context.Context) Response {
	results, status := s.Check(ctx)
	return Response{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    results,
	}
}
