package health

import (
	"context"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp       Status = "UP"
	StatusDown     Status = "DOWN"
	StatusDegraded Status = "DEGRADED"
)

// Result represents the result of one health check
type Result struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Critical  bool           `json:"critical"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
	Error     string         `json:"error,omitempty"`
}

// Provider is implemented by every health check
type Provider interface {
	Name() string
	Check(ctx context.Context) Result
}

// Response is the JSON body of the health endpoint
type Response struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Result  `json:"checks"`
}
