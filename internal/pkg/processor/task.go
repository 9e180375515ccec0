package processor

import (
	"context"
	"encoding/json"
	"fmt"
)

// Task is a unit of work without input
type Task interface {
	// Setup prepares the task; it runs once per unit of work before Run
	Setup(ctx context.Context, ec *ExecutionContext) error
	Run(ctx context.Context) error
}

// ArgumentTask is a unit of work fed by a queue message
type ArgumentTask[A any] interface {
	Setup(ctx context.Context, ec *ExecutionContext) error
	Run(ctx context.Context, arg A) error
}

// ResultTask is a unit of work fed by a queue message whose result is
// posted to a response queue
type ResultTask[A, R any] interface {
	Setup(ctx context.Context, ec *ExecutionContext) error
	Run(ctx context.Context, arg A) (R, error)
}

// Disposer is implemented by tasks holding resources. Dispose runs after
// every unit of work, whatever its outcome.
type Disposer interface {
	Dispose() error
}

// Factory builds a fresh task for each unit of work
type Factory[T any] func() T

// Base gives tasks a no-op Setup
type Base struct{}

func (Base) Setup(ctx context.Context, ec *ExecutionContext) error { return nil }

// TaskFunc adapts a function to Task
type TaskFunc func(ctx context.Context) error

func (TaskFunc) Setup(ctx context.Context, ec *ExecutionContext) error { return nil }
func (f TaskFunc) Run(ctx context.Context) error                       { return f(ctx) }

// ArgumentFunc adapts a function to ArgumentTask
type ArgumentFunc[A any] func(ctx context.Context, arg A) error

func (ArgumentFunc[A]) Setup(ctx context.Context, ec *ExecutionContext) error { return nil }
func (f ArgumentFunc[A]) Run(ctx context.Context, arg A) error                { return f(ctx, arg) }

// ResultFunc adapts a function to ResultTask
type ResultFunc[A, R any] func(ctx context.Context, arg A) (R, error)

func (ResultFunc[A, R]) Setup(ctx context.Context, ec *ExecutionContext) error { return nil }
func (f ResultFunc[A, R]) Run(ctx context.Context, arg A) (R, error)           { return f(ctx, arg) }

// Converter turns a message body into a task argument
type Converter[A any] func(body string) (A, error)

// Encoder turns a task result into a message body
type Encoder[R any] func(result R) (string, error)

// StringConverter passes the body through
func StringConverter(body string) (string, error) {
	return body, nil
}

// StringEncoder passes the result through
func StringEncoder(result string) (string, error) {
	return result, nil
}

// JSONConverter decodes the body as JSON into A
func JSONConverter[A any]() Converter[A] {
	return func(body string) (A, error) {
		var arg A
		if err := json.Unmarshal([]byte(body), &arg); err != nil {
			return arg, fmt.Errorf("failed to decode message body: %w", err)
		}
		return arg, nil
	}
}

// JSONEncoder encodes the result as JSON
func JSONEncoder[R any]() Encoder[R] {
	return func(result R) (string, error) {
		data, err := json.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		return string(data), nil
	}
}
