package errorsx

import (
	"context"
	"errors"
)

var (
	// Configuration marks errors caused by an invalid processor or queue setup.
	// They are fatal for the creation step they occur in and never retried.
	Configuration = errors.New("configuration")
	// Cancelled marks a unit of work aborted by a stop or cancellation signal
	Cancelled = errors.New("cancelled")
)

// WrapConfiguration wraps an error as a configuration error
func WrapConfiguration(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(Configuration, err)
}

// WrapCancelled wraps an error as a cancellation
func WrapCancelled(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(Cancelled, err)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, Configuration)
}

// IsCancelled reports cooperative cancellation, including context.Canceled
func IsCancelled(err error) bool {
	return errors.Is(err, Cancelled) || errors.Is(err, context.Canceled)
}
