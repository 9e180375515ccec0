package processor

import (
	"errors"

	"taskhost/internal/pkg/errorsx"
)

var (
	// ErrAlreadyRunning is returned by Start and Reconfigure while a polling loop is active
	ErrAlreadyRunning = errors.New("processor already running")

	// ErrStopped is returned by Start on a stopped processor that was not reconfigured
	ErrStopped = errors.New("processor stopped; reconfigure before restarting")

	// ErrMessageCancelled is returned by a Before hook to cancel one message
	ErrMessageCancelled = errorsx.WrapCancelled(errors.New("message cancelled"))

	errStopRequested = errorsx.WrapCancelled(errors.New("stop requested"))
)
