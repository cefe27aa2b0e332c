package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrRunTimeout is returned when a run does not reach a terminal status
	// within the poll budget or before the context deadline.
	ErrRunTimeout = errors.New("conversation: assistant run timed out")
	// ErrRunFailed is wrapped by RunError for failed, cancelled and expired runs.
	ErrRunFailed = errors.New("conversation: assistant run failed")
	// ErrShuttingDown rejects fragments enqueued after Shutdown.
	ErrShuttingDown = errors.New("conversation: debouncer shutting down")
	// ErrInvalidStep rejects step values outside 1..ConcludedStep.
	ErrInvalidStep = errors.New("conversation: invalid step")

	errUserIDRequired = errors.New("conversation: user id required")
)

// RunError reports a run that ended in a terminal failure status.
type RunError struct {
	RunID  string
	Status RunStatus
}

func (e *RunError) Error() string {
	return fmt.Sprintf("conversation: run %s ended with status %s", e.RunID, e.Status)
}

func (e *RunError) Unwrap() error { return ErrRunFailed }
