package executor

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrCommandTooLong = errors.New("command exceeds length limit")
	ErrWorkDirPolicy  = errors.New("working directory not permitted")
	ErrSpawn          = errors.New("failed to start interpreter")
	ErrNoShell        = errors.New("no shell interpreter available")
)

// InvocationError wraps errors with invocation context.
type InvocationError struct {
	InvocationID string
	Op           string // The operation that failed
	Err          error
}

func (e *InvocationError) Error() string {
	if e.InvocationID != "" {
		return fmt.Sprintf("invocation %s: %s: %s", e.InvocationID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
