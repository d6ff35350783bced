package runner

import (
	"fmt"
	"strings"
)

// ConfigError reports invalid Options. The run never starts.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid run configuration"
	}
	return "invalid run configuration: " + strings.Join(e.Issues, "; ")
}

// SetupError reports a failed setup callable. No virtual users were started.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed: %v", e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// IterationError reports a single failed iteration. The VU that produced it
// keeps running.
type IterationError struct {
	VU        int
	Iteration int64
	Err       error
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("iteration error (vu %d, iteration %d): %v", e.VU, e.Iteration, e.Err)
}

func (e *IterationError) Unwrap() error { return e.Err }

// PanicError carries a value recovered from a panicking callable.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// TeardownError reports a failed teardown callable. It is logged and never
// changes the outcome of a run.
type TeardownError struct {
	Err error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown failed: %v", e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
