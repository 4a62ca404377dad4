// Package executor runs single external commands against the tenant runtime
// and normalizes their outcome.
//
// A command that runs and exits non-zero is a normal Result, not an error.
// Execute only returns an error when the runtime itself is unreachable
// (ErrInfrastructure) or the caller's context ends first.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutExitCode is the synthetic exit status of a command killed by its
// timeout. It matches what coreutils timeout(1) reports.
const TimeoutExitCode = 124

var (
	// ErrInfrastructure means the command could not be run at all: the
	// runtime container is missing or cannot be started, the daemon is
	// unreachable, or the binary does not exist.
	ErrInfrastructure = errors.New("execution infrastructure unavailable")

	// ErrStepFailed matches every *StepError.
	ErrStepFailed = errors.New("workflow step failed")
)

// Invocation is a single external command. It is never persisted.
type Invocation struct {
	Command string
	Args    []string
	WorkDir string
	// Timeout bounds the command. Zero means the executor's default.
	Timeout time.Duration
}

// Result is the normalized outcome of an Invocation.
type Result struct {
	ExitCode int
	Output   string
	TimedOut bool
	Duration time.Duration
}

// Success reports whether the command exited zero.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0 && !r.TimedOut
}

// Executor runs one command and waits for it.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (*Result, error)
}

// StepError is a command that ran and failed. Output is the captured
// combined output, verbatim.
type StepError struct {
	Step     string
	ExitCode int
	Output   string
	TimedOut bool
}

func (e *StepError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out: %s", e.Step, e.Output)
	}
	return fmt.Sprintf("%s failed with exit code %d: %s", e.Step, e.ExitCode, e.Output)
}

func (e *StepError) Is(target error) bool {
	return target == ErrStepFailed
}

// Check folds the return values of Execute into a single error: nil on
// success, the wrapped infrastructure error, or a *StepError.
func Check(step string, res *Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	if res == nil {
		return fmt.Errorf("%w: %s: executor returned no result", ErrInfrastructure, step)
	}
	if !res.Success() {
		return &StepError{
			Step:     step,
			ExitCode: res.ExitCode,
			Output:   res.Output,
			TimedOut: res.TimedOut,
		}
	}
	return nil
}

// Run is Execute followed by Check, returning the result for callers that
// need the output of a successful command.
func Run(ctx context.Context, ex Executor, step string, inv Invocation) (*Result, error) {
	res, err := ex.Execute(ctx, inv)
	if err := Check(step, res, err); err != nil {
		return res, err
	}
	return res, nil
}

func timeoutMarker(d time.Duration) string {
	return fmt.Sprintf("[timed out after %s]", d)
}

func timedOutResult(output string, timeout, elapsed time.Duration) *Result {
	if output != "" && output[len(output)-1] != '\n' {
		output += "\n"
	}
	return &Result{
		ExitCode: TimeoutExitCode,
		Output:   output + timeoutMarker(timeout),
		TimedOut: true,
		Duration: elapsed,
	}
}
