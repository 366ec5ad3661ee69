package process

import (
	"fmt"
	"strings"
)

// NoCommandError is returned when a program can't be found on PATH.
// It is produced before anything is spawned.
type NoCommandError struct {
	Program string
	Desc    string
	Err     error
}

func (e *NoCommandError) Error() string {
	return fmt.Sprintf("It seems you need to install %s for %s", e.Program, e.Desc)
}

func (e *NoCommandError) Unwrap() error { return e.Err }

// StartFailedError means the process was spawned but exited non-zero
// almost immediately, usually because of bad arguments.
type StartFailedError struct {
	Desc     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *StartFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s didn't even start: %v", e.Desc, e.Err)
	}
	return fmt.Sprintf("%s didn't even start (exit code %d)", e.Desc, e.ExitCode)
}

func (e *StartFailedError) Unwrap() error { return e.Err }

// FailedToRunError is returned when a process ran and did not finish with
// exit code 0. Stderr holds what the process wrote to stderr, if captured.
type FailedToRunError struct {
	Desc     string
	ExitCode int
	Stderr   string

	// Cause is set when the run was cut short, e.g. context cancellation.
	Cause error
}

func (e *FailedToRunError) Error() string {
	msg := fmt.Sprintf("%s failed (exit code %d)", e.Desc, e.ExitCode)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *FailedToRunError) Unwrap() error { return e.Cause }

// TimedOut reports whether the process had to be force terminated.
func (e *FailedToRunError) TimedOut() bool { return e.ExitCode == ExitTimedOut }
