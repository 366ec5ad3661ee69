package process

// ExitTimedOut is the exit code recorded for a process that had to be
// signalled by the supervisor, whatever the OS reported.
const ExitTimedOut = -2

// ExitNotStarted is the exit code recorded when no process was spawned.
const ExitNotStarted = -3

type OutcomeKind int

const (
	Success OutcomeKind = iota
	Failed
	TimedOut
	StartFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	case StartFailed:
		return "start failed"
	default:
		return "unknown"
	}
}

// Outcome is the classified terminal state of a supervised process.
type Outcome struct {
	Kind     OutcomeKind
	ExitCode int
	Stderr   string
}

func classify(exitCode int, forced bool, stderr string) Outcome {
	switch {
	case forced:
		return Outcome{Kind: TimedOut, ExitCode: ExitTimedOut, Stderr: stderr}
	case exitCode == 0:
		return Outcome{Kind: Success}
	default:
		return Outcome{Kind: Failed, ExitCode: exitCode, Stderr: stderr}
	}
}

// Err converts the outcome into the error handed to callers. cause is
// attached to failures, it is typically the context error.
func (o Outcome) Err(desc string, cause error) error {
	switch o.Kind {
	case Success:
		if cause != nil {
			return &FailedToRunError{Desc: desc, ExitCode: 0, Stderr: o.Stderr, Cause: cause}
		}
		return nil
	case StartFailed:
		return &StartFailedError{Desc: desc, ExitCode: o.ExitCode, Stderr: o.Stderr}
	default:
		return &FailedToRunError{Desc: desc, ExitCode: o.ExitCode, Stderr: o.Stderr, Cause: cause}
	}
}
