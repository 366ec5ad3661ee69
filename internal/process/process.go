package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultGrace       = 10 * time.Second
	DefaultKillWait    = time.Second
	DefaultFinishWait  = 10 * time.Second
	DefaultStartWindow = 500 * time.Millisecond
	DefaultStep        = 100 * time.Millisecond
)

// Options bound how long the supervisor waits at each stage. Zero values
// take the defaults above.
type Options struct {
	// Timeout bounds a whole collect drain or feed.
	Timeout time.Duration
	// Grace is how long a process gets to exit after SIGTERM.
	Grace time.Duration
	// KillWait is how long a process gets to exit after SIGKILL.
	KillWait time.Duration
	// FinishWait is how long a fed process gets after its input is closed.
	FinishWait time.Duration
	// StartWindow is used by callers that want to catch immediate failures.
	StartWindow time.Duration
	// Step is the polling interval.
	Step time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.KillWait <= 0 {
		o.KillWait = DefaultKillWait
	}
	if o.FinishWait <= 0 {
		o.FinishWait = DefaultFinishWait
	}
	if o.StartWindow <= 0 {
		o.StartWindow = DefaultStartWindow
	}
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	return o
}

// Supervisor starts external programs and guarantees none of them outlive
// the call that started them.
type Supervisor struct {
	log  logrus.FieldLogger
	opts Options
}

func New(log logrus.FieldLogger, opts Options) *Supervisor {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Supervisor{log: log, opts: opts.withDefaults()}
}

func (s *Supervisor) Options() Options { return s.opts }

// Spec describes a single invocation.
type Spec struct {
	Desc    string
	Program string
	Args    []string
	// Env entries are appended to the current environment.
	Env []string
	Dir string
	// Stdin is written to the process right after it starts. Unless
	// CaptureStdin is set, stdin is closed afterwards.
	Stdin []byte

	CaptureStdin  bool
	CaptureStdout bool
	CaptureStderr bool

	// Cleanup runs once the process is finished or failed to start.
	Cleanup func()
}

// Process is a running (or finished) supervised program.
type Process struct {
	desc string
	cmd  *exec.Cmd
	log  logrus.FieldLogger

	stdin  *os.File
	stdout *os.File
	stderr *os.File

	done    chan struct{}
	waitErr error

	cleanup     func()
	releaseOnce sync.Once
}

func (s *Supervisor) Start(ctx context.Context, spec Spec) (*Process, error) {
	runCleanup := func() {
		if spec.Cleanup != nil {
			spec.Cleanup()
		}
	}

	if err := ctx.Err(); err != nil {
		runCleanup()
		return nil, err
	}

	path, err := CheckCommand(spec.Program, spec.Desc)
	if err != nil {
		runCleanup()
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"desc":   spec.Desc,
		"run_id": uuid.NewString(),
	})
	log.Infof("Running %q", commandLine(spec.Program, spec.Args))

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &Process{
		desc:    spec.Desc,
		cmd:     cmd,
		log:     log,
		done:    make(chan struct{}),
		cleanup: spec.Cleanup,
	}

	var childEnds []*os.File
	fail := func(err error) (*Process, error) {
		for _, f := range childEnds {
			_ = f.Close()
		}
		p.closePipes()
		runCleanup()
		return nil, err
	}

	if spec.CaptureStdin || spec.Stdin != nil {
		r, w, err := os.Pipe()
		if err != nil {
			return fail(err)
		}
		cmd.Stdin = r
		p.stdin = w
		childEnds = append(childEnds, r)
	}

	if spec.CaptureStdout {
		r, w, err := os.Pipe()
		if err != nil {
			return fail(err)
		}
		cmd.Stdout = w
		p.stdout = r
		childEnds = append(childEnds, w)
	} else {
		cmd.Stdout = os.Stdout
	}

	if spec.CaptureStderr {
		r, w, err := os.Pipe()
		if err != nil {
			return fail(err)
		}
		cmd.Stderr = w
		p.stderr = r
		childEnds = append(childEnds, w)
	} else {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		log.WithError(err).Error("Failed to start the process")
		return fail(&StartFailedError{Desc: spec.Desc, ExitCode: ExitNotStarted, Err: err})
	}

	for _, f := range childEnds {
		_ = f.Close()
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	if spec.Stdin != nil {
		if err := s.write(ctx, p, spec.Stdin, time.Now().Add(s.opts.Timeout)); err != nil && !errors.Is(err, errInputClosed) {
			log.WithError(err).Debug("Could not write input")
		}
		if !spec.CaptureStdin {
			p.closeStdin()
		}
	}

	return p, nil
}

func (p *Process) Desc() string { return p.desc }

func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns -1 while the process is running or when it was killed
// by a signal.
func (p *Process) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// WaitFor polls until the process exits or bound elapses, and reports
// whether it exited.
func (p *Process) WaitFor(bound, step time.Duration) bool {
	return p.waitFor(context.Background(), bound, step)
}

// waitFor is WaitFor that also gives up once ctx is done.
func (p *Process) waitFor(ctx context.Context, bound, step time.Duration) bool {
	if step <= 0 {
		step = DefaultStep
	}
	deadline := time.Now().Add(bound)
	for {
		if p.Exited() {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if remaining > step {
			remaining = step
		}
		t := time.NewTimer(remaining)
		select {
		case <-p.done:
			t.Stop()
			return true
		case <-ctx.Done():
			t.Stop()
			return p.Exited()
		case <-t.C:
		}
	}
}

// signal delivers sig to the whole process group.
func (p *Process) signal(sig unix.Signal) {
	err := unix.Kill(-p.Pid(), sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return
	}
	p.log.WithError(err).Warnf("Failed to send %s to the process group", unix.SignalName(sig))
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.WithError(err).Warnf("Failed to send %s", unix.SignalName(sig))
	}
}

func (p *Process) closeStdin() {
	if p.stdin != nil {
		_ = p.stdin.Close()
		p.stdin = nil
	}
}

func (p *Process) closePipes() {
	p.closeStdin()
	if p.stdout != nil {
		_ = p.stdout.Close()
	}
	if p.stderr != nil {
		_ = p.stderr.Close()
	}
}

// release closes the parent's pipe ends and runs the cleanup hook. It is
// called once the process has reached a terminal state.
func (p *Process) release() {
	p.releaseOnce.Do(func() {
		p.closePipes()
		if p.cleanup != nil {
			p.cleanup()
		}
	})
}
