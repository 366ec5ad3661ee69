package process

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ensureTerminated makes sure p is no longer running: SIGTERM to the
// group, then SIGKILL if it is still around after the grace period. A
// process that survives both is logged and left behind. It reports whether
// any signal had to be sent.
func (s *Supervisor) ensureTerminated(p *Process) bool {
	if p.Exited() {
		return false
	}

	p.log.Warn("Stopping the process")
	p.signal(unix.SIGTERM)
	if p.WaitFor(s.opts.Grace, s.opts.Step) {
		return true
	}

	p.log.Error("Seems the process is hanging, sigkilling it now")
	p.signal(unix.SIGKILL)
	if !p.WaitFor(s.opts.KillWait, s.opts.Step) {
		p.log.Errorf("Process %d could not be killed", p.Pid())
	}
	return true
}

// stopGroup terminates whatever p left running in its process group after
// the child itself is gone, with the same SIGTERM then SIGKILL escalation.
func (s *Supervisor) stopGroup(p *Process) {
	pgid := p.Pid()
	if pgid <= 0 || !groupAlive(pgid) {
		return
	}

	p.log.Warn("Stopping processes left behind in the group")
	_ = unix.Kill(-pgid, unix.SIGTERM)
	if waitGroup(pgid, s.opts.Grace, s.opts.Step) {
		return
	}
	_ = unix.Kill(-pgid, unix.SIGKILL)
	if !waitGroup(pgid, s.opts.KillWait, s.opts.Step) {
		p.log.Errorf("Process group %d could not be killed", pgid)
	}
}

// groupAlive reports whether any process, zombies included, is still in
// the group.
func groupAlive(pgid int) bool {
	err := unix.Kill(-pgid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func waitGroup(pgid int, bound, step time.Duration) bool {
	if step <= 0 {
		step = DefaultStep
	}
	deadline := time.Now().Add(bound)
	for groupAlive(pgid) {
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(step)
	}
	return true
}

// finish brings p and its process group to a terminal state, releases its
// resources and turns the exit status into the error returned to the
// caller.
func (s *Supervisor) finish(p *Process, cause error, stderr string) error {
	forced := s.ensureTerminated(p)
	if p.Exited() {
		s.stopGroup(p)
	}
	code := p.ExitCode()
	p.release()

	out := classify(code, forced, stderr)
	if out.Kind != Success {
		entry := p.log.WithField("exit_code", out.ExitCode)
		if p.Exited() && p.waitErr != nil {
			entry = entry.WithError(p.waitErr)
		}
		entry.Errorf("%s failed (%s)", p.desc, out.Kind)
	}
	return out.Err(p.desc, cause)
}

// CheckStarted waits up to StartWindow for p to fail. A process that exits
// non-zero within the window is finished and reported as a
// *StartFailedError; one still running (or exited cleanly) is left alone.
func (s *Supervisor) CheckStarted(p *Process) error {
	if !p.WaitFor(s.opts.StartWindow, s.opts.Step) {
		return nil
	}
	code := p.ExitCode()
	if code == 0 {
		return nil
	}
	p.release()
	p.log.WithField("exit_code", code).Errorf("%s didn't even start", p.desc)
	return &StartFailedError{Desc: p.desc, ExitCode: code}
}
