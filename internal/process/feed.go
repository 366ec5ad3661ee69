package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var (
	errInputClosed = errors.New("process stopped reading its input")
	errFeedTimeout = errors.New("feeding the process timed out")
)

// Feed starts spec and writes food into its stdin.
func (s *Supervisor) Feed(ctx context.Context, spec Spec, food Chunks) error {
	spec.CaptureStdin = true
	p, err := s.Start(ctx, spec)
	if err != nil {
		return err
	}
	return s.FeedProcess(ctx, p, food)
}

// FeedProcess writes food into the stdin of an already started process,
// closes stdin and waits for the process to finish. Feeding stops as soon
// as the process exits; whatever is left in food is not consumed. The whole
// feed, including the final wait, is bounded by Timeout.
func (s *Supervisor) FeedProcess(ctx context.Context, p *Process, food Chunks) error {
	if p.stdin == nil {
		err := fmt.Errorf("%s: stdin was not captured", p.desc)
		return s.finish(p, err, "")
	}

	deadline := time.Now().Add(s.opts.Timeout)
	var cause error
	timedOut := false
	for cause == nil && !timedOut && p.stdin != nil && !p.Exited() {
		if !time.Now().Before(deadline) {
			timedOut = true
			break
		}
		if !food.Next() {
			if err := food.Err(); err != nil {
				cause = fmt.Errorf("input for %s: %w", p.desc, err)
			}
			break
		}
		err := s.write(ctx, p, food.Chunk(), deadline)
		switch {
		case err == nil:
		case errors.Is(err, errFeedTimeout):
			timedOut = true
		case errors.Is(err, errInputClosed):
			p.log.Debug("Process stopped reading its input")
			p.closeStdin()
		default:
			cause = err
		}
	}
	p.closeStdin()

	if cause == nil && !timedOut {
		wait := s.opts.FinishWait
		if left := time.Until(deadline); left < wait {
			wait = left
		}
		if !p.waitFor(ctx, wait, s.opts.Step) {
			if err := ctx.Err(); err != nil {
				cause = err
			} else {
				timedOut = true
			}
		}
	}

	switch {
	case timedOut:
		p.log.Errorf("Timed out waiting for the process to finish (%s)", p.desc)
	case errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded):
		p.log.Error("Force stopping the process")
	}
	return s.finish(p, cause, "")
}

// write sends chunk to the process stdin using short write deadlines, so a
// child that stopped reading is noticed through its exit, ctx or deadline.
func (s *Supervisor) write(ctx context.Context, p *Process, chunk []byte, deadline time.Time) error {
	for len(chunk) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !time.Now().Before(deadline) {
			return errFeedTimeout
		}
		if p.Exited() || p.stdin == nil {
			return errInputClosed
		}
		err := p.stdin.SetWriteDeadline(time.Now().Add(s.opts.Step))
		if err != nil && !errors.Is(err, os.ErrNoDeadline) {
			return err
		}
		n, err := p.stdin.Write(chunk)
		chunk = chunk[n:]
		switch {
		case err == nil:
		case errors.Is(err, os.ErrDeadlineExceeded):
		case errors.Is(err, unix.EPIPE):
			return errInputClosed
		default:
			return err
		}
	}
	return nil
}
