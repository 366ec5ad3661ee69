package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/armon/circbuf"
)

// Output is the stdout of a collected process, read lazily chunk by chunk.
//
//	out, err := sup.Collect(ctx, spec)
//	if err != nil { ... }
//	defer out.Close()
//	for out.Next() {
//		use(out.Chunk())
//	}
//	if err := out.Err(); err != nil { ... }
//
// Err only reports once Next has returned false, so every byte of stdout is
// handed out before a failure is known.
type Output struct {
	sup *Supervisor
	ctx context.Context
	p   *Process

	drain   *drainer
	stderr  *circbuf.Buffer
	lines   *lineLogger
	started time.Time

	chunk []byte
	done  bool
	err   error
}

// Collect starts spec with stdout and stderr captured.
func (s *Supervisor) Collect(ctx context.Context, spec Spec) (*Output, error) {
	spec.CaptureStdout = true
	spec.CaptureStderr = true
	p, err := s.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	return s.Stream(ctx, p)
}

// Stream wraps an already started process whose stdout was captured.
func (s *Supervisor) Stream(ctx context.Context, p *Process) (*Output, error) {
	d, err := newDrainer(p)
	if err == nil && d.stdout == nil {
		err = fmt.Errorf("%s: stdout was not captured", p.desc)
	}
	if err != nil {
		s.finish(p, err, "")
		return nil, err
	}

	buf, err := circbuf.NewBuffer(stderrKeep)
	if err != nil {
		s.finish(p, err, "")
		return nil, err
	}

	return &Output{
		sup:     s,
		ctx:     ctx,
		p:       p,
		drain:   d,
		stderr:  buf,
		lines:   &lineLogger{log: p.log},
		started: time.Now(),
	}, nil
}

// Run collects spec and returns its whole stdout.
func (s *Supervisor) Run(ctx context.Context, spec Spec) (string, error) {
	out, err := s.Collect(ctx, spec)
	if err != nil {
		return "", err
	}
	defer out.Close()

	var b strings.Builder
	for out.Next() {
		b.Write(out.Chunk())
	}
	return b.String(), out.Err()
}

func (o *Output) Next() bool {
	if o.done {
		return false
	}
	o.chunk = nil

	for {
		if err := o.ctx.Err(); err != nil {
			o.p.log.Error("Force stopping the process")
			o.finish(err)
			return false
		}
		if time.Since(o.started) >= o.sup.opts.Timeout {
			o.p.log.Errorf("Timed out waiting for the process to finish (%s)", o.p.desc)
			o.finish(nil)
			return false
		}

		// Sampled before reading so anything written before the exit is
		// still picked up by this tick.
		exited := o.p.Exited()

		stdout, stderr, err := o.drain.poll()
		if len(stderr) > 0 {
			_, _ = o.stderr.Write(stderr)
			_, _ = o.lines.Write(stderr)
		}
		if err != nil {
			o.finish(fmt.Errorf("read output: %w", err))
			return false
		}
		if len(stdout) > 0 {
			o.chunk = stdout
			return true
		}
		if len(stderr) > 0 {
			continue
		}
		if exited {
			o.finish(nil)
			return false
		}
		o.sleep()
	}
}

func (o *Output) Chunk() []byte { return o.chunk }

func (o *Output) Err() error {
	if !o.done {
		return nil
	}
	return o.err
}

// Close stops reading. A process that is still running is terminated.
// Calling Close after the output was fully read is a no-op returning Err.
func (o *Output) Close() error {
	if !o.done {
		o.finish(nil)
	}
	return o.err
}

// Process returns the underlying process.
func (o *Output) Process() *Process { return o.p }

// Stderr returns the retained tail of stderr.
func (o *Output) Stderr() string { return o.stderr.String() }

func (o *Output) sleep() {
	t := time.NewTimer(o.sup.opts.Step)
	defer t.Stop()
	select {
	case <-t.C:
	case <-o.p.Done():
	case <-o.ctx.Done():
	}
}

func (o *Output) finish(cause error) {
	o.done = true
	o.chunk = nil
	o.lines.flush()
	o.err = o.sup.finish(o.p, cause, o.stderr.String())
}
