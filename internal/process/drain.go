package process

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	readSize = 64 << 10

	// stderrKeep is how much stderr is kept for error messages.
	stderrKeep = 64 << 10
)

// stream is the parent's read end of a pipe, switched to non-blocking mode
// so a tick never waits for data.
type stream struct {
	raw    syscall.RawConn
	buf    []byte
	closed bool
}

func newStream(f *os.File) (*stream, error) {
	if f == nil {
		return nil, nil
	}
	raw, err := f.SyscallConn()
	if err != nil {
		return nil, err
	}
	var nbErr error
	if err := raw.Control(func(fd uintptr) {
		nbErr = unix.SetNonblock(int(fd), true)
	}); err != nil {
		return nil, err
	}
	if nbErr != nil {
		return nil, nbErr
	}
	return &stream{raw: raw, buf: make([]byte, readSize)}, nil
}

// read makes a single read attempt. A nil chunk with a nil error means
// nothing was available right now.
func (s *stream) read() ([]byte, error) {
	if s == nil || s.closed {
		return nil, nil
	}

	var (
		n    int
		rerr error
	)
	err := s.raw.Read(func(fd uintptr) bool {
		for {
			n, rerr = unix.Read(int(fd), s.buf)
			if !errors.Is(rerr, unix.EINTR) {
				return true
			}
		}
	})
	if err != nil {
		s.closed = true
		return nil, err
	}

	switch {
	case errors.Is(rerr, unix.EAGAIN):
		return nil, nil
	case rerr != nil:
		s.closed = true
		return nil, rerr
	case n == 0:
		s.closed = true
		return nil, nil
	}
	return append([]byte(nil), s.buf[:n]...), nil
}

// drainer polls the captured stdout and stderr of one process.
type drainer struct {
	stdout *stream
	stderr *stream
}

func newDrainer(p *Process) (*drainer, error) {
	out, err := newStream(p.stdout)
	if err != nil {
		return nil, err
	}
	errs, err := newStream(p.stderr)
	if err != nil {
		return nil, err
	}
	return &drainer{stdout: out, stderr: errs}, nil
}

// poll returns whatever each stream had available. Either chunk may be
// empty.
func (d *drainer) poll() (stdout, stderr []byte, err error) {
	stderr, err = d.stderr.read()
	if err != nil {
		return nil, stderr, err
	}
	stdout, err = d.stdout.read()
	return stdout, stderr, err
}

// lineLogger forwards complete lines to the logger and holds on to a
// trailing partial line until more data or flush.
type lineLogger struct {
	log     logrus.FieldLogger
	partial bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.partial.Write(p)
	for {
		i := bytes.IndexByte(l.partial.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := l.partial.Next(i + 1)
		l.emit(line[:i])
	}
	return len(p), nil
}

func (l *lineLogger) flush() {
	if l.partial.Len() > 0 {
		l.emit(l.partial.Bytes())
	}
	l.partial.Reset()
}

func (l *lineLogger) emit(line []byte) {
	s := strings.TrimRight(string(line), "\r")
	if strings.TrimSpace(s) == "" {
		return
	}
	l.log.Infof("STDERR: %s", s)
}
