package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dbbackup/internal/config"
	"github.com/dev-tams/dbbackup/internal/database"
	"github.com/dev-tams/dbbackup/internal/encryption"
	"github.com/dev-tams/dbbackup/internal/process"
	"github.com/dev-tams/dbbackup/internal/storage"
)

// defaultRunTimeout bounds a single dump or decrypt when the config does
// not say otherwise. The supervisor's own default is meant for short
// commands.
const defaultRunTimeout = time.Hour

var newRegistry = database.DefaultRegistry

// runtime holds what one command invocation shares between databases.
type runtime struct {
	log logrus.FieldLogger
	sup *process.Supervisor
	reg *database.Registry
	gpg *encryption.GPG
}

func newRuntime(cfg *config.Config, log logrus.FieldLogger) *runtime {
	timeout := cfg.Process.Timeout
	if timeout == 0 {
		timeout = defaultRunTimeout
	}
	sup := process.New(log, process.Options{
		Timeout:     timeout,
		Grace:       cfg.Process.Grace,
		KillWait:    cfg.Process.KillWait,
		FinishWait:  cfg.Process.FinishWait,
		StartWindow: cfg.Process.StartWindow,
	})
	return &runtime{
		log: log,
		sup: sup,
		reg: newRegistry(),
		gpg: encryption.NewGPG(sup, cfg.Encryption.GPG, cfg.Encryption.HomeDir),
	}
}

// handler resolves the driver for db.
func (rt *runtime) handler(db config.DatabaseConfig) (*database.Handler, error) {
	info := database.InfoFromMap(db.Connection.AsMap())
	d, err := rt.reg.Driver(info, rt.sup)
	if err != nil {
		return nil, err
	}
	return database.NewHandler(d, rt.sup), nil
}

type closeStack []io.Closer

func (cs *closeStack) add(c io.Closer) {
	*cs = append(*cs, c)
}

func (cs closeStack) closeAll() error {
	var result *multierror.Error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// stagingDir is a private temp directory for encrypted files on their way
// to or from storage.
type stagingDir struct {
	dir string
}

func newStagingDir() (*stagingDir, error) {
	dir, err := os.MkdirTemp("", "dbbackup-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &stagingDir{dir: dir}, nil
}

func (s *stagingDir) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *stagingDir) Close() error {
	return os.RemoveAll(s.dir)
}

// upload copies the file at src to key in st.
func upload(ctx context.Context, st storage.Storage, key, src string) (int64, string, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, "", fmt.Errorf("open staged backup: %w", err)
	}
	defer f.Close()

	w, err := st.OpenWriter(ctx, key)
	if err != nil {
		return 0, "", fmt.Errorf("open storage writer: %w", err)
	}

	n, err := io.Copy(w, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		_ = w.Abort()
		return n, w.Location(), fmt.Errorf("copy to storage: %w", err)
	}
	if err := w.Close(); err != nil {
		return n, w.Location(), fmt.Errorf("close storage writer: %w", err)
	}
	return n, w.Location(), nil
}

// download copies key from st into the file at dest.
func download(ctx context.Context, st storage.Storage, key, dest string) error {
	r, err := st.OpenReader(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create staged backup: %w", err)
	}
	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		_ = f.Close()
		return fmt.Errorf("download %s: %w", key, err)
	}
	return f.Close()
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
