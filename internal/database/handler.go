package database

import (
	"context"

	"github.com/dev-tams/dbbackup/internal/command"
	"github.com/dev-tams/dbbackup/internal/process"
)

const (
	dumpDesc    = "Dump command"
	restoreDesc = "Restore command"
)

// Handler runs a driver's commands under a supervisor.
type Handler struct {
	driver Driver
	sup    *process.Supervisor
}

func NewHandler(d Driver, sup *process.Supervisor) *Handler {
	return &Handler{driver: d, sup: sup}
}

func (h *Handler) Driver() Driver { return h.driver }

// Dump starts the dump command. The secret file, if any, is removed once
// the returned output is finished or closed.
func (h *Handler) Dump(ctx context.Context) (*process.Output, error) {
	c, err := command.FillOut(h.driver.DumpTemplate(), h.driver.Info().AsMap())
	if err != nil {
		return nil, err
	}
	return h.sup.Collect(ctx, c.Spec(dumpDesc))
}

// Restore feeds food into the restore command.
func (h *Handler) Restore(ctx context.Context, food process.Chunks) error {
	return command.With(h.driver.RestoreTemplate(), h.driver.Info().AsMap(), func(c *command.Command) error {
		return h.sup.Feed(ctx, c.Spec(restoreDesc), food)
	})
}

func (h *Handler) IsEmpty(ctx context.Context) (bool, error) {
	return h.driver.IsEmpty(ctx)
}
