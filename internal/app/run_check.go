package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dbbackup/internal/config"
	"github.com/dev-tams/dbbackup/internal/database"
	"github.com/dev-tams/dbbackup/internal/process"
)

var checkCommand = process.CheckCommand

type tool struct {
	program string
	desc    string
}

// requiredTools lists the programs h needs for a restore, plus the dump
// program when withDump is set.
func (rt *runtime) requiredTools(h *database.Handler, withDump bool) []tool {
	d := h.Driver()
	var tools []tool
	if withDump {
		tools = append(tools, tool{program: d.DumpTemplate().Program, desc: "Dump command"})
	}
	tools = append(tools,
		tool{program: d.RestoreTemplate().Program, desc: "Restore command"},
		tool{program: d.IsEmptyTemplate().Program, desc: "Find number of tables"},
		tool{program: rt.gpg.Program, desc: "GPG"},
	)

	seen := make(map[string]bool, len(tools))
	out := tools[:0]
	for _, t := range tools {
		if seen[t.program] {
			continue
		}
		seen[t.program] = true
		out = append(out, t)
	}
	return out
}

func checkTools(tools []tool) error {
	var result *multierror.Error
	for _, t := range tools {
		if _, err := checkCommand(t.program, t.desc); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// RunCheck resolves the driver of every configured database, looks up the
// tools it needs and asks whether the database is empty. A report is
// written to w; the returned error collects every problem found.
func RunCheck(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, w io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt := newRuntime(cfg, log)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATABASE\tENGINE\tTOOLS\tEMPTY")

	var result *multierror.Error
	for _, db := range cfg.Databases {
		status, empty := "ok", "-"

		h, err := rt.handler(db)
		if err != nil {
			status = "no driver"
		} else if err = checkTools(rt.requiredTools(h, true)); err != nil {
			status = "missing"
		} else {
			var isEmpty bool
			if isEmpty, err = h.IsEmpty(ctx); err != nil {
				empty = "error"
			} else {
				empty = fmt.Sprint(isEmpty)
			}
		}
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("db %s: %w", db.Name, err))
			log.WithField("db", db.Name).WithError(err).Debug("check failed")
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", db.Name, db.Connection.Engine, status, empty)
	}

	if err := tw.Flush(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
