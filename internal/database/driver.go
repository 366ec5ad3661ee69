package database

import (
	"context"
	"strings"

	"github.com/dev-tams/dbbackup/internal/command"
	"github.com/dev-tams/dbbackup/internal/process"
)

// Runner runs a collected process and returns all of its stdout.
// *process.Supervisor satisfies it.
type Runner interface {
	Run(ctx context.Context, spec process.Spec) (string, error)
}

// Driver knows the command lines of one database engine, bound to one
// database.
type Driver interface {
	Info() Info
	DumpTemplate() command.Template
	RestoreTemplate() command.Template
	IsEmptyTemplate() command.Template
	IsEmpty(ctx context.Context) (bool, error)
}

// Factory binds a driver to a database and a runner.
type Factory func(info Info, run Runner) Driver

const isEmptyDesc = "Find number of tables"

// runIsEmpty runs the is-empty template of d filled out with fields and
// compares its trimmed output to "0".
func runIsEmpty(ctx context.Context, d Driver, run Runner, fields map[string]string) (bool, error) {
	var out string
	err := command.With(d.IsEmptyTemplate(), fields, func(c *command.Command) error {
		var err error
		out, err = run.Run(ctx, c.Spec(isEmptyDesc))
		return err
	})
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "0", nil
}

// connArgs are the connection flags shared by the networked engines.
func connArgs(userFlag string) []command.Arg {
	return []command.Arg{
		{Flag: userFlag, Value: "{user}"},
		{Flag: "--host", Value: "{host}"},
		{Flag: "--port", Value: "{port}"},
	}
}

func args(groups ...[]command.Arg) []command.Arg {
	var out []command.Arg
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
