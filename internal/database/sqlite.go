package database

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dev-tams/dbbackup/internal/command"
)

const sqliteCountTables = "SELECT count(*) FROM sqlite_master WHERE type = 'table'"

// SQLite drives the sqlite3 shell. Name is the path of the database file.
type SQLite struct {
	info Info
	run  Runner
}

func NewSQLite(info Info, run Runner) Driver {
	return &SQLite{info: info, run: run}
}

func (s *SQLite) Info() Info { return s.info }

func (s *SQLite) DumpTemplate() command.Template {
	return command.Template{
		Program: "sqlite3",
		Args:    []command.Arg{{Value: "{name}"}, {Value: ".dump"}},
	}
}

func (s *SQLite) RestoreTemplate() command.Template {
	return command.Template{
		Program: "sqlite3",
		Args:    []command.Arg{{Value: "{name}"}},
	}
}

func (s *SQLite) IsEmptyTemplate() command.Template {
	return command.Template{
		Program: "sqlite3",
		Args:    []command.Arg{{Value: "{name}"}, {Value: sqliteCountTables}},
	}
}

// IsEmpty fails with *NoDatabaseError when the file is missing; sqlite3
// would otherwise create it and report no tables.
func (s *SQLite) IsEmpty(ctx context.Context) (bool, error) {
	if _, err := os.Stat(s.info.Name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, &NoDatabaseError{Path: s.info.Name}
		}
		return false, fmt.Errorf("stat sqlite database: %w", err)
	}
	return runIsEmpty(ctx, s, s.run, s.info.AsMap())
}
