package database

import (
	"context"

	"github.com/dev-tams/dbbackup/internal/command"
)

const postgresCountTables = "SELECT count(*) FROM information_schema.tables " +
	"WHERE table_schema NOT IN ('pg_catalog', 'information_schema')"

// Postgres drives pg_dump and psql. The password is handed over in
// PGPASSWORD.
type Postgres struct {
	info Info
	run  Runner
}

func NewPostgres(info Info, run Runner) Driver {
	return &Postgres{info: info, run: run}
}

func (p *Postgres) Info() Info { return p.info }

func (p *Postgres) secret() *command.SecretPolicy {
	if p.info.Password == "" {
		return nil
	}
	return &command.SecretPolicy{Env: map[string]string{"PGPASSWORD": "{password}"}}
}

func (p *Postgres) DumpTemplate() command.Template {
	return command.Template{
		Program: "pg_dump",
		Args:    args(connArgs("-U"), []command.Arg{{Value: "{name}"}}),
		Secret:  p.secret(),
	}
}

func (p *Postgres) RestoreTemplate() command.Template {
	return command.Template{
		Program: "psql",
		Args: args(connArgs("-U"), []command.Arg{
			{Flag: "-v", Value: "ON_ERROR_STOP=1"},
			{Value: "-q"},
			{Value: "{name}"},
		}),
		Secret: p.secret(),
	}
}

func (p *Postgres) IsEmptyTemplate() command.Template {
	return command.Template{
		Program: "psql",
		Args: args(connArgs("-U"), []command.Arg{
			{Value: "-t"},
			{Value: "-A"},
			{Flag: "-c", Value: postgresCountTables},
			{Value: "{name}"},
		}),
		Secret: p.secret(),
	}
}

func (p *Postgres) IsEmpty(ctx context.Context) (bool, error) {
	return runIsEmpty(ctx, p, p.run, p.info.AsMap())
}
