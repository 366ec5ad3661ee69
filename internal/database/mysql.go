package database

import (
	"context"
	"strings"

	"github.com/dev-tams/dbbackup/internal/command"
)

// mysqlCountTables takes the database name through {schema}, the name
// escaped for a single quoted SQL string.
const mysqlCountTables = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = '{schema}'"

var sqlStringEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`)

// isEmptyFields are the template fields of the is-empty query.
func (m *MySQL) isEmptyFields() map[string]string {
	fields := m.info.AsMap()
	fields["schema"] = sqlStringEscaper.Replace(m.info.Name)
	return fields
}

// MySQL drives mysqldump and mysql. The password goes into an option file
// passed with --defaults-extra-file, which has to be the first argument.
type MySQL struct {
	info Info
	run  Runner
}

func NewMySQL(info Info, run Runner) Driver {
	return &MySQL{info: info, run: run}
}

func (m *MySQL) Info() Info { return m.info }

func (m *MySQL) secret() *command.SecretPolicy {
	if m.info.Password == "" {
		return nil
	}
	return &command.SecretPolicy{File: "[client]\npassword={password}\n"}
}

func (m *MySQL) conn() []command.Arg {
	var out []command.Arg
	if m.info.Password != "" {
		out = append(out, command.Arg{Flag: "--defaults-extra-file", Value: "{" + command.PasswordFileField + "}"})
	}
	return append(out, connArgs("--user")...)
}

func (m *MySQL) DumpTemplate() command.Template {
	return command.Template{
		Program: "mysqldump",
		Args:    args(m.conn(), []command.Arg{{Value: "{name}"}}),
		Secret:  m.secret(),
	}
}

func (m *MySQL) RestoreTemplate() command.Template {
	return command.Template{
		Program: "mysql",
		Args:    args(m.conn(), []command.Arg{{Value: "{name}"}}),
		Secret:  m.secret(),
	}
}

func (m *MySQL) IsEmptyTemplate() command.Template {
	return command.Template{
		Program: "mysql",
		Args: args(m.conn(), []command.Arg{
			{Value: "--batch"},
			{Value: "--skip-column-names"},
			{Flag: "-e", Value: mysqlCountTables},
		}),
		Secret: m.secret(),
	}
}

func (m *MySQL) IsEmpty(ctx context.Context) (bool, error) {
	return runIsEmpty(ctx, m, m.run, m.isEmptyFields())
}
