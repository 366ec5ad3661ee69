package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/dbbackup/internal/command"
	"github.com/dev-tams/dbbackup/internal/process"
)

type recordingRunner struct {
	out   string
	err   error
	specs []process.Spec
	files []string
}

func (r *recordingRunner) Run(_ context.Context, spec process.Spec) (string, error) {
	r.specs = append(r.specs, spec)
	for i, a := range spec.Args {
		if a == "--defaults-extra-file" && i+1 < len(spec.Args) {
			r.files = append(r.files, spec.Args[i+1])
			data, err := os.ReadFile(spec.Args[i+1])
			if err != nil {
				return "", err
			}
			if string(data) != "[client]\npassword=s3cret\n" {
				return "", errors.New("unexpected option file content")
			}
		}
	}
	return r.out, r.err
}

func fill(t *testing.T, tmpl command.Template, info Info) *command.Command {
	t.Helper()
	c, err := command.FillOut(tmpl, info.AsMap())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Release() })
	return c
}

func TestPostgresTemplates(t *testing.T) {
	info := Info{Engine: "psql", Name: "app", User: "admin", Port: "5432"}
	d := NewPostgres(info, nil)

	dump := fill(t, d.DumpTemplate(), info)
	assert.Equal(t, "pg_dump", dump.Program)
	assert.Equal(t, "-U admin --port 5432 app", dump.ArgString())
	assert.Empty(t, dump.Env)

	restore := fill(t, d.RestoreTemplate(), info)
	assert.Equal(t, "psql", restore.Program)
	assert.Equal(t, "-U admin --port 5432 -v ON_ERROR_STOP=1 -q app", restore.ArgString())

	full := Info{Engine: "psql", Name: "app", User: "admin", Password: "s3cret", Host: "db", Port: "5432"}
	dump = fill(t, NewPostgres(full, nil).DumpTemplate(), full)
	assert.Equal(t, []string{"-U", "admin", "--host", "db", "--port", "5432", "app"}, dump.Args)
	assert.Equal(t, []string{"PGPASSWORD=s3cret"}, dump.Env)
}

func TestMySQLTemplates(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	info := Info{Engine: "mysql", Name: "app", User: "admin", Host: "db"}
	dump := fill(t, NewMySQL(info, nil).DumpTemplate(), info)
	assert.Equal(t, "mysqldump", dump.Program)
	assert.Equal(t, "--user admin --host db app", dump.ArgString())
	assert.Empty(t, dump.Files())

	info.Password = "s3cret"
	dump = fill(t, NewMySQL(info, nil).DumpTemplate(), info)
	require.Len(t, dump.Files(), 1)
	assert.Equal(t, []string{"--defaults-extra-file", dump.Files()[0], "--user", "admin", "--host", "db", "app"}, dump.Args)
}

func TestSQLiteTemplates(t *testing.T) {
	info := Info{Engine: "sqlite3", Name: "/var/lib/app.db"}
	d := NewSQLite(info, nil)

	assert.Equal(t, "/var/lib/app.db .dump", fill(t, d.DumpTemplate(), info).ArgString())
	assert.Equal(t, "/var/lib/app.db", fill(t, d.RestoreTemplate(), info).ArgString())
}

func TestIsEmptyComparesTrimmedOutput(t *testing.T) {
	tests := []struct {
		out  string
		want bool
	}{
		{out: "0", want: true},
		{out: " 0\n", want: true},
		{out: "3\n", want: false},
		{out: "", want: false},
		{out: "00", want: false},
	}
	for _, tc := range tests {
		run := &recordingRunner{out: tc.out}
		d := NewPostgres(Info{Engine: "psql", Name: "app"}, run)

		got, err := d.IsEmpty(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "output %q", tc.out)
		require.Len(t, run.specs, 1)
		assert.Equal(t, "Find number of tables", run.specs[0].Desc)
	}
}

func TestIsEmptyReleasesSecretFile(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	run := &recordingRunner{out: "0"}
	d := NewMySQL(Info{Engine: "mysql", Name: "app", User: "admin", Password: "s3cret"}, run)

	empty, err := d.IsEmpty(context.Background())
	require.NoError(t, err)
	assert.True(t, empty)
	require.Len(t, run.files, 1)
	assert.NoFileExists(t, run.files[0])
}

func TestMySQLIsEmptyQuotesSchemaName(t *testing.T) {
	run := &recordingRunner{out: "1"}
	d := NewMySQL(Info{Engine: "mysql", Name: `o'brien\`, User: "admin"}, run)

	empty, err := d.IsEmpty(context.Background())
	require.NoError(t, err)
	assert.False(t, empty)

	require.Len(t, run.specs, 1)
	args := run.specs[0].Args
	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, "-e", args[len(args)-2])
	assert.Equal(t,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'o''brien\\'`,
		args[len(args)-1])
}

func TestIsEmptyPropagatesFailure(t *testing.T) {
	boom := &process.FailedToRunError{Desc: "Find number of tables", ExitCode: 2}
	d := NewPostgres(Info{Engine: "psql", Name: "app"}, &recordingRunner{out: "0", err: boom})

	_, err := d.IsEmpty(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSQLiteIsEmptyMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	run := &recordingRunner{out: "0"}

	_, err := NewSQLite(Info{Engine: "sqlite3", Name: path}, run).IsEmpty(context.Background())

	var noDB *NoDatabaseError
	require.ErrorAs(t, err, &noDB)
	assert.Equal(t, "There was no sqlite database at "+path, err.Error())
	assert.Empty(t, run.specs)
}
