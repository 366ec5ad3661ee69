package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/dbbackup/internal/config"
)

func TestCheckReportsDriverAndTools(t *testing.T) {
	stubCheckCommand(t, "mysqldump")

	cfg := testConfig(t,
		config.DatabaseConfig{Name: "orders", Connection: config.ConnectionConfig{Engine: "mysql", Name: "orders"}},
		config.DatabaseConfig{Name: "legacy", Connection: config.ConnectionConfig{Engine: "oracle", Name: "ora"}},
	)

	var out bytes.Buffer
	log, _ := testLogger()
	err := RunCheck(context.Background(), cfg, log, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db orders")
	assert.Contains(t, err.Error(), "mysqldump")
	assert.Contains(t, err.Error(), "Couldn't find driver for engine oracle")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"DATABASE", "ENGINE", "TOOLS", "EMPTY"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"orders", "mysql", "missing", "-"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"legacy", "oracle", "no", "driver", "-"}, strings.Fields(lines[2]))
}

func TestCheckSQLite(t *testing.T) {
	lookupOrSkip(t, "sqlite3")
	stubCheckCommand(t)

	dir := t.TempDir()
	full := filepath.Join(dir, "full.db")
	sqlite(t, full, "CREATE TABLE t (id INTEGER);")

	cfg := testConfig(t, sqliteDB("full", full), sqliteDB("gone", filepath.Join(dir, "gone.db")))

	var out bytes.Buffer
	log, _ := testLogger()
	err := RunCheck(context.Background(), cfg, log, &out)
	assert.ErrorContains(t, err, "There was no sqlite database at")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"full", "sqlite3", "ok", "false"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"gone", "sqlite3", "ok", "error"}, strings.Fields(lines[2]))
}
