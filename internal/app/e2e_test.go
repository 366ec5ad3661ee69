package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/dbbackup/internal/config"
	"github.com/dev-tams/dbbackup/internal/notify"
	"github.com/dev-tams/dbbackup/internal/storage/local"
)

func TestBackupAndRestoreSQLite(t *testing.T) {
	lookupOrSkip(t, "sqlite3")
	home := gpgHome(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	sqlite(t, src, `CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT);
INSERT INTO notes (body) VALUES ('first'), ('second'), ('it''s quoted');`)

	cfg := testConfig(t, sqliteDB("app", src))
	cfg.Encryption.HomeDir = home
	cfg.Process = config.ProcessConfig{Timeout: time.Minute, StartWindow: 2 * time.Second}
	cfg.Databases[0].Retention = config.RetentionConfig{KeepDaily: 3}

	ctx := context.Background()
	log, _ := testLogger()

	results, err := RunBackupWithResults(ctx, cfg, log)
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, notify.StatusSuccess, res.Status)
	assert.Equal(t, "sqlite3", res.Engine)
	assert.Positive(t, res.Bytes)

	base := cfg.Storage[0].Local.Path
	objects, err := local.New("main", base).List(ctx, "app")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	key := objects[0].Key
	assert.True(t, strings.HasPrefix(key, "app/db_backup_"), key)
	assert.True(t, strings.HasSuffix(key, ".gpg"), key)
	assert.Equal(t, filepath.Join(base, filepath.FromSlash(key)), res.Dest)

	raw, err := os.ReadFile(res.Dest)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "it's quoted")

	dst := filepath.Join(dir, "dst.db")
	require.NoError(t, os.WriteFile(dst, nil, 0o600))
	restoreCfg := *cfg
	restoreCfg.Databases = []config.DatabaseConfig{sqliteDB("app", dst)}
	restoreCfg.Databases[0].Backup.Storage = "main"

	require.NoError(t, RunRestore(ctx, &restoreCfg, log, RestoreOptions{From: key, Storage: "main"}))
	assert.Equal(t, "first\nsecond\nit's quoted\n", sqlite(t, dst, "SELECT body FROM notes ORDER BY id;"))

	err = RunRestore(ctx, &restoreCfg, log, RestoreOptions{From: res.Dest})
	assert.ErrorIs(t, err, ErrNonEmptyDatabase)
}

func TestBackupFailsForUnknownRecipient(t *testing.T) {
	lookupOrSkip(t, "sqlite3")
	home := gpgHome(t)

	src := filepath.Join(t.TempDir(), "src.db")
	sqlite(t, src, "CREATE TABLE t (id INTEGER);")

	cfg := testConfig(t, sqliteDB("app", src))
	cfg.Encryption.HomeDir = home
	cfg.Encryption.Recipients = []string{"nobody@example.invalid"}
	cfg.Process.StartWindow = 2 * time.Second

	log, _ := testLogger()
	results, err := RunBackupWithResults(context.Background(), cfg, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GPG didn't even start")
	require.Len(t, results, 1)
	assert.Equal(t, notify.StatusFailure, results[0].Status)

	entries, err := os.ReadDir(cfg.Storage[0].Local.Path)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is uploaded")
}
