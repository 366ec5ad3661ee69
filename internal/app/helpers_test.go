package app

import (
	"os"
	"os/exec"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/dbbackup/internal/config"
)

func testLogger() (*logrus.Logger, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

// testConfig is a valid config with one local storage under a temp dir.
func testConfig(t *testing.T, dbs ...config.DatabaseConfig) *config.Config {
	t.Helper()
	for i := range dbs {
		if dbs[i].Backup.Storage == "" {
			dbs[i].Backup.Storage = "main"
		}
	}
	return &config.Config{
		Version:    1,
		Encryption: config.EncryptionConfig{Recipients: []string{"backup@example.com"}},
		Storage: []config.StorageConfig{
			{Name: "main", Type: "local", Local: &config.LocalConfig{Path: t.TempDir()}},
		},
		Databases: dbs,
	}
}

func sqliteDB(name, path string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Name:       name,
		Connection: config.ConnectionConfig{Engine: "sqlite3", Name: path},
	}
}

func lookupOrSkip(t *testing.T, program string) {
	t.Helper()
	if _, err := exec.LookPath(program); err != nil {
		t.Skipf("%s not found on PATH", program)
	}
}

// sqlite runs sql against the database at path with the sqlite3 CLI.
func sqlite(t *testing.T, path, sql string) string {
	t.Helper()
	out, err := exec.Command("sqlite3", path, sql).CombinedOutput()
	require.NoError(t, err, string(out))
	return string(out)
}

// gpgHome makes a throwaway keyring holding a key for backup@example.com.
func gpgHome(t *testing.T) string {
	t.Helper()
	lookupOrSkip(t, "gpg")

	home, err := os.MkdirTemp("", "gpg")
	require.NoError(t, err)
	require.NoError(t, os.Chmod(home, 0o700))
	t.Cleanup(func() {
		_ = exec.Command("gpgconf", "--homedir", home, "--kill", "gpg-agent").Run()
		_ = os.RemoveAll(home)
	})

	gen := exec.Command("gpg", "--batch", "--homedir", home, "--pinentry-mode", "loopback",
		"--passphrase", "", "--quick-gen-key", "backup@example.com", "default", "default", "never")
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("could not generate a test key: %v: %s", err, out)
	}
	return home
}
