package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/dbbackup/internal/config"
)

// fakeClock hands out a fixed minute until advanced.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func stubDaemon(t *testing.T, clock *fakeClock, backup func(context.Context, *config.Config, logrus.FieldLogger) error) {
	t.Helper()
	origNow, origBackup := daemonNow, daemonBackup
	t.Cleanup(func() { daemonNow, daemonBackup = origNow, origBackup })
	daemonNow = clock.Now
	daemonBackup = backup
}

func scheduled(name, schedule string) config.DatabaseConfig {
	db := sqliteDB(name, name+".db")
	db.Backup.Schedule = schedule
	return db
}

func TestDaemonRunsDueDatabasesOncePerMinute(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 2, 0, 10, 0, time.UTC)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var runs [][]string
	stubDaemon(t, clock, func(_ context.Context, cfg *config.Config, _ logrus.FieldLogger) error {
		var names []string
		for _, db := range cfg.Databases {
			names = append(names, db.Name)
		}
		mu.Lock()
		runs = append(runs, names)
		n := len(runs)
		mu.Unlock()

		switch n {
		case 1:
			clock.Set(time.Date(2026, 10, 15, 2, 1, 5, 0, time.UTC))
		default:
			cancel()
		}
		return nil
	})

	cfg := testConfig(t,
		scheduled("hourly", "0 * * * *"),
		scheduled("minutely", "* * * * *"),
		sqliteDB("manual", "manual.db"),
	)

	log, _ := testLogger()
	require.NoError(t, RunDaemon(ctx, cfg, log, 0))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]string{{"hourly", "minutely"}, {"minutely"}}, runs)
}

func TestDaemonStopsOnFailedRun(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)}
	boom := errors.New("boom")
	stubDaemon(t, clock, func(context.Context, *config.Config, logrus.FieldLogger) error {
		return boom
	})

	log, _ := testLogger()
	err := RunDaemon(context.Background(), testConfig(t, scheduled("app", "* * * * *")), log, time.Minute)
	assert.ErrorIs(t, err, boom)
}

func TestDaemonRunTimeout(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)}
	stubDaemon(t, clock, func(ctx context.Context, _ *config.Config, _ logrus.FieldLogger) error {
		<-ctx.Done()
		return ctx.Err()
	})

	log, _ := testLogger()
	err := RunDaemon(context.Background(), testConfig(t, scheduled("app", "* * * * *")), log, 20*time.Millisecond)
	assert.EqualError(t, err, "daemon run timed out after 20ms")
}

func TestDaemonNeedsSchedules(t *testing.T) {
	log, _ := testLogger()
	err := RunDaemon(context.Background(), testConfig(t, sqliteDB("app", "app.db")), log, 0)
	assert.ErrorContains(t, err, "no databases with a valid non-empty backup.schedule")
}

func TestDaemonShutdown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 2, 0, 30, 0, time.UTC)}
	stubDaemon(t, clock, func(context.Context, *config.Config, logrus.FieldLogger) error {
		t.Error("no backup is due")
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	log, hook := testLogger()
	require.NoError(t, RunDaemon(ctx, testConfig(t, scheduled("app", "0 3 * * *")), log, 0))
	assert.Equal(t, "daemon: shutdown requested", hook.LastEntry().Message)
}
