package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dbbackup/internal/config"
	"github.com/dev-tams/dbbackup/internal/schedule"
)

const daemonPoll = 500 * time.Millisecond

var (
	daemonNow    = time.Now
	daemonBackup = RunBackup
)

type daemonJob struct {
	db       config.DatabaseConfig
	schedule schedule.CronSpec
}

// RunDaemon runs the backups of every database with a schedule, once per
// matching minute, until ctx is done. A failed run ends the daemon.
func RunDaemon(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, runTimeout time.Duration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	jobs := make([]daemonJob, 0, len(cfg.Databases))
	for _, db := range cfg.Databases {
		s := strings.TrimSpace(db.Backup.Schedule)
		if s == "" {
			log.WithField("db", db.Name).Debug("daemon: skipped, empty schedule")
			continue
		}

		spec, err := schedule.ParseCronSpec(s)
		if err != nil {
			return fmt.Errorf("db %s: invalid schedule %q: %w", db.Name, s, err)
		}
		jobs = append(jobs, daemonJob{db: db, schedule: spec})
	}

	if len(jobs) == 0 {
		return fmt.Errorf("daemon: no databases with a valid non-empty backup.schedule")
	}

	for _, job := range jobs {
		log.WithFields(logrus.Fields{
			"db":       job.db.Name,
			"schedule": job.schedule.String(),
			"next":     job.schedule.Next(daemonNow().UTC()).Format(time.RFC3339),
		}).Info("daemon: scheduled")
	}

	lastMinute := time.Time{}
	lastRunByDB := make(map[string]time.Time, len(jobs))

	for {
		select {
		case <-ctx.Done():
			log.Info("daemon: shutdown requested")
			return nil
		default:
		}

		currentMinute := daemonNow().UTC().Truncate(time.Minute)
		if currentMinute.Equal(lastMinute) {
			sleepUntilNextPoll(ctx, daemonPoll)
			continue
		}
		lastMinute = currentMinute

		due := make([]config.DatabaseConfig, 0, len(jobs))
		for _, job := range jobs {
			if !job.schedule.Matches(currentMinute) {
				continue
			}
			if lm, ok := lastRunByDB[job.db.Name]; ok && lm.Equal(currentMinute) {
				continue
			}
			due = append(due, job.db)
		}

		if len(due) == 0 {
			continue
		}

		runCfg := *cfg
		runCfg.Databases = due

		log.WithFields(logrus.Fields{
			"jobs":   len(due),
			"minute": currentMinute.Format(time.RFC3339),
		}).Info("daemon: triggering backups")

		runCtx := ctx
		cancel := func() {}
		if runTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, runTimeout)
		}

		err := daemonBackup(runCtx, &runCfg, log)
		timedOut := runTimeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				log.WithError(err).Info("daemon: shutdown during a run")
				return nil
			}
			if timedOut {
				return fmt.Errorf("daemon run timed out after %s", runTimeout)
			}
			return fmt.Errorf("daemon run: %w", err)
		}

		for _, db := range due {
			lastRunByDB[db.Name] = currentMinute
		}
	}
}

func sleepUntilNextPoll(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
