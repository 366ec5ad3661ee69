package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dbbackup/internal/config"
	"github.com/dev-tams/dbbackup/internal/storage"
	"github.com/dev-tams/dbbackup/internal/storage/prunable"
)

// backupEntry is a stored backup and the time its key was stamped with.
type backupEntry struct {
	key string
	at  time.Time
}

// bucketRule keeps the newest backup in each of the keep most recent
// buckets. bucket labels the time of a backup; backups sharing a label share
// a bucket.
type bucketRule struct {
	keep   int
	bucket func(time.Time) string
}

func retentionRules(r config.RetentionConfig) []bucketRule {
	return []bucketRule{
		{keep: r.KeepDaily, bucket: func(t time.Time) string { return t.Format("2006-01-02") }},
		{keep: r.KeepWeekly, bucket: func(t time.Time) string {
			y, w := t.ISOWeek()
			return fmt.Sprintf("%04d-W%02d", y, w)
		}},
		{keep: r.KeepMonthly, bucket: func(t time.Time) string { return t.Format("2006-01") }},
	}
}

// ApplyRetention deletes the backups of db that no retention bucket claims.
// Keys that are not backups written by this tool are left alone.
func ApplyRetention(ctx context.Context, db config.DatabaseConfig, st storage.Storage, log logrus.FieldLogger) error {
	if !db.Retention.Enabled() {
		return nil
	}
	log = log.WithFields(logrus.Fields{"db": db.Name, "storage": st.Name()})

	pr, ok := st.(prunable.Prunable)
	if !ok {
		log.Debug("retention skipped, storage is not prunable")
		return nil
	}

	entries, skipped, err := listBackups(ctx, pr, db.Name, backupKeys)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	keep := selectKeep(entries, retentionRules(db.Retention))

	deleted := 0
	for _, e := range entries {
		if keep[e.key] {
			continue
		}
		if err := pr.Delete(ctx, e.key); err != nil {
			return fmt.Errorf("retention delete: %w", err)
		}
		log.WithField("key", e.key).Debug("deleted old backup")
		deleted++
	}

	log.WithFields(logrus.Fields{
		"kept":    len(keep),
		"deleted": deleted,
		"skipped": skipped,
	}).Info("retention applied")
	return nil
}

// listBackups returns the backups under prefix, newest first, and how many
// listed keys did not fit layout.
func listBackups(ctx context.Context, pr prunable.Prunable, prefix string, layout keyLayout) ([]backupEntry, int, error) {
	objects, err := pr.List(ctx, prefix)
	if err != nil {
		return nil, 0, fmt.Errorf("retention list: %w", err)
	}

	entries := make([]backupEntry, 0, len(objects))
	skipped := 0
	for _, o := range objects {
		at, ok := layout.Time(o.Key)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, backupEntry{key: o.Key, at: at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
	return entries, skipped, nil
}

// selectKeep walks entries newest first and returns the keys claimed by at
// least one rule. Rules with keep <= 0 claim nothing.
func selectKeep(entries []backupEntry, rules []bucketRule) map[string]bool {
	keep := make(map[string]bool, len(entries))
	claimed := make([]map[string]bool, len(rules))
	for i := range claimed {
		claimed[i] = make(map[string]bool)
	}

	for _, e := range entries {
		open := false
		for i, r := range rules {
			if len(claimed[i]) >= r.keep {
				continue
			}
			if b := r.bucket(e.at.UTC()); !claimed[i][b] {
				claimed[i][b] = true
				keep[e.key] = true
			}
			if len(claimed[i]) < r.keep {
				open = true
			}
		}
		if !open {
			break
		}
	}
	return keep
}
