package config

import (
	"fmt"

	"github.com/dev-tams/dbbackup/internal/schedule"
)

func (c *Config) Validate() error {
	if c.Version == 0 {
		return fmt.Errorf("config.version must be > 0")
	}

	p := c.Process
	if p.Timeout < 0 || p.Grace < 0 || p.KillWait < 0 || p.FinishWait < 0 || p.StartWindow < 0 {
		return fmt.Errorf("process durations must not be negative")
	}

	storageNames := map[string]struct{}{}
	for i, st := range c.Storage {
		if st.Name == "" {
			return fmt.Errorf("storage[%d].name is required", i)
		}
		if _, ok := storageNames[st.Name]; ok {
			return fmt.Errorf("duplicate storage.name %q", st.Name)
		}
		storageNames[st.Name] = struct{}{}

		switch st.Type {
		case "local":
			if st.Local == nil || st.Local.Path == "" {
				return fmt.Errorf("storage %s: local.path is required", st.Name)
			}
		case "s3":
			if st.S3 == nil || st.S3.Bucket == "" {
				return fmt.Errorf("storage %s: s3.bucket is required", st.Name)
			}
		case "":
			return fmt.Errorf("storage.type is required for storage %s", st.Name)
		default:
			return fmt.Errorf("storage %s: unknown type %q", st.Name, st.Type)
		}
	}

	dbNames := map[string]struct{}{}
	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("databases[%d].name is required", i)
		}
		if _, ok := dbNames[db.Name]; ok {
			return fmt.Errorf("duplicate databases.name %q", db.Name)
		}
		dbNames[db.Name] = struct{}{}

		if db.Connection.Engine == "" {
			return fmt.Errorf("databases[%d].connection.engine is required (e.g. psql, mysql, sqlite3)", i)
		}
		if db.Connection.Name == "" {
			return fmt.Errorf("databases[%d].connection.name is required", i)
		}
		if db.Backup.Storage == "" {
			return fmt.Errorf("databases[%d] backup.storage is required (must match a storage.name)", i)
		}
		if _, ok := storageNames[db.Backup.Storage]; !ok {
			return fmt.Errorf("databases[%d] backup.storage=%q not found in storage list", i, db.Backup.Storage)
		}
		if db.Backup.Schedule != "" {
			if _, err := schedule.ParseCronSpec(db.Backup.Schedule); err != nil {
				return fmt.Errorf("databases[%d] backup.schedule %q: %w", i, db.Backup.Schedule, err)
			}
		}
		r := db.Retention
		if r.KeepDaily < 0 || r.KeepWeekly < 0 || r.KeepMonthly < 0 {
			return fmt.Errorf("databases[%d] retention values must not be negative", i)
		}
	}

	if len(c.Databases) > 0 && len(c.Encryption.Recipients) == 0 {
		return fmt.Errorf("encryption.recipients must list at least one gpg recipient")
	}
	return nil
}
