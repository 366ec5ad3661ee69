package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dbbackup/internal/config"
	"github.com/dev-tams/dbbackup/internal/notify"
	"github.com/dev-tams/dbbackup/internal/storage"
)

const notificationTimeout = 5 * time.Second

type BackupResult struct {
	DB       string
	Engine   string
	Status   string
	Bytes    int64
	Dest     string
	Duration time.Duration
	Err      error
}

// BackupKey is where a backup of db taken at t is stored.
func BackupKey(db string, t time.Time) string {
	return backupKeys.Key(db, t)
}

func RunBackup(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	_, err := RunBackupWithResults(ctx, cfg, log)
	return err
}

// RunBackupWithResults dumps, encrypts and stores every configured
// database in order. It stops at the first failure.
func RunBackupWithResults(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) ([]BackupResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	usedStorage := make(map[string]struct{}, len(cfg.Databases))
	for _, db := range cfg.Databases {
		usedStorage[db.Backup.Storage] = struct{}{}
	}

	stores, err := storage.FromConfigByNames(ctx, cfg, usedStorage)
	if err != nil {
		return nil, err
	}

	dispatcher, err := notify.NewDispatcher(cfg.Notifications)
	if err != nil {
		return nil, err
	}

	rt := newRuntime(cfg, log)
	results := make([]BackupResult, 0, len(cfg.Databases))

	for _, db := range cfg.Databases {
		res := rt.backupOne(ctx, cfg, db, stores)
		results = append(results, res)
		notifyResult(ctx, dispatcher, res, log)
		if res.Err != nil {
			return results, res.Err
		}
	}

	return results, nil
}

func (rt *runtime) backupOne(ctx context.Context, cfg *config.Config, db config.DatabaseConfig, stores map[string]storage.Storage) BackupResult {
	started := time.Now().UTC()
	res := BackupResult{DB: db.Name, Engine: db.Connection.Engine, Status: notify.StatusFailure}
	log := rt.log.WithFields(logrus.Fields{"db": db.Name, "engine": db.Connection.Engine})

	fail := func(err error) BackupResult {
		res.Duration = time.Since(started)
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			res.Err = fmt.Errorf("backup timed out for %s: %w", db.Name, err)
		case errors.Is(ctx.Err(), context.Canceled):
			res.Err = fmt.Errorf("backup canceled for %s: %w", db.Name, err)
		default:
			res.Err = fmt.Errorf("backup failed for %s: %w", db.Name, err)
		}
		log.WithError(res.Err).Error("backup failed")
		return res
	}

	st, ok := stores[db.Backup.Storage]
	if !ok {
		return fail(fmt.Errorf("storage %q not found", db.Backup.Storage))
	}
	log = log.WithField("storage", st.Name())

	h, err := rt.handler(db)
	if err != nil {
		return fail(err)
	}

	var cs closeStack
	staging, err := newStagingDir()
	if err != nil {
		return fail(err)
	}
	cs.add(staging)
	defer func() {
		if err := cs.closeAll(); err != nil {
			log.WithError(err).Warn("cleanup failed")
		}
	}()

	log.Debug("dumping database")
	dump, err := h.Dump(ctx)
	if err != nil {
		return fail(err)
	}
	cs.add(dump)

	staged := staging.path(backupKeys.prefix + "staged" + backupKeys.suffix)
	if err := rt.gpg.Encrypt(ctx, dump, cfg.Encryption.Recipients, staged); err != nil {
		return fail(err)
	}

	key := BackupKey(db.Name, started)
	n, dest, err := upload(ctx, st, key, staged)
	res.Bytes, res.Dest = n, dest
	if err != nil {
		return fail(err)
	}

	if err := ApplyRetention(ctx, db, st, log); err != nil {
		return fail(fmt.Errorf("retention: %w", err))
	}

	res.Status = notify.StatusSuccess
	res.Duration = time.Since(started)
	log.WithFields(logrus.Fields{
		"bytes":    n,
		"dest":     dest,
		"duration": res.Duration.Round(time.Millisecond),
	}).Info("backup OK")
	return res
}

func notifyResult(ctx context.Context, dispatcher *notify.Dispatcher, res BackupResult, log logrus.FieldLogger) {
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}

	event := notify.Event{
		DB:       res.DB,
		Engine:   res.Engine,
		Status:   res.Status,
		Bytes:    res.Bytes,
		Dest:     res.Dest,
		Duration: res.Duration.Round(time.Millisecond).String(),
		Error:    errMsg,
	}

	notifyCtx, cancel := notificationContext(ctx)
	defer cancel()

	if err := dispatcher.Notify(notifyCtx, event); err != nil {
		log.WithFields(logrus.Fields{"db": res.DB, "status": res.Status}).WithError(err).Warn("notification failed")
	}
}

func notificationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), notificationTimeout)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
}
