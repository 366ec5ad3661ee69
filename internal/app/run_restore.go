package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dbbackup/internal/config"
	"github.com/dev-tams/dbbackup/internal/storage"
)

var (
	ErrBadBackupFile    = errors.New("bad backup file")
	ErrNonEmptyDatabase = errors.New("Sorry, won't restore to a database that isn't empty")
)

// BadBackupFileError is returned when the file to restore from is missing.
// It matches ErrBadBackupFile.
type BadBackupFileError struct {
	Path string
}

func (e *BadBackupFileError) Error() string {
	return fmt.Sprintf("The backup file at '%s' doesn't exist", e.Path)
}

func (e *BadBackupFileError) Is(target error) bool { return target == ErrBadBackupFile }

// RestoreOptions selects what to restore. From is a local path, or a key
// in the storage named Storage when that is set.
type RestoreOptions struct {
	DB      string
	From    string
	Storage string
}

// RunRestore decrypts a backup and feeds it into the restore command of
// the chosen database. The database must be empty.
func RunRestore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, opts RestoreOptions) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := pickDatabase(cfg, opts.DB)
	if err != nil {
		return err
	}
	log = log.WithFields(logrus.Fields{"db": db.Name, "engine": db.Connection.Engine})

	var cs closeStack
	defer func() {
		if err := cs.closeAll(); err != nil {
			log.WithError(err).Warn("cleanup failed")
		}
	}()

	from := opts.From
	if opts.Storage != "" {
		staged, err := fetchBackup(ctx, cfg, opts.Storage, opts.From, &cs)
		if err != nil {
			return err
		}
		from = staged
	} else if _, err := os.Stat(from); err != nil {
		return &BadBackupFileError{Path: from}
	}

	if base := path.Base(opts.From); !strings.HasSuffix(base, backupKeys.suffix) {
		log.WithField("from", opts.From).Warnf("backup name does not end in %q", backupKeys.suffix)
	}

	rt := newRuntime(cfg, log)
	h, err := rt.handler(db)
	if err != nil {
		return err
	}
	if err := checkTools(rt.requiredTools(h, false)); err != nil {
		return err
	}

	empty, err := h.IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return ErrNonEmptyDatabase
	}

	plain, err := rt.gpg.Decrypt(ctx, from, cfg.Encryption.Passphrase)
	if err != nil {
		return err
	}
	cs.add(plain)

	if err := h.Restore(ctx, plain); err != nil {
		return err
	}

	log.WithField("from", opts.From).Info("restore OK")
	return nil
}

func pickDatabase(cfg *config.Config, name string) (config.DatabaseConfig, error) {
	if name == "" {
		if len(cfg.Databases) == 0 {
			return config.DatabaseConfig{}, fmt.Errorf("no databases configured")
		}
		return cfg.Databases[0], nil
	}
	db, ok := cfg.Database(name)
	if !ok {
		return config.DatabaseConfig{}, fmt.Errorf("db %q not found in config", name)
	}
	return db, nil
}

// fetchBackup downloads key from the named storage into a staging dir
// that is removed with cs.
func fetchBackup(ctx context.Context, cfg *config.Config, storageName, key string, cs *closeStack) (string, error) {
	stores, err := storage.FromConfigByNames(ctx, cfg, map[string]struct{}{storageName: {}})
	if err != nil {
		return "", err
	}
	st, ok := stores[storageName]
	if !ok {
		return "", fmt.Errorf("storage %q not found", storageName)
	}

	staging, err := newStagingDir()
	if err != nil {
		return "", err
	}
	cs.add(staging)

	dest := staging.path(path.Base(key))
	if err := download(ctx, st, key, dest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &BadBackupFileError{Path: key}
		}
		return "", err
	}
	return dest, nil
}
