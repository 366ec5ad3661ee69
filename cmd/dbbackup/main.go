package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/dev-tams/dbbackup/internal/app"
	"github.com/dev-tams/dbbackup/internal/config"
	"github.com/dev-tams/dbbackup/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dbbackup",
		Usage: "encrypted database backups through the engines' own dump tools",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Required: true,
				Usage:    "path to config yaml",
				EnvVars:  []string{"DBBACKUP_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "backup",
				Usage: "dump, encrypt and store every configured database",
				Action: func(c *cli.Context) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					return app.RunBackup(c.Context, cfg, log)
				},
			},
			{
				Name:  "restore",
				Usage: "restore a backup into an empty configured database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "db",
						Usage: "database name from config (optional; defaults to first database)",
					},
					&cli.StringFlag{
						Name:     "from",
						Required: true,
						Usage:    "path to the backup file, or its key when --storage is set",
					},
					&cli.StringFlag{
						Name:  "storage",
						Usage: "fetch --from out of this configured storage",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					return app.RunRestore(c.Context, cfg, log, app.RestoreOptions{
						DB:      c.String("db"),
						From:    c.String("from"),
						Storage: c.String("storage"),
					})
				},
			},
			{
				Name:  "daemon",
				Usage: "run backups on each database's backup.schedule",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "run-timeout",
						Usage: "give up on a scheduled run after this long (0 disables)",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					return app.RunDaemon(c.Context, cfg, log, c.Duration("run-timeout"))
				},
			},
			{
				Name:  "check",
				Usage: "verify drivers, tools and target databases",
				Action: func(c *cli.Context) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					return app.RunCheck(c.Context, cfg, log, c.App.Writer)
				},
			},
		},
	}
}

func setup(c *cli.Context) (*config.Config, *logrus.Logger, error) {
	cfg, err := loadValidatedConfig(c.String("config"))
	if err != nil {
		return nil, nil, err
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: c.App.ErrWriter}
	if c.Bool("verbose") {
		logCfg.Level = logrus.DebugLevel.String()
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	log.WithField("config", c.String("config")).Debug("config loaded")
	return cfg, log, nil
}

func loadValidatedConfig(cfgPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
