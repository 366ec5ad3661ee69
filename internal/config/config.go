package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Version       int                  `mapstructure:"version"`
	Logging       LoggingConfig        `mapstructure:"logging"`
	Process       ProcessConfig        `mapstructure:"process"`
	Encryption    EncryptionConfig     `mapstructure:"encryption"`
	Storage       []StorageConfig      `mapstructure:"storage"`
	Databases     []DatabaseConfig     `mapstructure:"databases"`
	Notifications []NotificationConfig `mapstructure:"notifications"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProcessConfig bounds how long external tools may run. Zero values use
// the supervisor defaults.
type ProcessConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Grace       time.Duration `mapstructure:"grace"`
	KillWait    time.Duration `mapstructure:"kill_wait"`
	FinishWait  time.Duration `mapstructure:"finish_wait"`
	StartWindow time.Duration `mapstructure:"start_window"`
}

type EncryptionConfig struct {
	GPG        string   `mapstructure:"gpg"`
	HomeDir    string   `mapstructure:"homedir"`
	Recipients []string `mapstructure:"recipients"`
	Passphrase string   `mapstructure:"passphrase"`
}

type DatabaseConfig struct {
	Name       string           `mapstructure:"name"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Retention  RetentionConfig  `mapstructure:"retention"`
}

// ConnectionConfig mirrors the connection settings of a Django DATABASES
// entry. Port is a string so both 5432 and "5432" are accepted.
type ConnectionConfig struct {
	Engine   string `mapstructure:"engine"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
}

// AsMap returns the connection as loosely typed settings.
func (c ConnectionConfig) AsMap() map[string]any {
	return map[string]any{
		"engine":   c.Engine,
		"name":     c.Name,
		"user":     c.User,
		"password": c.Password,
		"host":     c.Host,
		"port":     c.Port,
	}
}

type BackupConfig struct {
	Schedule string `mapstructure:"schedule"`
	Storage  string `mapstructure:"storage"`
}

type RetentionConfig struct {
	KeepDaily   int `mapstructure:"keep_daily"`
	KeepWeekly  int `mapstructure:"keep_weekly"`
	KeepMonthly int `mapstructure:"keep_monthly"`
}

func (r RetentionConfig) Enabled() bool {
	return r.KeepDaily > 0 || r.KeepWeekly > 0 || r.KeepMonthly > 0
}

type StorageConfig struct {
	Name  string       `mapstructure:"name"`
	Type  string       `mapstructure:"type"`
	Local *LocalConfig `mapstructure:"local"`
	S3    *S3Config    `mapstructure:"s3"`
}

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Prefix       string `mapstructure:"prefix"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
}

type NotificationConfig struct {
	Type   string              `mapstructure:"type"`
	On     []string            `mapstructure:"on"`
	Config NotificationDetails `mapstructure:"config"`
}

type NotificationDetails struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ModifyConfig(&cfg)

	return &cfg, nil
}

// ModifyConfig expands ${VAR} references in every string setting.
func ModifyConfig(cfg *Config) {
	cfg.Logging.Level = os.ExpandEnv(cfg.Logging.Level)
	cfg.Logging.Format = os.ExpandEnv(cfg.Logging.Format)

	enc := &cfg.Encryption
	enc.GPG = os.ExpandEnv(enc.GPG)
	enc.HomeDir = os.ExpandEnv(enc.HomeDir)
	enc.Passphrase = os.ExpandEnv(enc.Passphrase)
	for i := range enc.Recipients {
		enc.Recipients[i] = os.ExpandEnv(enc.Recipients[i])
	}

	for i := range cfg.Databases {
		db := &cfg.Databases[i]
		db.Name = os.ExpandEnv(db.Name)
		db.Connection.Engine = os.ExpandEnv(db.Connection.Engine)
		db.Connection.Name = os.ExpandEnv(db.Connection.Name)
		db.Connection.User = os.ExpandEnv(db.Connection.User)
		db.Connection.Password = os.ExpandEnv(db.Connection.Password)
		db.Connection.Host = os.ExpandEnv(db.Connection.Host)
		db.Connection.Port = os.ExpandEnv(db.Connection.Port)
		db.Backup.Schedule = os.ExpandEnv(db.Backup.Schedule)
		db.Backup.Storage = os.ExpandEnv(db.Backup.Storage)
	}

	for i := range cfg.Storage {
		st := &cfg.Storage[i]
		st.Name = os.ExpandEnv(st.Name)
		st.Type = os.ExpandEnv(st.Type)
		if st.Local != nil {
			st.Local.Path = os.ExpandEnv(st.Local.Path)
		}
		if st.S3 != nil {
			st.S3.Bucket = os.ExpandEnv(st.S3.Bucket)
			st.S3.Region = os.ExpandEnv(st.S3.Region)
			st.S3.Prefix = os.ExpandEnv(st.S3.Prefix)
			st.S3.Endpoint = os.ExpandEnv(st.S3.Endpoint)
			st.S3.AccessKey = os.ExpandEnv(st.S3.AccessKey)
			st.S3.SecretKey = os.ExpandEnv(st.S3.SecretKey)
		}
	}

	for i := range cfg.Notifications {
		nt := &cfg.Notifications[i]
		nt.Type = os.ExpandEnv(nt.Type)
		for j := range nt.On {
			nt.On[j] = os.ExpandEnv(nt.On[j])
		}
		nt.Config.URL = os.ExpandEnv(nt.Config.URL)
		for k, v := range nt.Config.Headers {
			nt.Config.Headers[k] = os.ExpandEnv(v)
		}
	}
}

// Database returns the database named name.
func (c *Config) Database(name string) (DatabaseConfig, bool) {
	for _, db := range c.Databases {
		if db.Name == name {
			return db, true
		}
	}
	return DatabaseConfig{}, false
}
