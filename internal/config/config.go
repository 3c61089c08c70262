package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/raaddl/raad/internal/session"
	"github.com/raaddl/raad/pkg/logger"
	"github.com/raaddl/raad/pkg/manager"
	"github.com/raaddl/raad/pkg/transfer"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	EnvPrefix = "RAAD_"
)

var ErrBackend = errors.New("config: session backend must be file or sqlite")

// Config defines configuration for the raad CLI and the manager it drives.
type Config struct {
	DownloadDir     string            `yaml:"download_dir"`
	MaxConcurrent   int               `yaml:"max_concurrent"`
	Segments        int               `yaml:"segments"`
	GlobalMaxSpeed  string            `yaml:"max_speed"`
	ChecksumWorkers int               `yaml:"checksum_workers"`
	Power           PowerConfig       `yaml:"power"`
	Retry           RetryConfig       `yaml:"retry"`
	Log             LogConfig         `yaml:"log"`
	Session         SessionConfig     `yaml:"session"`
	Metrics         MetricsConfig     `yaml:"metrics"`
	Categories      map[string]string `yaml:"categories"`
}

type PowerConfig struct {
	PauseOnBattery bool `yaml:"pause_on_battery"`
	ResumeOnAC     bool `yaml:"resume_on_ac"`
}

// RetryConfig is the default retry policy for tasks that do not set one.
type RetryConfig struct {
	Max      int `yaml:"max"`
	DelaySec int `yaml:"delay_sec"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
}

// SessionConfig picks where the session document lives. An empty Path
// resolves to session.json or session.db under the config directory.
type SessionConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config matching manager.DefaultSettings.
func Default() Config {
	s := manager.DefaultSettings()
	return Config{
		DownloadDir:     s.DownloadDir,
		MaxConcurrent:   s.MaxConcurrent,
		Segments:        s.Segments,
		GlobalMaxSpeed:  "0",
		ChecksumWorkers: s.ChecksumWorkers,
		Power: PowerConfig{
			PauseOnBattery: s.PauseOnBattery,
			ResumeOnAC:     s.ResumeOnAC,
		},
		Retry: RetryConfig{
			Max:      s.DefaultRetryMax,
			DelaySec: s.DefaultRetryDelaySec,
		},
		Log:     LogConfig{Level: "info"},
		Session: SessionConfig{Backend: BackendFile},
	}
}

// Dir returns the per-user configuration directory of raad.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, "raad"), nil
}

// DefaultPath is Dir()/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadFromFile reads YAML over the defaults. Keys missing from the file keep
// their default values. A missing file is not an error when optional is set.
func LoadFromFile(afs afero.Fs, path string, optional bool) (Config, error) {
	cfg := Default()
	data, err := afero.ReadFile(afs, path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads a dotenv file into the process environment. With an empty
// path, ./.env is tried and its absence ignored.
func LoadDotEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadFromEnv applies RAAD_* variables from the process environment.
func (c *Config) LoadFromEnv() error {
	return c.ApplyEnv(os.LookupEnv)
}

// ApplyEnv applies RAAD_* variables obtained through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_CONCURRENT", &c.MaxConcurrent},
		{"SEGMENTS", &c.Segments},
		{"CHECKSUM_WORKERS", &c.ChecksumWorkers},
		{"RETRY_MAX", &c.Retry.Max},
		{"RETRY_DELAY", &c.Retry.DelaySec},
	}
	for _, e := range ints {
		if v, ok := get(e.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, e.key, err)
			}
			*e.dst = n
		}
	}
	bools := []struct {
		key string
		dst *bool
	}{
		{"PAUSE_ON_BATTERY", &c.Power.PauseOnBattery},
		{"RESUME_ON_AC", &c.Power.ResumeOnAC},
		{"LOG_DEV", &c.Log.Development},
	}
	for _, e := range bools {
		if v, ok := get(e.key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, e.key, err)
			}
			*e.dst = b
		}
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"DOWNLOAD_DIR", &c.DownloadDir},
		{"MAX_SPEED", &c.GlobalMaxSpeed},
		{"LOG_LEVEL", &c.Log.Level},
		{"LOG_FILE", &c.Log.File},
		{"SESSION_BACKEND", &c.Session.Backend},
		{"SESSION_PATH", &c.Session.Path},
		{"METRICS_ADDR", &c.Metrics.Addr},
	}
	for _, e := range strs {
		if v, ok := get(e.key); ok {
			*e.dst = v
		}
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return errors.New("config: max_concurrent must be positive")
	}
	if c.Segments < 1 {
		return errors.New("config: segments must be positive")
	}
	if c.Retry.Max < 0 || c.Retry.DelaySec < 0 {
		return errors.New("config: retry values must not be negative")
	}
	if _, err := c.maxSpeed(); err != nil {
		return err
	}
	switch c.Session.Backend {
	case BackendFile, BackendSQLite:
	default:
		return ErrBackend
	}
	return nil
}

func (c *Config) maxSpeed() (int64, error) {
	if strings.TrimSpace(c.GlobalMaxSpeed) == "" {
		return 0, nil
	}
	bps, err := transfer.ParseSpeedLimit(c.GlobalMaxSpeed)
	if err != nil {
		return 0, fmt.Errorf("config: max_speed: %w", err)
	}
	return bps, nil
}

// Settings converts the configuration into manager settings.
func (c *Config) Settings() (manager.Settings, error) {
	bps, err := c.maxSpeed()
	if err != nil {
		return manager.Settings{}, err
	}
	return manager.Settings{
		MaxConcurrent:        c.MaxConcurrent,
		GlobalMaxSpeed:       bps,
		PauseOnBattery:       c.Power.PauseOnBattery,
		ResumeOnAC:           c.Power.ResumeOnAC,
		DefaultRetryMax:      c.Retry.Max,
		DefaultRetryDelaySec: c.Retry.DelaySec,
		DownloadDir:          c.DownloadDir,
		Segments:             c.Segments,
		ChecksumWorkers:      c.ChecksumWorkers,
	}, nil
}

// ZapConfig returns the logger configuration.
func (c *Config) ZapConfig() logger.ZapConfig {
	z := logger.ZapConfig{Development: c.Log.Development, Level: c.Log.Level}
	if c.Log.File != "" {
		z.OutputPaths = []string{c.Log.File}
	}
	return z
}

// SessionPath resolves the session location, defaulting under dir.
func (c *Config) SessionPath(dir string) string {
	if c.Session.Path != "" {
		return c.Session.Path
	}
	if c.Session.Backend == BackendSQLite {
		return filepath.Join(dir, "session.db")
	}
	return filepath.Join(dir, "session.json")
}

// OpenStore opens the configured session backend. The file backend goes
// through afs; SQLite always uses the OS filesystem.
func (c *Config) OpenStore(afs afero.Fs, dir string) (session.Store, error) {
	path := c.SessionPath(dir)
	if err := afs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	switch c.Session.Backend {
	case BackendSQLite:
		return session.OpenSQLite(path)
	case BackendFile, "":
		return session.NewFileStore(afs, path), nil
	default:
		return nil, ErrBackend
	}
}
