// Package config loads settings from built-in defaults, an optional YAML
// file and REMINDER_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"reminder/internal/domain"
)

const (
	EnvPrefix = "REMINDER_"
	AppDir    = "reminder-cli"
)

type Config struct {
	DataDir string        `koanf:"data_dir"`
	Daemon  DaemonConfig  `koanf:"daemon"`
	Log     LogConfig     `koanf:"log"`
	Notify  NotifyConfig  `koanf:"notify"`
	API     APIConfig     `koanf:"api"`
	Journal JournalConfig `koanf:"journal"`
}

type DaemonConfig struct {
	PollInterval      time.Duration `koanf:"poll_interval"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	StaleAfter        time.Duration `koanf:"stale_after"`
}

type LogConfig struct {
	MaxSize int64  `koanf:"max_size"`
	Level   string `koanf:"level"`
}

type NotifyConfig struct {
	Desktop    bool          `koanf:"desktop"`
	WebhookURL string        `koanf:"webhook_url"`
	Timeout    time.Duration `koanf:"timeout"`
}

// APIConfig enables the daemon's HTTP endpoint when Addr is set.
type APIConfig struct {
	Addr           string   `koanf:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type JournalConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Retention time.Duration `koanf:"retention"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"data_dir":                  DefaultDataDir(),
		"daemon.poll_interval":      "10s",
		"daemon.heartbeat_interval": "30s",
		"daemon.stale_after":        "90s",
		"log.max_size":              1 << 20,
		"log.level":                 "info",
		"notify.desktop":            true,
		"notify.webhook_url":        "",
		"notify.timeout":            "10s",
		"api.addr":                  "",
		"api.allowed_origins":       []string{"http://localhost", "http://127.0.0.1"},
		"journal.enabled":           true,
		"journal.retention":         "720h",
	}
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path means DefaultPath.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if path != "" {
		if err := loadDotEnv(k, filepath.Join(filepath.Dir(path), ".env")); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DataDir = expandPath(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv applies REMINDER_* entries from an optional .env file. The
// process environment is left untouched and still wins.
func loadDotEnv(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	m := make(map[string]interface{}, len(vars))
	for key, v := range vars {
		if strings.HasPrefix(key, EnvPrefix) {
			m[envKey(key)] = v
		}
	}
	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// envKey maps REMINDER_DAEMON__POLL_INTERVAL to daemon.poll_interval.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	err := validation.Errors{
		"data_dir": validation.Validate(c.DataDir, validation.Required),
		"daemon": validation.ValidateStruct(&c.Daemon,
			validation.Field(&c.Daemon.PollInterval, validation.Required, validation.Min(time.Second)),
			validation.Field(&c.Daemon.HeartbeatInterval, validation.Required, validation.Min(time.Second)),
			validation.Field(&c.Daemon.StaleAfter, validation.Required, validation.Min(time.Second)),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.MaxSize, validation.Required, validation.Min(int64(1024))),
			validation.Field(&c.Log.Level, validation.In("trace", "debug", "info", "warn", "error")),
		),
		"notify": validation.ValidateStruct(&c.Notify,
			validation.Field(&c.Notify.WebhookURL, is.URL),
			validation.Field(&c.Notify.Timeout, validation.Required, validation.Min(time.Second)),
		),
		"journal": validation.ValidateStruct(&c.Journal,
			validation.Field(&c.Journal.Retention, validation.Min(time.Duration(0))),
		),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: config: %v", domain.ErrInvalidInput, err)
	}
	// Beats are written at the end of a cycle, so they can never be more
	// frequent than the poll.
	if c.Daemon.HeartbeatInterval < c.Daemon.PollInterval {
		return fmt.Errorf("%w: config: daemon.heartbeat_interval must not be shorter than daemon.poll_interval", domain.ErrInvalidInput)
	}
	if c.Daemon.StaleAfter <= c.Daemon.HeartbeatInterval {
		return fmt.Errorf("%w: config: daemon.stale_after must exceed daemon.heartbeat_interval", domain.ErrInvalidInput)
	}
	return nil
}

// DefaultPath is config.yaml under the user configuration directory, or
// empty when that directory cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppDir, "config.yaml")
}

// DefaultDataDir follows the platform's local data directory convention.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if d := os.Getenv("LOCALAPPDATA"); d != "" {
			return filepath.Join(d, AppDir)
		}
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDir)
	default:
		if d := os.Getenv("XDG_DATA_HOME"); d != "" {
			return filepath.Join(d, AppDir)
		}
	}
	return filepath.Join(home, ".local", "share", AppDir)
}

func expandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
