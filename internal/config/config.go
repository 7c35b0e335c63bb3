package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benaskins/xsession/internal/kdf"
	"github.com/benaskins/xsession/internal/keychain"
	"github.com/benaskins/xsession/internal/vault"
)

// Secret store backends.
const (
	BackendSystem = "system" // macOS Keychain or the OS keyring
	BackendSQLite = "sqlite" // file-backed store for headless hosts
)

// Config holds settings loaded from ~/.xsession/config.yaml.
type Config struct {
	Service    string     `yaml:"service"`
	AppID      string     `yaml:"app_id"`
	Backend    string     `yaml:"backend"`
	SQLitePath string     `yaml:"sqlite_path"`
	AuditLog   string     `yaml:"audit_log"`
	Socket     string     `yaml:"socket"`
	LogLevel   string     `yaml:"log_level"`
	KDF        kdf.Params `yaml:"kdf"`
}

// DefaultDir returns ~/.xsession.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".xsession")
}

// DefaultPath returns the default config file path: ~/.xsession/config.yaml.
func DefaultPath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Defaults returns the configuration used when no file exists, with state
// files placed in dir.
func Defaults(dir string) *Config {
	return &Config{
		Service:    keychain.DefaultService,
		AppID:      vault.DefaultAppID,
		Backend:    BackendSystem,
		SQLitePath: filepath.Join(dir, "secrets.db"),
		AuditLog:   filepath.Join(dir, "audit.log"),
		Socket:     filepath.Join(dir, "xsession.sock"),
		LogLevel:   "info",
		KDF:        kdf.DefaultParams,
	}
}

// Load reads a YAML config file from path. Keys missing from the file keep
// their defaults, and default state files live next to the config file. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	for _, p := range []*string{&cfg.SQLitePath, &cfg.AuditLog, &cfg.Socket} {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Service == "" {
		return errors.New("service must not be empty")
	}
	if c.AppID == "" {
		return errors.New("app_id must not be empty")
	}
	switch c.Backend {
	case BackendSystem:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendSystem, BackendSQLite)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if err := c.KDF.Validate(); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
