// Package config handles the mdv configuration file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Environment variables.
const (
	EnvConfig   = "MDV_CONFIG"
	EnvVault    = "MDV_VAULT"
	EnvLogLevel = "MDV_LOG_LEVEL"
)

const DefaultLogLevel = "warn"

// Config is the contents of config.toml.
type Config struct {
	// DefaultVault is a path or a name from Vaults.
	DefaultVault string `toml:"default_vault"`

	// Vaults maps short names to vault paths.
	Vaults map[string]string `toml:"vaults"`

	LogLevel string `toml:"log_level"`

	// LogFile, when set, receives JSON logs in addition to stderr.
	LogFile string `toml:"log_file"`

	// Path is the file the config was read from. Empty when none was found.
	Path string `toml:"-"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Vaults, validation.Each(validation.Required)),
	)
}

// DefaultPath returns $MDV_CONFIG, or ~/.config/mdv/config.toml.
func DefaultPath() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfig)); p != "" {
		return ExpandHome(p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "mdv", "config.toml")
	}
	return filepath.Join(".", "config.toml")
}

// Load reads the config at path, or at DefaultPath when path is empty. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	path = ExpandHome(path)

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Path = path
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolveVault picks the vault path: the --vault flag, then $MDV_VAULT, then
// default_vault, then the working directory. Names from [vaults] are looked up
// before a value is treated as a path.
func (c *Config) ResolveVault(flag string) string {
	for _, candidate := range []string{flag, os.Getenv(EnvVault), c.DefaultVault} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if p, ok := c.Vaults[candidate]; ok {
			return ExpandHome(p)
		}
		return ExpandHome(candidate)
	}
	return "."
}

// ResolveLogLevel picks the log level: the --log-level flag, then
// $MDV_LOG_LEVEL, then log_level, then warn.
func (c *Config) ResolveLogLevel(flag string) string {
	for _, candidate := range []string{flag, os.Getenv(EnvLogLevel), c.LogLevel} {
		if candidate = strings.ToLower(strings.TrimSpace(candidate)); candidate != "" {
			return candidate
		}
	}
	return DefaultLogLevel
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
