// Package config provides configuration loading for the libreshelf CLI.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default values applied by SetDefaults.
const (
	DefaultBaseURL   = "https://stem-api.anajak-khmer.site"
	DefaultTimeout   = 15 * time.Second
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
	DefaultOutput    = "table"
	homeDirName      = ".libreshelf"
)

// Config is the root configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
	// Output selects how list and detail commands render: table, json or yaml.
	Output string `mapstructure:"output" validate:"omitempty,oneof=table json yaml"`
}

// APIConfig configures the HTTP client.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// SessionConfig configures where credentials are persisted.
type SessionConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	// Seal encrypts stored values with the key in KeyFile.
	Seal    *bool  `mapstructure:"seal"`
	KeyFile string `mapstructure:"key_file" validate:"required_if=Sealed true"`
	// Sealed mirrors Seal after defaults are applied; it exists for validation.
	Sealed bool `mapstructure:"-"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

// SealEnabled reports whether session values are encrypted at rest.
func (s SessionConfig) SealEnabled() bool {
	return s.Seal == nil || *s.Seal
}

// SetDefaults fills in every optional field left empty.
func (c *Config) SetDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}

	if c.Session.Path == "" {
		c.Session.Path = filepath.Join(stateDir(), "session.db")
	}
	if c.Session.KeyFile == "" {
		c.Session.KeyFile = filepath.Join(stateDir(), "session.key")
	}
	c.Session.Path = expandHome(c.Session.Path)
	c.Session.KeyFile = expandHome(c.Session.KeyFile)
	c.Session.Sealed = c.Session.SealEnabled()

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return homeDirName
	}
	return filepath.Join(home, homeDirName)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
