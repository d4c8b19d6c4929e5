package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/keylink/internal/device/go-ble"
	"github.com/srg/keylink/internal/hub"
	"github.com/srg/keylink/internal/protocol"
	"gopkg.in/yaml.v3"
)

// AppName names the configuration directory.
const AppName = "keylink"

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"warn"`

	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	ReplyTimeout     time.Duration `yaml:"reply_timeout" default:"3s"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" default:"2500ms"`
	HandshakeRetries int           `yaml:"handshake_retries" default:"2"`
	HandshakeBackoff time.Duration `yaml:"handshake_backoff" default:"0s"`

	MTU         int    `yaml:"mtu" default:"247"`
	Persistent  bool   `yaml:"persistent" default:"true"`
	BacklogSize uint32 `yaml:"backlog_size" default:"64"`

	// PreferencesFile stores the selected device and user settings.
	// Empty means <user config dir>/keylink/preferences.yaml.
	PreferencesFile string `yaml:"preferences_file"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns <user config dir>/keylink/<name>.
func DefaultPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, AppName, name)
}

// Load reads the YAML file at path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the transport cannot work with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.MTU < goble.DefaultMTU || c.MTU > 517 {
		return fmt.Errorf("invalid mtu %d: must be between %d and 517", c.MTU, goble.DefaultMTU)
	}
	if c.HandshakeRetries < 0 {
		return fmt.Errorf("invalid handshake_retries %d: must not be negative", c.HandshakeRetries)
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout":   c.ConnectTimeout,
		"write_timeout":     c.WriteTimeout,
		"reply_timeout":     c.ReplyTimeout,
		"handshake_timeout": c.HandshakeTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	return nil
}

// PreferencesPath returns the configured preferences file or its default location.
func (c *Config) PreferencesPath() string {
	if c.PreferencesFile != "" {
		return c.PreferencesFile
	}
	return DefaultPath("preferences.yaml")
}

// Level returns the parsed log level, Info when unparsable.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// SessionOptions maps the transport settings onto session options.
func (c *Config) SessionOptions() goble.SessionOptions {
	opts := goble.DefaultSessionOptions()
	opts.ConnectTimeout = c.ConnectTimeout
	opts.WriteTimeout = c.WriteTimeout
	opts.MTU = c.MTU
	opts.Persistent = c.Persistent
	opts.BacklogSize = c.BacklogSize
	return opts
}

// HandshakeOptions maps the banner settings onto handshake options.
func (c *Config) HandshakeOptions() protocol.HandshakeOptions {
	return protocol.HandshakeOptions{
		Timeout: c.HandshakeTimeout,
		Retry: protocol.RetryPolicy{
			Retries: c.HandshakeRetries,
			Backoff: c.HandshakeBackoff,
		},
	}
}

// ExchangeOptions maps the reply settings onto exchange options.
func (c *Config) ExchangeOptions() protocol.ExchangeOptions {
	return protocol.ExchangeOptions{ReplyTimeout: c.ReplyTimeout}
}

// HubOptions groups every layer's options.
func (c *Config) HubOptions() hub.Options {
	return hub.Options{
		Session:   c.SessionOptions(),
		Handshake: c.HandshakeOptions(),
		Exchange:  c.ExchangeOptions(),
	}
}
