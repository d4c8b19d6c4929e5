package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.HandshakeTimeout)
	assert.Equal(t, 2, cfg.HandshakeRetries)
	assert.Equal(t, time.Duration(0), cfg.HandshakeBackoff)
	assert.Equal(t, 247, cfg.MTU)
	assert.True(t, cfg.Persistent)
	assert.Equal(t, uint32(64), cfg.BacklogSize)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: "debug",
			want:     logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: "info",
			want:     logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: "warn",
			want:     logrus.WarnLevel,
		},
		{
			name:     "falls back to info on garbage",
			logLevel: "loud",
			want:     logrus.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
write_timeout: 4s
handshake_timeout: 1500ms
handshake_retries: 4
mtu: 185
persistent: false
preferences_file: /tmp/prefs.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, 4*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.HandshakeTimeout)
	assert.Equal(t, 4, cfg.HandshakeRetries)
	assert.Equal(t, 185, cfg.MTU)
	assert.False(t, cfg.Persistent, "explicit false MUST override the default")
	assert.Equal(t, "/tmp/prefs.yaml", cfg.PreferencesPath())
	assert.Equal(t, 3*time.Second, cfg.ReplyTimeout, "unset keys MUST keep their defaults")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{name: "syntax", content: "mtu: [", errPart: "parse config"},
		{name: "mtu too small", content: "mtu: 10", errPart: "invalid mtu"},
		{name: "negative retries", content: "handshake_retries: -1", errPart: "handshake_retries"},
		{name: "bad level", content: "log_level: loud", errPart: "log_level"},
		{name: "zero reply timeout", content: "reply_timeout: 0s", errPart: "reply_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestConfig_LayerOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WriteTimeout = 7 * time.Second
	cfg.Persistent = false
	cfg.HandshakeRetries = 5
	cfg.HandshakeBackoff = 200 * time.Millisecond

	opts := cfg.HubOptions()
	assert.Equal(t, 7*time.Second, opts.Session.WriteTimeout)
	assert.False(t, opts.Session.Persistent)
	assert.Equal(t, 247, opts.Session.MTU)
	assert.Equal(t, "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", opts.Session.ServiceUUID)
	assert.Equal(t, 2500*time.Millisecond, opts.Handshake.Timeout)
	assert.Equal(t, 6, opts.Handshake.Retry.Attempts())
	assert.Equal(t, 200*time.Millisecond, opts.Handshake.Retry.Backoff)
	assert.Equal(t, 3*time.Second, opts.Exchange.ReplyTimeout)
}

func TestConfig_DefaultPreferencesPath(t *testing.T) {
	cfg := DefaultConfig()
	path := cfg.PreferencesPath()
	assert.Equal(t, "preferences.yaml", filepath.Base(path))
	assert.Equal(t, AppName, filepath.Base(filepath.Dir(path)))
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}

func BenchmarkConfig_NewLogger(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.NewLogger()
	}
}
