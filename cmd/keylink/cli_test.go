package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/keylink/internal/device"
	"github.com/srg/keylink/internal/hub"
	"github.com/srg/keylink/internal/protocol"
	"github.com/srg/keylink/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "no device",
			err:  hub.ErrNoDevice,
			want: "No device selected (run 'keylink device select <address>')",
		},
		{
			name: "not enabled",
			err:  hub.ErrNotEnabled,
			want: "Output device not enabled or not selected (run 'keylink device enable')",
		},
		{
			name: "bluetooth off",
			err:  fmt.Errorf("dial: %w", device.ErrBluetoothOff),
			want: "Bluetooth is turned off or unavailable",
		},
		{
			name: "missing service",
			err:  &device.NotFoundError{Resource: "service", UUIDs: []string{"6e400001"}},
			want: (&device.NotFoundError{Resource: "service", UUIDs: []string{"6e400001"}}).Error() + " (is this a keylink dongle?)",
		},
		{
			name: "hash mismatch passes through",
			err:  protocol.ErrHashMismatch,
			want: "hash mismatch",
		},
		{
			name: "reply passes through",
			err:  &protocol.ExchangeError{Kind: protocol.UnexpectedReply, Reply: "R:ERR busy\n"},
			want: "Reply: R:ERR busy",
		},
		{
			name: "write-only link",
			err:  protocol.ErrUnverified,
			want: "delivery not verified (the dongle rejected notifications, reconnect it)",
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestParseToggle(t *testing.T) {
	for _, v := range []string{"on", "ON", " true ", "yes", "1"} {
		got, err := parseToggle(v)
		require.NoError(t, err, v)
		assert.True(t, got, v)
	}
	for _, v := range []string{"off", "false", "No", "0"} {
		got, err := parseToggle(v)
		require.NoError(t, err, v)
		assert.False(t, got, v)
	}
	_, err := parseToggle("maybe")
	assert.EqualError(t, err, `invalid value "maybe" (must be on or off)`)
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestConfigureLogger(t *testing.T) {
	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{Use: "test"}
		cmd.Flags().String("log-level", "", "")
		cmd.Flags().Bool("verbose", false, "")
		return cmd
	}

	cfg := config.DefaultConfig()

	cmd := newCmd()
	logger, err := configureLogger(cmd, "verbose", cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel(), "config level MUST apply without flags")

	cmd = newCmd()
	require.NoError(t, cmd.Flags().Set("verbose", "true"))
	logger, err = configureLogger(cmd, "verbose", cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	cmd = newCmd()
	require.NoError(t, cmd.Flags().Set("verbose", "true"))
	require.NoError(t, cmd.Flags().Set("log-level", "error"))
	logger, err = configureLogger(cmd, "verbose", cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel(), "--log-level MUST take precedence")

	cmd = newCmd()
	require.NoError(t, cmd.Flags().Set("log-level", "loud"))
	_, err = configureLogger(cmd, "verbose", cfg)
	assert.ErrorContains(t, err, "invalid log level: loud")
}

func TestReadPayload(t *testing.T) {
	cmd := &cobra.Command{}
	data, err := readPayload(cmd, []string{"from-arg"})
	require.NoError(t, err)
	assert.Equal(t, "from-arg", string(data))

	cmd.SetIn(stringReader("secret\r\n"))
	data, err = readPayload(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(data), "trailing line breaks MUST be stripped")
}

func TestProgressPrinter_NonTerminalIsSilent(t *testing.T) {
	var out lockedBuffer
	p := NewProgressPrinter(&out, "Connecting", "handshake")
	p.Start()
	p.SetPhase("verifying")
	p.Stop()
	p.Stop()

	assert.Empty(t, out.String(), "nothing MUST be printed to a non-terminal writer")
}
