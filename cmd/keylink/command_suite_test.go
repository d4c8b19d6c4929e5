//go:build test

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/srg/keylink/internal/testutils"
	"github.com/srg/keylink/pkg/config"
)

// CommandTestSuite extends MockBLEPeripheralSuite with command testing utilities.
// Every test gets its own config and preferences files in a temp dir.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite
	Dir         string
	ConfigFile  string
	PrefsFile   string
	Preferences *config.FilePreferences
}

// SetupTest writes a fast-timeout config and an enabled, selected output device.
func (s *CommandTestSuite) SetupTest() {
	s.MockBLEPeripheralSuite.SetupTest()
	color.NoColor = true

	s.Dir = s.T().TempDir()
	s.ConfigFile = filepath.Join(s.Dir, "config.yaml")
	s.PrefsFile = filepath.Join(s.Dir, "preferences.yaml")

	content := fmt.Sprintf(`log_level: debug
connect_timeout: 1s
write_timeout: 500ms
reply_timeout: 500ms
handshake_timeout: 300ms
handshake_retries: 1
preferences_file: %s
`, s.PrefsFile)
	s.Require().NoError(os.WriteFile(s.ConfigFile, []byte(content), 0o600))

	prefs, err := config.OpenPreferences(s.PrefsFile)
	s.Require().NoError(err)
	s.Require().NoError(prefs.SetOutputDevice(testutils.DongleAddress, "Dongle"))
	s.Require().NoError(prefs.SetUseExternalDevice(true))
	s.Preferences = prefs

	// Reset flags before each test for proper isolation
	configPath = ""
	prefsPath = ""
	sendAddress = ""
	commandAddress = ""
	deviceName = ""
	deviceShowJSON = false
	layoutListJSON = false
}

// ReloadPreferences reads the preferences file as written by the command.
func (s *CommandTestSuite) ReloadPreferences() *config.FilePreferences {
	prefs, err := config.OpenPreferences(s.PrefsFile)
	s.Require().NoError(err)
	return prefs
}

// ExecuteCommand runs the root command with args, returns stdout and error.
// Logs go to a separate buffer so concurrent log writes never interleave with output.
func (s *CommandTestSuite) ExecuteCommand(stdin string, args ...string) (string, error) {
	out := new(lockedBuffer)
	logs := new(lockedBuffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(logs)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", s.ConfigFile}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}
