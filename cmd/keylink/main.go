package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "keylink",
	Short: "BLE keyboard dongle companion",
	Long: `Talks to a BLE keyboard dongle (Nordic UART profile) that types what it receives:

- Connect and read the keyboard layout the dongle announces
- Send text with MD5 delivery verification
- Switch the dongle's keyboard layout
- Select, enable and disable the output device
- Keep one link open for many operations in an interactive shell`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

var (
	configPath string
	prefsPath  string
)

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	// Add subcommands
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(shellCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <user config dir>/keylink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&prefsPath, "prefs", "", "Preferences file, overrides preferences_file from the config")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
