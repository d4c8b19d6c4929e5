package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/keylink/internal/device"
	"github.com/srg/keylink/internal/layout"
)

// deviceCmd groups the output device settings
var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Show and change the output device settings",
}

var deviceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored output device settings",
	Args:  cobra.NoArgs,
	RunE:  runDeviceShow,
}

var deviceSelectCmd = &cobra.Command{
	Use:   "select <device-address>",
	Short: "Select the output device",
	Long: `Stores the output device. When the output device is enabled the current link is
dropped and the new device is connected and handshaken.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeviceSelect,
}

var deviceEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable the output device and connect to it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDeviceToggle(cmd, true)
	},
}

var deviceDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable the output device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDeviceToggle(cmd, false)
	},
}

var deviceNewlineCmd = &cobra.Command{
	Use:   "newline <on|off>",
	Short: "Append a newline to every payload sent to the dongle",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeviceNewline,
}

var (
	deviceName     string
	deviceShowJSON bool
)

// deviceSettings is the JSON form of the stored output device settings
type deviceSettings struct {
	Address       string `json:"address"`
	Name          string `json:"name,omitempty"`
	Enabled       bool   `json:"enabled"`
	Layout        string `json:"layout"`
	LayoutLabel   string `json:"layout_label"`
	AppendNewline bool   `json:"append_newline"`
	Preferences   string `json:"preferences"`
}

func init() {
	deviceSelectCmd.Flags().StringVar(&deviceName, "name", "", "Display name stored with the address")
	deviceShowCmd.Flags().BoolVar(&deviceShowJSON, "json", false, "Output as JSON")

	deviceCmd.AddCommand(deviceShowCmd)
	deviceCmd.AddCommand(deviceSelectCmd)
	deviceCmd.AddCommand(deviceEnableCmd)
	deviceCmd.AddCommand(deviceDisableCmd)
	deviceCmd.AddCommand(deviceNewlineCmd)
}

func runDeviceShow(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	settings := deviceSettings{
		Address:       a.prefs.OutputDevice(),
		Name:          a.prefs.OutputDeviceName(),
		Enabled:       a.prefs.UseExternalDevice(),
		Layout:        a.prefs.KeyboardLayout(),
		LayoutLabel:   layout.Label(a.prefs.KeyboardLayout()),
		AppendNewline: a.prefs.AppendNewline(),
		Preferences:   a.prefs.Path(),
	}
	if deviceShowJSON {
		return writeJSON(a.out, settings)
	}

	address := settings.Address
	if address == "" {
		address = "(none)"
	}
	fmt.Fprintln(a.out, "Output device:")
	printField(a.out, "Address", address)
	printField(a.out, "Name", settings.Name)
	printField(a.out, "Enabled", settings.Enabled)
	printField(a.out, "Layout", settings.LayoutLabel)
	printField(a.out, "Append newline", settings.AppendNewline)
	printField(a.out, "Preferences", settings.Preferences)
	return nil
}

func runDeviceSelect(cmd *cobra.Command, args []string) error {
	address := args[0]
	if err := device.ValidateAddress(address); err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := commandContext()
	defer cancel()

	token, err := a.hub.SelectDevice(ctx, address, deviceName)
	if err != nil {
		return err
	}
	if token == "" {
		printSuccess(a.out, "Output device set to %s", address)
		return nil
	}
	printSuccess(a.out, "Output device set to %s, connected: %s", address, layout.Label(token))
	return nil
}

func runDeviceToggle(cmd *cobra.Command, enabled bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd.SilenceUsage = true

	ctx, cancel := commandContext()
	defer cancel()

	token, err := a.hub.SetEnabled(ctx, enabled)
	if err != nil {
		return err
	}
	if !enabled {
		printWarn(a.out, "Output device disabled")
		return nil
	}
	printSuccess(a.out, "Output device enabled, connected: %s", layout.Label(token))
	return nil
}

func runDeviceNewline(cmd *cobra.Command, args []string) error {
	enabled, err := parseToggle(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.prefs.SetAppendNewline(enabled); err != nil {
		return err
	}
	printSuccess(a.out, "Append newline: %t", enabled)
	return nil
}

// parseToggle accepts on/off style values.
func parseToggle(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid value %q (must be on or off)", value)
	}
}
