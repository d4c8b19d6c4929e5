package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/keylink/internal/hub"
	"github.com/srg/keylink/internal/layout"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect [device-address]",
	Short: "Connect to the dongle and read its keyboard layout",
	Long: `Connects to the dongle, waits for the layout banner it sends after the link is up
and stores the announced layout. Uses the selected output device when no address is given.

Examples:
  keylink connect
  keylink connect AA:BB:CC:DD:EE:01`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConnect,
}

func runConnect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var explicit string
	if len(args) == 1 {
		explicit = args[0]
	}
	address := a.address(explicit)
	if address == "" {
		return hub.ErrNoDevice
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := commandContext()
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Connecting to %s", address), "handshake")
	progress.Start()
	token, err := a.hub.Autoconnect(ctx, true, address)
	progress.Stop()
	if err != nil {
		return err
	}

	printSuccess(a.out, "Connected to %s: %s", address, layout.Label(token))
	return nil
}
