package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/keylink/internal/hub"
)

// commandCmd represents the command command
var commandCmd = &cobra.Command{
	Use:   "command <line>",
	Short: "Send a raw command line and wait for R:OK",
	Long: `Writes one command line to the dongle and waits for a single reply. The command
succeeds when the reply contains R:OK; any other reply is reported verbatim.

Examples:
  keylink command "C:SET:LAYOUT=DE_MAC"`,
	Args: cobra.ExactArgs(1),
	RunE: runCommand,
}

var commandAddress string

func init() {
	commandCmd.Flags().StringVar(&commandAddress, "address", "", "Device address (default: selected output device)")
}

func runCommand(cmd *cobra.Command, args []string) error {
	line := args[0]
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	address := a.address(commandAddress)
	if address == "" {
		return hub.ErrNoDevice
	}
	a.hub.SetTarget(address)

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := commandContext()
	defer cancel()

	reply, err := a.hub.SendCommand(ctx, line)
	if err != nil {
		return err
	}
	printSuccess(a.out, "%s", reply)
	return nil
}
