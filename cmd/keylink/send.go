package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "Type text on the host through the dongle",
	Long: `Sends text to the dongle as S:<text> and waits for the dongle to echo its MD5
digest. The send fails with "hash mismatch" when the digest differs.

Without an argument the text is read from a hidden prompt, or from stdin when stdin
is not a terminal.

Examples:
  keylink send
  keylink send "correct horse battery staple"
  pass show site | keylink send --address AA:BB:CC:DD:EE:01`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

var sendAddress string

func init() {
	sendCmd.Flags().StringVar(&sendAddress, "address", "", "Device address (default: selected output device)")
}

func runSend(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(cmd, args)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return errors.New("nothing to send")
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

	address := a.address(sendAddress)
	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Sending %d bytes", len(payload)), "verifying")
	progress.Start()
	err = a.hub.SendVerified(ctx, payload, address)
	progress.Stop()
	if err != nil {
		return err
	}

	printSuccess(a.out, "Delivered %d bytes to %s (verified)", len(payload), address)
	return nil
}

// readPayload returns the text argument, a hidden prompt answer, or stdin content.
func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 {
		return []byte(args[0]), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Text: ")
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return nil, fmt.Errorf("failed to read text: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return []byte(strings.TrimRight(string(data), "\r\n")), nil
}
