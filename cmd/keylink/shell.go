package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/keylink/internal/hub"
	"github.com/srg/keylink/internal/layout"
)

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Keep one link open and run many operations",
	Long: `Starts an interactive shell that keeps a single link to the output device open.
Connection changes are reported as they happen.

Shell commands:
  connect [address]   connect and handshake
  send <text>         send text with digest verification
  cmd <line>          send a raw command and wait for R:OK
  layout <layout>     switch the keyboard layout
  status              show the connection state
  disconnect          drop the link
  quit                leave the shell`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func runShell(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd.SilenceUsage = true

	ctx, cancel := commandContext()
	defer cancel()

	a.out = &lockedWriter{w: a.out}

	updates, unsubscribe := a.hub.Connected().Subscribe()
	<-updates // current value
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		for connected := range updates {
			fmt.Fprintf(a.out, "[%s]\n", connectionLabel(connected))
		}
	}()
	defer func() {
		unsubscribe()
		<-printerDone
	}()

	if a.prefs.UseExternalDevice() {
		if token, err := a.hub.AutoconnectFromPreferences(ctx); err != nil {
			printWarn(a.out, "Autoconnect failed: %s", FormatUserError(err))
		} else {
			printSuccess(a.out, "Connected: %s", layout.Label(token))
		}
	}

	return runShellLoop(ctx, a, cmd.InOrStdin())
}

// runShellLoop executes one shell command per input line until quit, EOF or ctx ends.
func runShellLoop(ctx context.Context, a *app, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if name == "" {
			continue
		}
		if name == "quit" || name == "exit" {
			return nil
		}
		if err := runShellCommand(ctx, a, name, strings.TrimSpace(arg)); err != nil {
			printWarn(a.out, "ERROR: %s", FormatUserError(err))
		}
	}
}

func runShellCommand(ctx context.Context, a *app, name, arg string) error {
	switch name {
	case "connect":
		token, err := a.hub.Autoconnect(ctx, true, a.address(arg))
		if err != nil {
			return err
		}
		printSuccess(a.out, "Connected: %s", layout.Label(token))
	case "send":
		if arg == "" {
			return fmt.Errorf("usage: send <text>")
		}
		if err := a.hub.SendPassword(ctx, []byte(arg)); err != nil {
			return err
		}
		printSuccess(a.out, "Delivered (verified)")
	case "cmd":
		if arg == "" {
			return fmt.Errorf("usage: cmd <line>")
		}
		if a.hub.Target() == "" {
			return hub.ErrNoDevice
		}
		reply, err := a.hub.SendCommand(ctx, arg+"\n")
		if err != nil {
			return err
		}
		printSuccess(a.out, "%s", reply)
	case "layout":
		if err := a.hub.SetLayout(ctx, arg); err != nil {
			return err
		}
		printSuccess(a.out, "Layout set: %s", layout.Label(arg))
	case "status":
		printField(a.out, "Target", a.hub.Target())
		printField(a.out, "Link", connectionLabel(a.hub.Connected().Get()))
		printField(a.out, "Layout", layout.Label(a.prefs.KeyboardLayout()))
	case "disconnect":
		a.hub.Disconnect()
	case "help":
		fmt.Fprintln(a.out, "connect [address] | send <text> | cmd <line> | layout <layout> | status | disconnect | quit")
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	return nil
}
