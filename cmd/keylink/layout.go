package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/keylink/internal/layout"
)

// layoutCmd groups the keyboard layout commands
var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "List or switch the dongle's keyboard layout",
}

var layoutListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the supported keyboard layouts",
	Args:  cobra.NoArgs,
	RunE:  runLayoutList,
}

var layoutSetCmd = &cobra.Command{
	Use:   "set <layout>",
	Short: "Switch the dongle to a keyboard layout",
	Long: `Sends C:SET:LAYOUT=<layout> and stores the layout once the dongle acknowledged it.

Examples:
  keylink layout set DE_MAC
  keylink layout set us_winlin`,
	Args: cobra.ExactArgs(1),
	RunE: runLayoutSet,
}

var layoutListJSON bool

// layoutEntry is the JSON form of one catalog entry
type layoutEntry struct {
	Value   string `json:"value"`
	Label   string `json:"label"`
	Current bool   `json:"current"`
}

func init() {
	layoutListCmd.Flags().BoolVar(&layoutListJSON, "json", false, "Output as JSON")

	layoutCmd.AddCommand(layoutListCmd)
	layoutCmd.AddCommand(layoutSetCmd)
}

func runLayoutList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	current := a.prefs.KeyboardLayout()
	if layoutListJSON {
		entries := make([]layoutEntry, 0)
		for _, l := range layout.All() {
			entries = append(entries, layoutEntry{Value: l.Value, Label: l.Label, Current: l.Value == current})
		}
		return writeJSON(a.out, entries)
	}

	for _, l := range layout.All() {
		if l.Value == current {
			_, _ = accentColor.Fprintf(a.out, "* %-14s %s\n", l.Value, l.Label)
			continue
		}
		fmt.Fprintf(a.out, "  %-14s %s\n", l.Value, l.Label)
	}
	return nil
}

func runLayoutSet(cmd *cobra.Command, args []string) error {
	l, ok := layout.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown layout %q (see 'keylink layout list')", args[0])
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

	if err := a.hub.SetLayout(ctx, l.Value); err != nil {
		return err
	}
	printSuccess(a.out, "Layout set: %s", l.Label)
	return nil
}
