package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	accentColor  = color.New(color.FgCyan)
)

func printSuccess(w io.Writer, format string, args ...any) {
	_, _ = successColor.Fprintf(w, format+"\n", args...)
}

func printWarn(w io.Writer, format string, args ...any) {
	_, _ = warnColor.Fprintf(w, format+"\n", args...)
}

// connectionLabel renders the connected flag for status lines.
func connectionLabel(connected bool) string {
	if connected {
		return successColor.Sprint("connected")
	}
	return warnColor.Sprint("disconnected")
}

func printField(w io.Writer, name string, value any) {
	fmt.Fprintf(w, "  %-16s %v\n", name+":", value)
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// lockedWriter serializes writes from the shell loop and the status printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
