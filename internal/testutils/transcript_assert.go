package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is an interface that matches the methods we need from testing.T
type TestingT interface {
	Errorf(format string, args ...interface{})
}

// TranscriptOptions controls how wire traffic is rendered before comparison.
type TranscriptOptions struct {
	// Frames compares chunk by chunk instead of the reassembled line stream.
	Frames       bool `default:"false"`
	EnableColors bool `default:"false"`
}

// TranscriptOption is a functional option for configuring TranscriptAsserter
type TranscriptOption func(*TranscriptOptions)

// TranscriptAsserter compares what crossed the wire against an expected transcript
// and reports a unified diff. Control characters are rendered visibly, so a missing
// line terminator shows up in the diff.
type TranscriptAsserter struct {
	t       TestingT
	options TranscriptOptions
}

// NewTranscriptAsserter creates an asserter with default options.
func NewTranscriptAsserter(t TestingT, opts ...TranscriptOption) *TranscriptAsserter {
	options := TranscriptOptions{}
	defaults.SetDefaults(&options)
	for _, opt := range opts {
		opt(&options)
	}
	return &TranscriptAsserter{t: t, options: options}
}

// WithFrames compares individual chunks, one per line.
func WithFrames(enable bool) TranscriptOption {
	return func(opts *TranscriptOptions) {
		opts.Frames = enable
	}
}

// WithEnableColors sets whether to enable colored diff output
func WithEnableColors(enable bool) TranscriptOption {
	return func(opts *TranscriptOptions) {
		opts.EnableColors = enable
	}
}

// Options returns a copy of the current options.
func (ta *TranscriptAsserter) Options() TranscriptOptions {
	return ta.options
}

// Assert compares the written chunks against expected. In stream mode expected
// is the full text; in frame mode each expected entry is one chunk.
// It reports whether the transcripts matched.
func (ta *TranscriptAsserter) Assert(actual [][]byte, expected ...string) bool {
	var want, got string
	if ta.options.Frames {
		want = renderFrames(expected)
		got = renderFrames(toStrings(actual))
	} else {
		want = renderStream(strings.Join(expected, ""))
		got = renderStream(string(joinChunks(actual)))
	}

	if diff := ta.diff(got, want); diff != "" {
		ta.t.Errorf("Transcript assertion failed:\n%s", diff)
		return false
	}
	return true
}

func (ta *TranscriptAsserter) diff(actual, expected string) string {
	if actual == expected {
		return ""
	}

	edits := myers.ComputeEdits("", expected, actual)
	unified := gotextdiff.ToUnified("expected", "actual", expected, edits)

	return fmt.Sprintf("unified diff:\n%s", ta.colorizeUnifiedDiff(fmt.Sprint(unified)))
}

// colorizeUnifiedDiff applies colors to unified diff output
func (ta *TranscriptAsserter) colorizeUnifiedDiff(diff string) string {
	if !ta.options.EnableColors {
		return diff
	}

	// Force colors on, test output is rarely a terminal
	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
		case strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}

var controlReplacer = strings.NewReplacer("\r", `\r`, "\t", `\t`, "\x00", `\0`)

// renderStream splits text into lines and marks every terminated line with ⏎.
func renderStream(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.SplitAfter(text, "\n")
	var sb strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		body, terminated := strings.CutSuffix(line, "\n")
		sb.WriteString(controlReplacer.Replace(body))
		if terminated {
			sb.WriteString("⏎")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// renderFrames prints one escaped chunk per line with its length.
func renderFrames(frames []string) string {
	var sb strings.Builder
	for i, f := range frames {
		fmt.Fprintf(&sb, "#%d [%d] %s\n", i, len(f), controlReplacer.Replace(strings.ReplaceAll(f, "\n", "⏎")))
	}
	return sb.String()
}

func joinChunks(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func toStrings(chunks [][]byte) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = string(c)
	}
	return out
}
