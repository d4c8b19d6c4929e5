package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures assertion failures instead of failing the test.
type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestTranscriptAsserter_DefaultOptions(t *testing.T) {
	opts := NewTranscriptAsserter(t).Options()
	assert.False(t, opts.Frames)
	assert.False(t, opts.EnableColors)

	opts = NewTranscriptAsserter(t, WithFrames(true), WithEnableColors(true)).Options()
	assert.True(t, opts.Frames)
	assert.True(t, opts.EnableColors)
}

func TestTranscriptAsserter_StreamReassemblesChunks(t *testing.T) {
	rt := &recordingT{}
	chunks := [][]byte{[]byte("S:abc"), []byte("def\nC:SET:"), []byte("LAYOUT=UK_MAC\n")}

	ok := NewTranscriptAsserter(rt).Assert(chunks, "S:abcdef\n", "C:SET:LAYOUT=UK_MAC\n")

	assert.True(t, ok)
	assert.Empty(t, rt.errors)
}

func TestTranscriptAsserter_MissingTerminatorIsVisible(t *testing.T) {
	rt := &recordingT{}

	ok := NewTranscriptAsserter(rt).Assert([][]byte{[]byte("S:1234")}, "S:1234\n")

	assert.False(t, ok)
	if assert.Len(t, rt.errors, 1) {
		assert.Contains(t, rt.errors[0], "-S:1234⏎")
		assert.Contains(t, rt.errors[0], "+S:1234")
	}
}

func TestTranscriptAsserter_Frames(t *testing.T) {
	rt := &recordingT{}
	a := NewTranscriptAsserter(rt, WithFrames(true))

	assert.True(t, a.Assert([][]byte{[]byte("S:12"), []byte("34\n")}, "S:12", "34\n"))
	assert.Empty(t, rt.errors)

	assert.False(t, a.Assert([][]byte{[]byte("S:1234\n")}, "S:12", "34\n"))
	if assert.Len(t, rt.errors, 1) {
		assert.Contains(t, rt.errors[0], "#0 [7] S:1234⏎")
	}
}

func TestTranscriptAsserter_ControlCharacters(t *testing.T) {
	assert.Equal(t, `a\tb\r⏎`+"\n", renderStream("a\tb\r\n"))
	assert.Equal(t, "", renderStream(""))
}

func TestTranscriptAsserter_Colors(t *testing.T) {
	rt := &recordingT{}

	NewTranscriptAsserter(rt, WithEnableColors(true)).Assert([][]byte{[]byte("R:OK")}, "R:ERR")

	if assert.Len(t, rt.errors, 1) {
		assert.True(t, strings.Contains(rt.errors[0], "\x1b["), "colored diff MUST contain ANSI sequences")
	}
}
