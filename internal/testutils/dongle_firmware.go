package testutils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
)

// DongleFirmware emulates the line protocol spoken by the keyboard dongle.
// Chunks are accumulated until a newline or a short (final) chunk arrives, then the
// line is answered:
//
//	S:<payload>            -> R:H=<md5 of payload>
//	C:SET:LAYOUT=<value>   -> R:OK
//	anything in Replies    -> the configured reply
//	anything else          -> R:ERR unknown
type DongleFirmware struct {
	// ChunkSize is the full chunk length; shorter chunks terminate a line.
	ChunkSize int
	// Replies overrides the answer for exact lines (without newline).
	Replies map[string]string
	// HashOverride replaces the digest in R:H= replies when non-empty.
	HashOverride string
	// Silent suppresses every reply.
	Silent bool

	mu     sync.Mutex
	buf    strings.Builder
	lines  []string
	layout string
}

// NewDongleFirmware creates a firmware emulation for the given chunk size.
func NewDongleFirmware(chunkSize int) *DongleFirmware {
	return &DongleFirmware{ChunkSize: chunkSize, Replies: map[string]string{}}
}

// OnWrite implements Responder.
func (f *DongleFirmware) OnWrite(chunk []byte) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf.Write(chunk)
	text := f.buf.String()
	if !strings.HasSuffix(text, "\n") && len(chunk) >= f.ChunkSize {
		return nil
	}
	f.buf.Reset()

	line := strings.TrimRight(text, "\r\n")
	f.lines = append(f.lines, line)
	if f.Silent {
		return nil
	}
	return [][]byte{[]byte(f.answer(line) + "\n")}
}

func (f *DongleFirmware) answer(line string) string {
	if reply, ok := f.Replies[line]; ok {
		return reply
	}
	switch {
	case strings.HasPrefix(line, "S:"):
		if f.HashOverride != "" {
			return "R:H=" + f.HashOverride
		}
		sum := md5.Sum([]byte(strings.TrimPrefix(line, "S:")))
		return "R:H=" + strings.ToUpper(hex.EncodeToString(sum[:]))
	case strings.HasPrefix(line, "C:SET:LAYOUT="):
		f.layout = strings.TrimPrefix(line, "C:SET:LAYOUT=")
		return "R:OK"
	default:
		return "R:ERR unknown"
	}
}

// Lines returns every complete line received so far.
func (f *DongleFirmware) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// Layout returns the last layout set through C:SET:LAYOUT.
func (f *DongleFirmware) Layout() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.layout
}
