package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/keylink/internal/device"
)

// ErrSessionClosed is returned by every operation on a session after Close.
var ErrSessionClosed = errors.New("session closed")

// hostErrors maps go-ble and host stack messages to the device taxonomy.
// Patterns are lowercase substrings; the first match wins.
var hostErrors = []struct {
	pattern string
	target  error
}{
	{"is bluetooth turned on?", device.ErrBluetoothOff},
	{"bluetooth is turned off", device.ErrBluetoothOff},
	{"device not connected", device.ErrNotConnected},
	{"disconnected", device.ErrNotConnected},
	{"device already connected", device.ErrAlreadyConnected},
	{"connection is not initialized", device.ErrNotInitialized},
	{"invalid address", device.ErrInvalidAddress},
}

// NormalizeError wraps radio errors with the matching device sentinel so callers
// can use errors.Is regardless of the platform's wording. Unknown errors pass through.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", device.ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	for _, h := range hostErrors {
		if strings.Contains(msg, h.pattern) {
			return fmt.Errorf("%w: %v", h.target, err)
		}
	}
	return err
}
