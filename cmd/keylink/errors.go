package main

import (
	"errors"
	"fmt"

	"github.com/srg/keylink/internal/device"
	"github.com/srg/keylink/internal/hub"
	"github.com/srg/keylink/internal/protocol"
)

// FormatUserError turns an operation error into the message printed after "ERROR:".
// Known failures get a hint on how to recover.
func FormatUserError(err error) string {
	_, msg := hub.Outcome(err)

	var notFound *device.NotFoundError
	switch {
	case errors.Is(err, hub.ErrNoDevice):
		return msg + " (run 'keylink device select <address>')"
	case errors.Is(err, hub.ErrNotEnabled):
		return msg + " (run 'keylink device enable')"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable"
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("%s (BLE is not available on this platform)", msg)
	case errors.As(err, &notFound):
		return msg + " (is this a keylink dongle?)"
	case errors.Is(err, protocol.ErrNoHandshake):
		return msg + " (the dongle did not announce its layout)"
	case errors.Is(err, protocol.ErrUnverified):
		return msg + " (the dongle rejected notifications, reconnect it)"
	default:
		return msg
	}
}
