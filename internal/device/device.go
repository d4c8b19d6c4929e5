package device

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	WriteInFlight    ConnectionState = "already_writing"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected, Msg: "Not connected"}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrWriteInFlight    = &ConnectionError{State: WriteInFlight, Msg: "already writing"}
)

// Operation errors
var (
	ErrTimeout        = errors.New("timeout")
	ErrWriteTimeout   = fmt.Errorf("%w: Timeout while writing characteristic", ErrTimeout)
	ErrUnsupported    = errors.New("unsupported")
	ErrBluetoothOff   = errors.New("bluetooth is turned off")
	ErrInvalidAddress = errors.New("Invalid device address")
)

// WriteFailedError is returned when the peripheral rejects a write at the transport layer
type WriteFailedError struct {
	Err error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("Write failed status=%v", e.Err)
}

func (e *WriteFailedError) Unwrap() error {
	return e.Err
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ValidateAddress checks that a peripheral address is usable for dialing.
// Addresses are compared exactly elsewhere, so only surrounding blanks are rejected here.
func ValidateAddress(address string) error {
	if strings.TrimSpace(address) == "" || strings.TrimSpace(address) != address {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}
