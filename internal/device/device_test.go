package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, "service not found", (&NotFoundError{Resource: "service"}).Error())
	assert.Equal(t, `service "6e400001" not found`,
		(&NotFoundError{Resource: "service", UUIDs: []string{"6e400001"}}).Error())
	assert.Equal(t, `characteristic "6e400002" not found in service "6e400001"`,
		(&NotFoundError{Resource: "characteristic", UUIDs: []string{"6e400001", "6e400002"}}).Error())
}

func TestConnectionError_IsComparesState(t *testing.T) {
	wrapped := fmt.Errorf("link lost: %w", &ConnectionError{State: NotConnected, Msg: "peer went away"})

	assert.True(t, errors.Is(wrapped, ErrNotConnected), "errors.Is MUST match by state regardless of message")
	assert.False(t, errors.Is(wrapped, ErrWriteInFlight))
	assert.True(t, IsConnectionState(wrapped, NotConnected))
	assert.False(t, IsConnectionState(errors.New("plain"), NotConnected))
}

func TestConnectionError_Messages(t *testing.T) {
	assert.Equal(t, "already_writing: already writing", ErrWriteInFlight.Error())
	assert.Equal(t, "already_connected", ErrAlreadyConnected.Error())

	var nilErr *ConnectionError
	assert.Equal(t, "<nil>", nilErr.Error())
	assert.False(t, nilErr.Is(ErrNotConnected))
}

func TestWriteFailedError(t *testing.T) {
	cause := errors.New("status=133")
	err := fmt.Errorf("write: %w", &WriteFailedError{Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Write failed status=")
	assert.ErrorIs(t, ErrWriteTimeout, ErrTimeout, "write timeout MUST be a timeout")
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("AA:BB:CC:DD:EE:FF"))
	assert.ErrorIs(t, ValidateAddress(""), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress("   "), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress(" AA:BB:CC:DD:EE:FF"), ErrInvalidAddress)
}
