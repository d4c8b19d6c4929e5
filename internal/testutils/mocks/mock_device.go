package mocks

import (
	context "context"

	ble "github.com/go-ble/ble"
	mock "github.com/stretchr/testify/mock"
)

// MockDevice is a mock type for the ble.Device type.
// Methods the dialer never calls fall through to the nil embedded interface.
type MockDevice struct {
	ble.Device
	mock.Mock
}

// Dial provides a mock function with given fields: ctx, a
func (_m *MockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	ret := _m.Called(ctx, a)

	var r0 ble.Client
	if v := ret.Get(0); v != nil {
		r0 = v.(ble.Client)
	}
	return r0, ret.Error(1)
}

// Stop provides a mock function with no fields
func (_m *MockDevice) Stop() error {
	ret := _m.Called()
	return ret.Error(0)
}
