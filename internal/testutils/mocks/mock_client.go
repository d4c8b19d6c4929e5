package mocks

import (
	"sync"

	ble "github.com/go-ble/ble"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the ble.Client type.
// Methods the session never calls fall through to the nil embedded interface.
type MockClient struct {
	ble.Client
	mock.Mock

	linkMu       sync.Mutex
	disconnected chan struct{}
	dropOnce     *sync.Once
}

// ExchangeMTU provides a mock function with given fields: rxMTU
func (_m *MockClient) ExchangeMTU(rxMTU int) (int, error) {
	ret := _m.Called(rxMTU)

	if rf, ok := ret.Get(0).(func(int) (int, error)); ok {
		return rf(rxMTU)
	}
	return ret.Int(0), ret.Error(1)
}

// DiscoverProfile provides a mock function with given fields: force
func (_m *MockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	ret := _m.Called(force)

	var r0 *ble.Profile
	if v := ret.Get(0); v != nil {
		r0 = v.(*ble.Profile)
	}
	return r0, ret.Error(1)
}

// Subscribe provides a mock function with given fields: c, ind, h
func (_m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	ret := _m.Called(c, ind, h)
	return ret.Error(0)
}

// Unsubscribe provides a mock function with given fields: c, ind
func (_m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	ret := _m.Called(c, ind)
	return ret.Error(0)
}

// WriteCharacteristic provides a mock function with given fields: c, value, noRsp
func (_m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	ret := _m.Called(c, value, noRsp)
	return ret.Error(0)
}

// CancelConnection provides a mock function with no fields
func (_m *MockClient) CancelConnection() error {
	ret := _m.Called()
	return ret.Error(0)
}

// Disconnected returns the link-loss channel of the current connection.
func (_m *MockClient) Disconnected() <-chan struct{} {
	_m.linkMu.Lock()
	defer _m.linkMu.Unlock()
	if _m.disconnected == nil {
		_m.relinkLocked()
	}
	return _m.disconnected
}

// Relink arms a fresh link-loss channel; called on every dial.
func (_m *MockClient) Relink() {
	_m.linkMu.Lock()
	defer _m.linkMu.Unlock()
	_m.relinkLocked()
}

// DropLink simulates the peripheral going away.
func (_m *MockClient) DropLink() {
	_m.linkMu.Lock()
	if _m.disconnected == nil {
		_m.relinkLocked()
	}
	ch, once := _m.disconnected, _m.dropOnce
	_m.linkMu.Unlock()

	once.Do(func() { close(ch) })
}

func (_m *MockClient) relinkLocked() {
	_m.disconnected = make(chan struct{})
	_m.dropOnce = &sync.Once{}
}
