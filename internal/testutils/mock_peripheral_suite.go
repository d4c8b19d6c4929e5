//go:build test

package testutils

import (
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/keylink/internal/device/go-ble"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite provides a reusable test suite with a mocked dongle behind
// the host BLE adapter.
//
// The suite swaps goble.DeviceFactory for every test, so production code that dials
// through goble.HostDialer talks to the mocked peripheral.
//
// Basic usage (default dongle with firmware emulation and banner):
//
//	type SessionSuite struct {
//	    testutils.MockBLEPeripheralSuite
//	}
//
//	func TestSessionSuite(t *testing.T) {
//	    suite.Run(t, new(SessionSuite))
//	}
//
// Custom peripheral usage:
//
//	func (s *SessionSuite) SetupTest() {
//	    s.WithPeripheral().WithSubscribeError(errors.New("descriptor write rejected"))
//	    s.MockBLEPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	// Core test utilities
	Helper *TestHelper    // Test helper with logging and assertions
	Logger *logrus.Logger // Structured logger for test output

	// BLE device factory management
	OriginalDeviceFactory func() (blelib.Device, error) // Backup of the original factory
	TestTimeout           time.Duration                 // Default timeout for BLE operations

	// Mock peripheral configuration
	PeripheralBuilder *PeripheralDeviceBuilder // Builder for configuring mock devices
	Firmware          *DongleFirmware          // Default responder of the dongle
	Peripheral        *MockPeripheral          // Built peripheral of the current test
	Dialer            *goble.HostDialer        // Dialer wired to the mocked host adapter
}

// SetupSuite initializes the test suite.
// Called once before all tests in the suite.
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second

	s.OriginalDeviceFactory = goble.DeviceFactory
	s.T().Cleanup(func() {
		if s.OriginalDeviceFactory != nil {
			goble.DeviceFactory = s.OriginalDeviceFactory
		}
	})
}

// SetupTest builds the configured peripheral and installs the mock device factory.
// Called before each test method.
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}
	if s.Firmware == nil {
		s.Firmware = NewDongleFirmware(goble.DefaultSessionOptions().MTU - 3)
	}
	if s.PeripheralBuilder.responder == nil {
		s.PeripheralBuilder.WithResponder(s.Firmware)
	}

	s.Peripheral = s.PeripheralBuilder.Build()
	goble.DeviceFactory = func() (blelib.Device, error) {
		return s.Peripheral.Device, nil
	}
	s.Dialer = goble.NewHostDialer(s.Logger)
}

// TearDownTest restores the device factory and resets per-test configuration.
// Called after each test method.
func (s *MockBLEPeripheralSuite) TearDownTest() {
	if s.OriginalDeviceFactory != nil {
		goble.DeviceFactory = s.OriginalDeviceFactory
	}

	s.PeripheralBuilder = nil
	s.Firmware = nil
	s.Peripheral = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
// Starts from the default dongle profile when nothing was configured yet.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder()
	}
	return s.PeripheralBuilder
}

// SessionOptions returns session options tuned for fast tests.
func (s *MockBLEPeripheralSuite) SessionOptions() goble.SessionOptions {
	opts := goble.DefaultSessionOptions()
	opts.ConnectTimeout = time.Second
	opts.WriteTimeout = 500 * time.Millisecond
	opts.ChunkDelay = time.Millisecond
	return opts
}

// createDefaultPeripheralBuilder creates the dongle profile announcing the UK Windows/Linux layout.
func createDefaultPeripheralBuilder() *PeripheralDeviceBuilder {
	return NewDongleBuilder().WithBanner("CONNECTED=LAYOUT_UK_WINLIN\n")
}
