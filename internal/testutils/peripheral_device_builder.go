package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/srg/keylink/internal/device"
	"github.com/srg/keylink/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "write,write-without-response"
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// Responder produces the notifications a peripheral sends back for one written chunk.
type Responder interface {
	OnWrite(chunk []byte) [][]byte
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(chunk []byte) [][]byte

func (f ResponderFunc) OnWrite(chunk []byte) [][]byte { return f(chunk) }

// PeripheralDeviceBuilder builds a mocked ble.Device whose client behaves like the dongle
type PeripheralDeviceBuilder struct {
	profile DeviceProfileConfig

	mtu          int
	mtuErr       error
	dialErr      error
	discoverErr  error
	subscribeErr error
	writeErr     error
	writeDelay   time.Duration
	replyDelay   time.Duration

	banner      []string
	bannerDelay time.Duration
	responder   Responder
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder with an empty profile
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile:     DeviceProfileConfig{Services: []ServiceConfig{}},
		mtu:         247,
		replyDelay:  2 * time.Millisecond,
		bannerDelay: 5 * time.Millisecond,
	}
}

// NewDongleBuilder creates a builder preconfigured with the Nordic UART profile of the dongle
func NewDongleBuilder() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().
		WithService(device.UARTServiceUUID).
		WithCharacteristic(device.UARTWriteUUID, "write,write-without-response").
		WithCharacteristic(device.UARTNotifyUUID, "notify")
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics,
		CharacteristicConfig{UUID: uuid, Properties: properties})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// WithMTU sets the MTU reported by the peripheral, or the exchange error
func (b *PeripheralDeviceBuilder) WithMTU(mtu int, err error) *PeripheralDeviceBuilder {
	b.mtu, b.mtuErr = mtu, err
	return b
}

// WithDialError makes every dial fail
func (b *PeripheralDeviceBuilder) WithDialError(err error) *PeripheralDeviceBuilder {
	b.dialErr = err
	return b
}

// WithDiscoverError makes profile discovery fail
func (b *PeripheralDeviceBuilder) WithDiscoverError(err error) *PeripheralDeviceBuilder {
	b.discoverErr = err
	return b
}

// WithSubscribeError makes the notification subscription fail
func (b *PeripheralDeviceBuilder) WithSubscribeError(err error) *PeripheralDeviceBuilder {
	b.subscribeErr = err
	return b
}

// WithWriteError makes every characteristic write fail
func (b *PeripheralDeviceBuilder) WithWriteError(err error) *PeripheralDeviceBuilder {
	b.writeErr = err
	return b
}

// WithWriteDelay delays every characteristic write, e.g. to outlast the write timeout
func (b *PeripheralDeviceBuilder) WithWriteDelay(d time.Duration) *PeripheralDeviceBuilder {
	b.writeDelay = d
	return b
}

// WithBanner sends the given chunks as notifications right after subscription
func (b *PeripheralDeviceBuilder) WithBanner(chunks ...string) *PeripheralDeviceBuilder {
	b.banner = chunks
	return b
}

// WithBannerDelay sets the pause before each banner chunk
func (b *PeripheralDeviceBuilder) WithBannerDelay(d time.Duration) *PeripheralDeviceBuilder {
	b.bannerDelay = d
	return b
}

// WithResponder installs the peripheral-side reply logic
func (b *PeripheralDeviceBuilder) WithResponder(r Responder) *PeripheralDeviceBuilder {
	b.responder = r
	return b
}

// parseCharacteristicProperties converts a comma separated property list to ble.Property flags
func parseCharacteristicProperties(props string) blelib.Property {
	if props == "" {
		return blelib.CharWrite | blelib.CharNotify
	}

	var property blelib.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "read":
			property |= blelib.CharRead
		case "write":
			property |= blelib.CharWrite
		case "write-without-response":
			property |= blelib.CharWriteNR
		case "notify":
			property |= blelib.CharNotify
		case "indicate":
			property |= blelib.CharIndicate
		}
	}
	return property
}

// MockPeripheral is the built mock: the host device plus the client it dials.
type MockPeripheral struct {
	Device  *mocks.MockDevice
	Client  *mocks.MockClient
	Profile *blelib.Profile

	mu      sync.Mutex
	handler blelib.NotificationHandler
	written [][]byte
}

// Build creates a mocked ble.Device with the configured profile and behavior
func (b *PeripheralDeviceBuilder) Build() *MockPeripheral {
	p := &MockPeripheral{
		Device: &mocks.MockDevice{},
		Client: &mocks.MockClient{},
	}

	var bleServices []*blelib.Service
	for _, svcConfig := range b.profile.Services {
		bleService := &blelib.Service{UUID: blelib.MustParse(svcConfig.UUID)}
		for _, charConfig := range svcConfig.Characteristics {
			bleService.Characteristics = append(bleService.Characteristics, &blelib.Characteristic{
				UUID:     blelib.MustParse(charConfig.UUID),
				Property: parseCharacteristicProperties(charConfig.Properties),
			})
		}
		bleServices = append(bleServices, bleService)
	}
	p.Profile = &blelib.Profile{Services: bleServices}

	if b.dialErr != nil {
		p.Device.On("Dial", mock.Anything, mock.Anything).Return(nil, b.dialErr)
	} else {
		p.Device.On("Dial", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { p.Client.Relink() }).
			Return(p.Client, nil)
	}
	p.Device.On("Stop").Return(nil).Maybe()

	p.Client.On("ExchangeMTU", mock.Anything).Return(b.mtu, b.mtuErr).Maybe()
	if b.discoverErr != nil {
		p.Client.On("DiscoverProfile", true).Return(nil, b.discoverErr).Maybe()
	} else {
		p.Client.On("DiscoverProfile", true).Return(p.Profile, nil).Maybe()
	}
	p.Client.On("CancelConnection").Return(nil).Maybe()
	p.Client.On("Unsubscribe", mock.Anything, mock.Anything).Return(nil).Maybe()

	p.Client.On("Subscribe", mock.Anything, false, mock.Anything).
		Run(func(args mock.Arguments) {
			if b.subscribeErr != nil {
				return
			}
			p.setHandler(args.Get(2).(blelib.NotificationHandler))
			if len(b.banner) > 0 {
				go p.sendBanner(b.banner, b.bannerDelay)
			}
		}).
		Return(b.subscribeErr).Maybe()

	p.Client.On("WriteCharacteristic", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			if b.writeDelay > 0 {
				time.Sleep(b.writeDelay)
			}
			if b.writeErr != nil {
				return
			}
			chunk := append([]byte(nil), args.Get(1).([]byte)...)
			p.record(chunk)
			if b.responder == nil {
				return
			}
			replies := b.responder.OnWrite(chunk)
			if len(replies) > 0 {
				go p.sendLater(replies, b.replyDelay)
			}
		}).
		Return(b.writeErr).Maybe()

	return p
}

// Notify pushes data to the host as if the peripheral sent a notification.
// It reports false while nobody is subscribed.
func (p *MockPeripheral) Notify(data []byte) bool {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Written returns every chunk written so far.
func (p *MockPeripheral) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

// Transcript returns all written bytes concatenated as text.
func (p *MockPeripheral) Transcript() string {
	var sb strings.Builder
	for _, chunk := range p.Written() {
		sb.Write(chunk)
	}
	return sb.String()
}

// Subscribed reports whether the host subscribed to notifications on the current link.
func (p *MockPeripheral) Subscribed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler != nil
}

// DropLink simulates the peripheral going out of range.
func (p *MockPeripheral) DropLink() {
	p.setHandler(nil)
	p.Client.DropLink()
}

func (p *MockPeripheral) setHandler(h blelib.NotificationHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *MockPeripheral) record(chunk []byte) {
	p.mu.Lock()
	p.written = append(p.written, chunk)
	p.mu.Unlock()
}

func (p *MockPeripheral) sendBanner(chunks []string, delay time.Duration) {
	for _, c := range chunks {
		time.Sleep(delay)
		p.Notify([]byte(c))
	}
}

func (p *MockPeripheral) sendLater(replies [][]byte, delay time.Duration) {
	time.Sleep(delay)
	for _, r := range replies {
		p.Notify(r)
	}
}
