package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/keylink/internal/device"
)

// Client is the part of ble.Client a Session drives.
type Client interface {
	ExchangeMTU(rxMTU int) (txMTU int, err error)
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

// Dialer opens a link to a peripheral address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Client, error)
}

// HostDialer dials through the host BLE adapter created by DeviceFactory.
// The adapter is created lazily on first dial and reused afterwards.
type HostDialer struct {
	mu     sync.Mutex
	dev    ble.Device
	logger *logrus.Logger
}

// NewHostDialer creates a dialer backed by the host adapter.
func NewHostDialer(logger *logrus.Logger) *HostDialer {
	if logger == nil {
		logger = logrus.New()
	}
	return &HostDialer{logger: logger}
}

// Dial connects to the peripheral with the given address.
func (d *HostDialer) Dial(ctx context.Context, address string) (Client, error) {
	if err := device.ValidateAddress(address); err != nil {
		return nil, err
	}

	dev, err := d.device()
	if err != nil {
		return nil, err
	}

	d.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return client, nil
}

// Stop releases the host adapter if it was created.
func (d *HostDialer) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev == nil {
		return nil
	}
	err := d.dev.Stop()
	d.dev = nil
	return NormalizeError(err)
}

func (d *HostDialer) device() (ble.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev != nil {
		return d.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		d.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	d.dev = dev
	return dev, nil
}
