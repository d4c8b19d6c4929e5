// Package hub owns the single dongle session of the process and exposes the
// operations the settings layer and the CLI drive.
package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/keylink/internal/device"
	goble "github.com/srg/keylink/internal/device/go-ble"
	"github.com/srg/keylink/internal/layout"
	"github.com/srg/keylink/internal/protocol"
)

var (
	// ErrNotEnabled is returned when autoconnect has no enabled, selected device.
	ErrNotEnabled = errors.New("Output device not enabled or not selected")
	// ErrNoDevice is returned when an operation has no target address.
	ErrNoDevice = errors.New("No device selected")
	// ErrUnknownLayout is returned for layout values outside the catalog.
	ErrUnknownLayout = errors.New("unknown keyboard layout")
)

// Options groups the tunables of every layer the hub drives.
type Options struct {
	Session   goble.SessionOptions
	Handshake protocol.HandshakeOptions
	Exchange  protocol.ExchangeOptions
}

// DefaultOptions returns the default options of every layer.
func DefaultOptions() Options {
	return Options{
		Session:   goble.DefaultSessionOptions(),
		Handshake: protocol.DefaultHandshakeOptions(),
		Exchange:  protocol.DefaultExchangeOptions(),
	}
}

// Hub holds at most one session and the connected flag.
//
// Operations run one at a time. Disconnect is the exception: it may interrupt a
// running operation, which then fails with a not-connected or session-closed error.
type Hub struct {
	prefs  Preferences
	dialer goble.Dialer
	opts   Options
	logger *logrus.Logger

	handshaker *protocol.Handshaker
	exchanger  *protocol.Exchanger
	connected  *Flag

	opMu   sync.Mutex
	mu     sync.Mutex
	flagMu sync.Mutex

	session atomic.Pointer[goble.Session]
	target  string
	// layout is the last layout the current session announced or acknowledged.
	layout string
}

// New creates a hub. prefs may be nil, in which case nothing is persisted and
// AutoconnectFromPreferences always reports ErrNotEnabled.
func New(prefs Preferences, dialer goble.Dialer, opts Options, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	if prefs != nil {
		opts.Session.AppendNewline = prefs.AppendNewline
	}

	var store protocol.LayoutStore
	if prefs != nil {
		store = prefs
	}

	h := &Hub{
		prefs:      prefs,
		dialer:     dialer,
		opts:       opts,
		logger:     logger,
		handshaker: protocol.NewHandshaker(opts.Handshake, store, logger),
		exchanger:  protocol.NewExchanger(opts.Exchange, logger),
		connected:  NewFlag(),
	}
	if prefs != nil {
		h.target = prefs.OutputDevice()
	}
	return h
}

// Connected returns the observable connection flag.
func (h *Hub) Connected() *Flag { return h.connected }

// Target returns the address used when an operation names none.
func (h *Hub) Target() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// SetTarget changes the default address. The current session is kept until an
// operation needs a link to a different address.
func (h *Hub) SetTarget(address string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target = strings.TrimSpace(address)
}

// Autoconnect connects to address and completes the handshake when enabled.
// It returns the layout announced by the dongle.
func (h *Hub) Autoconnect(ctx context.Context, enabled bool, address string) (string, error) {
	h.SetTarget(address)
	if !enabled || strings.TrimSpace(address) == "" {
		return "", ErrNotEnabled
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()
	return h.autoconnect(ctx, address)
}

// AutoconnectFromPreferences runs Autoconnect with the persisted enable flag and device.
func (h *Hub) AutoconnectFromPreferences(ctx context.Context) (string, error) {
	if h.prefs == nil {
		return "", ErrNotEnabled
	}
	return h.Autoconnect(ctx, h.prefs.UseExternalDevice(), h.prefs.OutputDevice())
}

func (h *Hub) autoconnect(ctx context.Context, address string) (string, error) {
	s, err := h.ensureSession(address)
	if err != nil {
		h.connected.Set(false)
		return "", err
	}

	// The banner is only sent once per link.
	if s.State().Linked() {
		if token := h.sessionLayout(s); token != "" {
			h.syncFlag(s, nil)
			return token, nil
		}
	}

	h.logger.WithFields(logrus.Fields{
		"address":   address,
		"handshake": h.opts.Handshake.String(),
	}).Info("Connecting to dongle...")

	token, err := h.handshaker.Run(ctx, s)
	h.syncFlag(s, err)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Warn("Autoconnect failed")
		return "", err
	}
	h.setSessionLayout(s, token)
	return token, nil
}

// SendVerified delivers payload to address (the target when empty) and checks the digest echo.
func (h *Hub) SendVerified(ctx context.Context, payload []byte, address string) error {
	if strings.TrimSpace(address) == "" {
		address = h.Target()
	}
	if address == "" {
		return ErrNoDevice
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	s, err := h.ensureSession(address)
	if err != nil {
		return err
	}
	if err := h.prepare(ctx, s); err != nil {
		h.syncFlag(s, err)
		return err
	}
	err = h.exchanger.SendVerified(ctx, s, payload)
	h.syncFlag(s, err)
	return err
}

// SendCommand writes cmd to the target and waits for the acknowledgement.
func (h *Hub) SendCommand(ctx context.Context, cmd string) (string, error) {
	address := h.Target()
	if address == "" {
		return "", ErrNoDevice
	}
	return h.sendCommand(ctx, address, cmd)
}

func (h *Hub) sendCommand(ctx context.Context, address, cmd string) (string, error) {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	s, err := h.ensureSession(address)
	if err != nil {
		return "", err
	}
	if err := h.prepare(ctx, s); err != nil {
		h.syncFlag(s, err)
		return "", err
	}
	reply, err := h.exchanger.SendCommand(ctx, s, cmd)
	h.syncFlag(s, err)
	return reply, err
}

// Disconnect closes the session, if any, and clears the connected flag.
// Calling it on an idle hub is a no-op apart from the flag.
func (h *Hub) Disconnect() {
	h.mu.Lock()
	s := h.session.Swap(nil)
	h.layout = ""
	h.mu.Unlock()

	if s != nil {
		h.logger.WithField("address", s.Address()).Info("Disconnecting from dongle...")
		s.Close()
	}
	h.flagMu.Lock()
	h.connected.Set(false)
	h.flagMu.Unlock()
}

// Close disconnects and releases the host adapter when the dialer owns one.
func (h *Hub) Close() error {
	h.Disconnect()
	if stopper, ok := h.dialer.(interface{ Stop() error }); ok {
		return stopper.Stop()
	}
	return nil
}

// SetEnabled persists the enable flag. Disabling drops the link; enabling
// connects to the selected device.
func (h *Hub) SetEnabled(ctx context.Context, enabled bool) (string, error) {
	if h.prefs != nil {
		if err := h.prefs.SetUseExternalDevice(enabled); err != nil {
			return "", fmt.Errorf("failed to save preference: %w", err)
		}
	}
	if !enabled {
		h.Disconnect()
		return "", nil
	}

	address := h.preferredAddress()
	if address == "" {
		return "", ErrNoDevice
	}
	return h.Autoconnect(ctx, true, address)
}

// SelectDevice persists address and name as the output device. When the output
// device is enabled the previous link is dropped and the new device handshaken.
func (h *Hub) SelectDevice(ctx context.Context, address, name string) (string, error) {
	if err := device.ValidateAddress(address); err != nil {
		return "", err
	}
	if h.prefs != nil {
		if err := h.prefs.SetOutputDevice(address, name); err != nil {
			return "", fmt.Errorf("failed to save preference: %w", err)
		}
	}
	h.SetTarget(address)

	if h.prefs == nil || !h.prefs.UseExternalDevice() {
		return "", nil
	}
	h.Disconnect()
	return h.Autoconnect(ctx, true, address)
}

// SetLayout switches the dongle's keyboard layout and persists it once acknowledged.
func (h *Hub) SetLayout(ctx context.Context, value string) error {
	l, ok := layout.Lookup(value)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayout, value)
	}
	address := h.preferredAddress()
	if address == "" {
		return ErrNoDevice
	}

	if _, err := h.sendCommand(ctx, address, protocol.BuildLayoutCommand(l.Value)); err != nil {
		return err
	}
	if s := h.session.Load(); s != nil {
		h.setSessionLayout(s, l.Value)
	}
	h.logger.WithField("layout", l.Value).Info("Keyboard layout set")
	if h.prefs != nil {
		if err := h.prefs.SetKeyboardLayout(l.Value); err != nil {
			return fmt.Errorf("failed to save preference: %w", err)
		}
	}
	return nil
}

// SendPassword delivers payload with digest verification to the preferred device.
func (h *Hub) SendPassword(ctx context.Context, payload []byte) error {
	return h.SendVerified(ctx, payload, h.preferredAddress())
}

// preferredAddress returns the target, falling back to the persisted device.
func (h *Hub) preferredAddress() string {
	if t := h.Target(); t != "" {
		return t
	}
	if h.prefs != nil {
		return strings.TrimSpace(h.prefs.OutputDevice())
	}
	return ""
}

// ensureSession returns the session for address, replacing a closed session or
// one bound to another address. The previous session is closed first.
func (h *Hub) ensureSession(address string) (*goble.Session, error) {
	if err := device.ValidateAddress(address); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if s := h.session.Load(); s != nil {
		select {
		case <-s.Done():
		default:
			if s.Address() == address {
				return s, nil
			}
		}
		h.logger.WithFields(logrus.Fields{
			"from": s.Address(),
			"to":   address,
		}).Info("Switching dongle session")
		s.Close()
		h.session.Store(nil)
		h.layout = ""
		h.connected.Set(false)
	}

	var s *goble.Session
	opts := h.opts.Session
	opts.OnStateChange = func(st goble.State) { h.onSessionState(s, st) }
	s = goble.NewSession(address, h.dialer, opts, h.logger)
	h.session.Store(s)
	return s, nil
}

// onSessionState lowers the flag as soon as the current session loses its link.
// It runs on the session loop and must not take h.mu, which ensureSession holds
// while closing a session.
func (h *Hub) onSessionState(s *goble.Session, st goble.State) {
	if st != goble.Disconnected {
		return
	}
	h.flagMu.Lock()
	defer h.flagMu.Unlock()
	if h.session.Load() == s {
		h.connected.Set(false)
	}
}

func (h *Hub) sessionLayout(s *goble.Session) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session.Load() != s {
		return ""
	}
	return h.layout
}

func (h *Hub) setSessionLayout(s *goble.Session, token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session.Load() == s {
		h.layout = token
	}
}

// prepare runs the handshake on a session without a link so the banner is consumed
// before any exchange. A dongle that stays silent but linked is still usable.
func (h *Hub) prepare(ctx context.Context, s *goble.Session) error {
	if s.State().Linked() {
		return nil
	}
	token, err := h.handshaker.Run(ctx, s)
	if err != nil {
		if !s.State().Linked() {
			return err
		}
		h.logger.WithFields(logrus.Fields{
			"address": s.Address(),
			"error":   err,
		}).Warn("Dongle did not announce its layout, continuing")
		return nil
	}
	h.setSessionLayout(s, token)
	return nil
}

// syncFlag reflects an operation outcome in the connected flag. Outcomes of a
// session that was disconnected or replaced meanwhile are ignored.
func (h *Hub) syncFlag(s *goble.Session, err error) {
	h.flagMu.Lock()
	defer h.flagMu.Unlock()
	if h.session.Load() != s {
		return
	}
	if err == nil && !h.opts.Session.Persistent {
		// Single-shot links are released after every write.
		h.connected.Set(true)
		return
	}
	h.connected.Set(s.State().Linked())
}

// Outcome converts an operation result into a success flag and a short reason.
func Outcome(err error) (bool, string) {
	if err == nil {
		return true, ""
	}
	return false, err.Error()
}
