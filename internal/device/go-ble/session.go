package goble

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/keylink/internal/device"
	"github.com/srg/keylink/internal/groutine"
	"github.com/srg/keylink/internal/mailbox"
)

const eventQueueSize = 64

// Session owns the single link to one peripheral address.
//
// Every state field below the marker is touched only by the session loop. Public
// methods post commands to the loop; blocking radio calls run on helper goroutines
// and post their results back, tagged with the link generation they belong to.
type Session struct {
	address string
	dialer  Dialer
	opts    SessionOptions
	logger  *logrus.Logger
	mailbox *mailbox.Mailbox

	events chan any
	done   chan struct{}

	state     atomic.Int32
	notifying atomic.Bool
	mtu       atomic.Int32

	// loop-owned
	gen        uint64
	client     Client
	writeChar  *ble.Characteristic
	notifyChar *ble.Characteristic
	linkCancel context.CancelFunc
	released   chan struct{}
	connecting []chan error
	write      *pendingWrite
	writeSeq   uint64
	closed     bool
}

type pendingWrite struct {
	seq     uint64
	data    []byte
	opts    WriteOptions
	reply   chan error
	timer   *time.Timer
	started bool
}

// commands
type (
	connectCmd struct{ reply chan error }
	writeCmd   struct {
		data  []byte
		opts  WriteOptions
		reply chan error
	}
	disconnectCmd struct{ reply chan chan struct{} }
	closeCmd      struct{ reply chan chan struct{} }
)

// radio results
type (
	dialResult struct {
		gen    uint64
		client Client
		err    error
	}
	mtuResult struct {
		gen uint64
		mtu int
		err error
	}
	profileResult struct {
		gen     uint64
		profile *ble.Profile
		err     error
	}
	subscribeResult struct {
		gen uint64
		err error
	}
	notification struct {
		gen  uint64
		data []byte
	}
	writeResult struct {
		gen uint64
		seq uint64
		err error
	}
	writeExpired struct{ seq uint64 }
	linkLost     struct{ gen uint64 }
)

// NewSession creates a session for address and starts its loop.
func NewSession(address string, dialer Dialer, opts SessionOptions, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	defaults := DefaultSessionOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaults.ConnectTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.MTU < DefaultMTU {
		opts.MTU = defaults.MTU
	}
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = defaults.ServiceUUID
	}
	if opts.WriteUUID == "" {
		opts.WriteUUID = defaults.WriteUUID
	}
	if opts.NotifyUUID == "" {
		opts.NotifyUUID = defaults.NotifyUUID
	}

	s := &Session{
		address:  address,
		dialer:   dialer,
		opts:     opts,
		logger:   logger,
		mailbox:  mailbox.New(opts.BacklogSize, logger),
		events:   make(chan any, eventQueueSize),
		done:     make(chan struct{}),
		released: closedChan(),
	}
	s.mtu.Store(DefaultMTU)

	groutine.Go(context.Background(), "session-loop", func(context.Context) { s.run() })
	return s
}

// Address returns the peripheral address this session targets.
func (s *Session) Address() string { return s.address }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// NotificationsEnabled reports whether the notify characteristic is subscribed.
// False on a linked session means the peripheral is used write-only.
func (s *Session) NotificationsEnabled() bool { return s.notifying.Load() }

// MTU returns the negotiated ATT MTU.
func (s *Session) MTU() int { return int(s.mtu.Load()) }

// Mailbox returns the inbound notification multiplexer of this session.
func (s *Session) Mailbox() *mailbox.Mailbox { return s.mailbox }

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Connect brings the link up, reusing it when already Ready.
func (s *Session) Connect(ctx context.Context) error {
	if err := device.ValidateAddress(s.address); err != nil {
		return err
	}
	reply := make(chan error, 1)
	return s.call(ctx, connectCmd{reply: reply}, reply)
}

// Write sends data to the write characteristic, connecting first if needed.
// Only one write may be in flight; a concurrent call fails with device.ErrWriteInFlight.
func (s *Session) Write(ctx context.Context, data []byte, opts WriteOptions) error {
	if err := device.ValidateAddress(s.address); err != nil {
		return err
	}
	reply := make(chan error, 1)
	return s.call(ctx, writeCmd{data: append([]byte(nil), data...), opts: opts, reply: reply}, reply)
}

// Disconnect releases the link and fails any pending operation with device.ErrNotConnected.
// The session stays usable; the next Connect or Write dials again.
func (s *Session) Disconnect(ctx context.Context) error {
	reply := make(chan chan struct{}, 1)
	if err := s.send(ctx, disconnectCmd{reply: reply}); err != nil {
		return nil
	}
	return s.awaitRelease(ctx, reply)
}

// Close releases the link and stops the session. It is safe to call more than once.
func (s *Session) Close() {
	reply := make(chan chan struct{}, 1)
	if err := s.send(context.Background(), closeCmd{reply: reply}); err != nil {
		return
	}
	_ = s.awaitRelease(context.Background(), reply)
	<-s.done
}

func (s *Session) awaitRelease(ctx context.Context, reply chan chan struct{}) error {
	var released chan struct{}
	select {
	case released = <-reply:
	case <-s.done:
		select {
		case released = <-reply:
		default:
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) call(ctx context.Context, cmd any, reply chan error) error {
	if err := s.send(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) send(ctx context.Context, ev any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers a radio result to the loop. It reports false once the loop is gone.
func (s *Session) post(ev any) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) run() {
	defer close(s.done)

	for !s.closed {
		ev := <-s.events
		switch e := ev.(type) {
		case connectCmd:
			s.onConnect(e)
		case writeCmd:
			s.onWrite(e)
		case disconnectCmd:
			s.onDisconnect(e)
		case closeCmd:
			s.onClose(e)
		case dialResult:
			s.onDialed(e)
		case mtuResult:
			s.onMTU(e)
		case profileResult:
			s.onProfile(e)
		case subscribeResult:
			s.onSubscribed(e)
		case notification:
			if e.gen == s.gen {
				s.mailbox.Deliver(e.data)
			}
		case writeResult:
			s.onWriteResult(e)
		case writeExpired:
			s.onWriteExpired(e)
		case linkLost:
			s.onLinkLost(e)
		}
	}
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"from":    prev,
		"to":      st,
	}).Debug("Session state changed")
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st)
	}
}

func (s *Session) onConnect(cmd connectCmd) {
	switch st := s.State(); {
	case st.Linked():
		cmd.reply <- nil
	case st.connecting():
		s.connecting = append(s.connecting, cmd.reply)
	default:
		s.connecting = append(s.connecting, cmd.reply)
		s.startConnect()
	}
}

func (s *Session) startConnect() {
	if s.opts.BeforeConnect != nil {
		s.opts.BeforeConnect()
	}

	s.gen++
	gen := s.gen
	linkCtx, cancel := context.WithCancel(context.Background())
	s.linkCancel = cancel
	prevRelease := s.released
	s.setState(Connecting)

	s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"timeout": s.opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	groutine.Go(linkCtx, "session-dial", func(ctx context.Context) {
		// the previous link must be gone before the radio dials again
		select {
		case <-prevRelease:
		case <-ctx.Done():
		}
		dialCtx, cancelDial := context.WithTimeout(ctx, s.opts.ConnectTimeout)
		defer cancelDial()

		client, err := s.dialer.Dial(dialCtx, s.address)
		if !s.post(dialResult{gen: gen, client: client, err: err}) && client != nil {
			_ = client.CancelConnection()
		}
	})
}

func (s *Session) onDialed(r dialResult) {
	if r.gen != s.gen {
		if r.client != nil {
			s.logger.WithField("address", s.address).Debug("Releasing link from an abandoned connect attempt")
			release(r.client, nil, s.logger)
		}
		return
	}
	if r.err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.address,
			"error":   r.err,
		}).Error("Failed to dial BLE device")
		s.failLink(fmt.Errorf("failed to connect to device with address %q: %w", s.address, r.err))
		return
	}

	s.client = r.client
	s.watchLink(r.client)
	s.setState(NegotiatingLink)

	client, gen, mtu := r.client, r.gen, s.opts.MTU
	groutine.Go(context.Background(), "session-mtu", func(context.Context) {
		txMTU, err := client.ExchangeMTU(mtu)
		s.post(mtuResult{gen: gen, mtu: txMTU, err: err})
	})
}

func (s *Session) watchLink(client Client) {
	monitored, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		s.logger.Debug("Client does not support Disconnected() channel")
		return
	}
	gen := s.gen
	linkCtx := s.linkContext()
	groutine.Go(linkCtx, "session-link-monitor", func(ctx context.Context) {
		select {
		case <-monitored.Disconnected():
			s.post(linkLost{gen: gen})
		case <-ctx.Done():
		}
	})
}

func (s *Session) onMTU(r mtuResult) {
	if r.gen != s.gen {
		return
	}
	if r.err != nil {
		// larger MTU is an optimization only
		s.logger.WithFields(logrus.Fields{
			"address": s.address,
			"error":   r.err,
		}).Warn("MTU negotiation failed, continuing with default MTU")
	} else if r.mtu >= DefaultMTU {
		s.mtu.Store(int32(r.mtu))
		s.logger.WithField("mtu", r.mtu).Debug("MTU negotiated")
	}

	s.setState(DiscoveringServices)
	client, gen := s.client, s.gen
	groutine.Go(context.Background(), "session-discover", func(context.Context) {
		profile, err := client.DiscoverProfile(true)
		s.post(profileResult{gen: gen, profile: profile, err: err})
	})
}

func (s *Session) onProfile(r profileResult) {
	if r.gen != s.gen {
		return
	}
	if r.err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.address,
			"error":   r.err,
		}).Error("Failed to discover profile")
		s.failLink(fmt.Errorf("Service discovery failed: %w", NormalizeError(r.err)))
		return
	}

	writeChar, notifyChar, err := s.resolveCharacteristics(r.profile)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.address,
			"error":   err,
		}).Error("Dongle profile is incomplete")
		s.failLink(err)
		return
	}
	s.writeChar, s.notifyChar = writeChar, notifyChar

	if notifyChar == nil {
		s.logger.WithField("address", s.address).Warn("No notify characteristic, peripheral is write-only")
		s.becomeReady()
		return
	}

	s.setState(SubscribingNotifications)
	client, gen := s.client, s.gen
	handler := func(data []byte) {
		s.post(notification{gen: gen, data: append([]byte(nil), data...)})
	}
	groutine.Go(context.Background(), "session-subscribe", func(context.Context) {
		err := client.Subscribe(notifyChar, false, handler)
		s.post(subscribeResult{gen: gen, err: err})
	})
}

func (s *Session) resolveCharacteristics(profile *ble.Profile) (writeChar, notifyChar *ble.Characteristic, err error) {
	if profile == nil {
		return nil, nil, &device.NotFoundError{Resource: "service", UUIDs: []string{s.opts.ServiceUUID}}
	}

	serviceUUID := device.NormalizeUUID(s.opts.ServiceUUID)
	for _, svc := range profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) != serviceUUID {
			continue
		}
		for _, c := range svc.Characteristics {
			switch device.NormalizeUUID(c.UUID.String()) {
			case device.NormalizeUUID(s.opts.WriteUUID):
				writeChar = c
			case device.NormalizeUUID(s.opts.NotifyUUID):
				if c.Property&(ble.CharNotify|ble.CharIndicate) != 0 {
					notifyChar = c
				}
			}
		}
		if writeChar == nil {
			return nil, nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.opts.ServiceUUID, s.opts.WriteUUID}}
		}
		return writeChar, notifyChar, nil
	}
	return nil, nil, &device.NotFoundError{Resource: "service", UUIDs: []string{s.opts.ServiceUUID}}
}

func (s *Session) onSubscribed(r subscribeResult) {
	if r.gen != s.gen {
		return
	}
	if r.err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.address,
			"error":   r.err,
		}).Warn("Notification subscription rejected, peripheral is write-only")
		s.notifying.Store(false)
	} else {
		s.notifying.Store(true)
	}
	s.becomeReady()
}

func (s *Session) becomeReady() {
	s.setState(Ready)
	s.logger.WithFields(logrus.Fields{
		"address":       s.address,
		"mtu":           s.MTU(),
		"notifications": s.notifying.Load(),
	}).Info("BLE device connected successfully")

	for _, reply := range s.connecting {
		reply <- nil
	}
	s.connecting = nil

	if s.write != nil && !s.write.started {
		s.startWrite()
	}
}

func (s *Session) onLinkLost(e linkLost) {
	if e.gen != s.gen {
		return
	}
	s.logger.WithField("address", s.address).Warn("Peripheral reported disconnection")

	s.setState(Disconnected)
	s.teardown(device.ErrNotConnected)
	if !s.opts.Persistent {
		s.closed = true
	}
}

func (s *Session) onDisconnect(cmd disconnectCmd) {
	if s.State() == Idle && s.client == nil {
		cmd.reply <- closedChan()
		return
	}
	s.logger.WithField("address", s.address).Info("Disconnecting BLE device...")
	s.setState(Disconnected)
	cmd.reply <- s.teardown(device.ErrNotConnected)
}

func (s *Session) onClose(cmd closeCmd) {
	s.setState(Disconnected)
	s.closed = true
	cmd.reply <- s.teardown(ErrSessionClosed)
}

// failLink reports err to every pending operation and releases the link.
func (s *Session) failLink(err error) {
	s.setState(Disconnected)
	s.teardown(err)
	if !s.opts.Persistent {
		s.closed = true
	}
}

func (s *Session) failConnect(err error) {
	for _, reply := range s.connecting {
		reply <- err
	}
	s.connecting = nil
}

// teardown invalidates the current link generation, fails pending operations with
// reason and releases the radio link on a helper goroutine. The returned channel is
// closed once the link is released. Release errors are logged, never returned.
func (s *Session) teardown(reason error) chan struct{} {
	s.gen++
	if s.linkCancel != nil {
		s.linkCancel()
		s.linkCancel = nil
	}
	s.failConnect(reason)
	s.failWrite(reason)
	s.mailbox.Reset()

	client, notifyChar := s.client, s.notifyChar
	if !s.notifying.Load() {
		notifyChar = nil
	}
	s.client, s.writeChar, s.notifyChar = nil, nil, nil
	s.notifying.Store(false)
	s.mtu.Store(DefaultMTU)

	if client == nil {
		return s.released
	}

	released := make(chan struct{})
	s.released = released
	logger := s.logger
	groutine.Go(context.Background(), "session-release", func(context.Context) {
		defer close(released)
		release(client, notifyChar, logger)
	})
	return released
}

func (s *Session) linkContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	prev := s.linkCancel
	s.linkCancel = func() {
		cancel()
		if prev != nil {
			prev()
		}
	}
	return ctx
}

// release unsubscribes and drops the link, swallowing errors.
func release(client Client, notifyChar *ble.Characteristic, logger *logrus.Logger) {
	if notifyChar != nil {
		if err := NormalizeError(client.Unsubscribe(notifyChar, false)); err != nil {
			logger.WithField("error", err).Debug("Failed to unsubscribe from notifications")
		}
	}
	if err := client.CancelConnection(); err != nil {
		logger.WithField("error", NormalizeError(err)).Warn("BLE device disconnected with errors")
		return
	}
	logger.Info("BLE device disconnected successfully")
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
