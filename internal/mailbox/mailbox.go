package mailbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
)

// DefaultBacklogSize is the number of undelivered notifications kept while nobody listens.
const DefaultBacklogSize = 64

// ErrWaiterBusy is returned when a one-shot waiter is armed while another one is pending.
var ErrWaiterBusy = errors.New("a reply waiter is already pending")

// Consumer identifies which subscriber slot currently receives inbound messages.
type Consumer int

const (
	None Consumer = iota
	Stream
	Waiter
)

func (c Consumer) String() string {
	switch c {
	case Stream:
		return "stream"
	case Waiter:
		return "waiter"
	default:
		return "none"
	}
}

type oneShot struct {
	fn    func(data []byte, ok bool)
	timer *time.Timer
}

// Mailbox multiplexes unsolicited peripheral notifications between a stream listener,
// a single one-shot waiter and a bounded FIFO backlog, in that priority order.
//
// All callbacks run with the mailbox lock held. They must not call back into the mailbox.
type Mailbox struct {
	mu          sync.Mutex
	backlog     mpmc.RichOverlappedRingBuffer[[]byte]
	queued      int
	overwritten uint64

	stream func([]byte)
	waiter *oneShot

	logger *logrus.Logger
}

// New creates a mailbox with a backlog of the given capacity (DefaultBacklogSize when zero).
func New(size uint32, logger *logrus.Logger) *Mailbox {
	if size == 0 {
		size = DefaultBacklogSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Mailbox{
		backlog: mpmc.NewOverlappedRingBuffer[[]byte](size),
		logger:  logger,
	}
}

// StartStream installs the stream listener and synchronously flushes the backlog to it
// in arrival order before any newer message is delivered.
func (m *Mailbox) StartStream(fn func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stream = fn
	flushed := 0
	for m.queued > 0 {
		data, ok := m.dequeueLocked()
		if !ok {
			break
		}
		flushed++
		fn(data)
	}
	if flushed > 0 {
		m.logger.WithField("messages", flushed).Debug("Flushed notification backlog to stream")
	}
}

// StopStream clears the stream listener.
func (m *Mailbox) StopStream() {
	m.mu.Lock()
	m.stream = nil
	m.mu.Unlock()
}

// AwaitNext resolves fn exactly once: immediately with the oldest buffered message,
// with the next inbound message, or with (nil, false) when timeout elapses first.
func (m *Mailbox) AwaitNext(timeout time.Duration, fn func(data []byte, ok bool)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.waiter != nil {
		return ErrWaiterBusy
	}

	if data, ok := m.dequeueLocked(); ok {
		fn(data, true)
		return nil
	}

	if timeout <= 0 {
		fn(nil, false)
		return nil
	}

	w := &oneShot{fn: fn}
	w.timer = time.AfterFunc(timeout, func() { m.expire(w) })
	m.waiter = w
	return nil
}

// Next blocks until a message arrives, the timeout elapses or ctx is done.
func (m *Mailbox) Next(ctx context.Context, timeout time.Duration) ([]byte, bool) {
	type result struct {
		data []byte
		ok   bool
	}
	ch := make(chan result, 1)
	if err := m.AwaitNext(timeout, func(data []byte, ok bool) {
		ch <- result{data: data, ok: ok}
	}); err != nil {
		return nil, false
	}

	select {
	case r := <-ch:
		return r.data, r.ok
	case <-ctx.Done():
		m.CancelWait()
		r := <-ch
		return r.data, r.ok
	}
}

// CancelWait withdraws a pending waiter, resolving it with (nil, false).
func (m *Mailbox) CancelWait() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveWaiterLocked(nil, false)
}

// Deliver routes an inbound message: stream listener first, then the pending waiter,
// otherwise the backlog.
func (m *Mailbox) Deliver(data []byte) {
	msg := append([]byte(nil), data...)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.stream != nil:
		m.stream(msg)
	case m.waiter != nil:
		m.resolveWaiterLocked(msg, true)
	default:
		overwrites, err := m.backlog.EnqueueM(msg)
		if err != nil {
			m.logger.WithError(err).Warn("Failed to buffer notification")
			return
		}
		m.queued += 1 - int(overwrites)
		if overwrites > 0 {
			m.overwritten += uint64(overwrites)
			m.logger.WithField("overwritten", overwrites).Warn("Notification backlog full, dropped oldest messages")
		}
	}
}

// Discard drops buffered messages and returns how many were dropped.
func (m *Mailbox) Discard() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drainLocked()
}

// Reset clears the backlog and the stream listener and resolves any pending waiter
// with (nil, false) so that no caller is left waiting.
func (m *Mailbox) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stream = nil
	m.resolveWaiterLocked(nil, false)
	if dropped := m.drainLocked(); dropped > 0 {
		m.logger.WithField("messages", dropped).Debug("Dropped buffered notifications on reset")
	}
}

// Len returns the number of buffered messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queued
}

// Overwritten returns how many buffered messages were lost to backlog overflow.
func (m *Mailbox) Overwritten() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overwritten
}

// Active reports the consumer that would receive the next inbound message.
func (m *Mailbox) Active() Consumer {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.stream != nil:
		return Stream
	case m.waiter != nil:
		return Waiter
	default:
		return None
	}
}

func (m *Mailbox) expire(w *oneShot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// a delivery or reset won the race
	if m.waiter != w {
		return
	}
	m.waiter = nil
	w.fn(nil, false)
}

func (m *Mailbox) resolveWaiterLocked(data []byte, ok bool) {
	w := m.waiter
	if w == nil {
		return
	}
	m.waiter = nil
	w.timer.Stop()
	w.fn(data, ok)
}

func (m *Mailbox) dequeueLocked() ([]byte, bool) {
	if m.queued == 0 || m.backlog.IsEmpty() {
		m.queued = 0
		return nil, false
	}
	data, err := m.backlog.Dequeue()
	if err != nil {
		m.logger.WithError(err).Warn("Failed to read notification backlog")
		m.queued = 0
		return nil, false
	}
	m.queued--
	return data, true
}

func (m *Mailbox) drainLocked() int {
	dropped := 0
	for {
		if _, ok := m.dequeueLocked(); !ok {
			return dropped
		}
		dropped++
	}
}
