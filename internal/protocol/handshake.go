package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/keylink/internal/mailbox"
)

// HandshakeOptions configures banner collection and reconnect attempts.
type HandshakeOptions struct {
	// Timeout is the total time allowed for the banner after each connect.
	Timeout time.Duration `default:"2500ms"`
	Retry   RetryPolicy
}

// DefaultHandshakeOptions returns options populated from their default tags.
func DefaultHandshakeOptions() HandshakeOptions {
	opts := HandshakeOptions{}
	defaults.SetDefaults(&opts)
	return opts
}

// Handshaker reads the layout banner the dongle sends after connecting.
type Handshaker struct {
	opts   HandshakeOptions
	store  LayoutStore
	logger *logrus.Logger
}

// NewHandshaker creates a handshaker persisting the announced layout into store (may be nil).
func NewHandshaker(opts HandshakeOptions, store LayoutStore, logger *logrus.Logger) *Handshaker {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHandshakeOptions().Timeout
	}
	return &Handshaker{opts: opts, store: store, logger: logger}
}

// Run connects and waits for the banner, reconnecting while the retry policy allows.
// It returns the announced layout token. When every attempt fails it returns
// ErrNoHandshake, or the connect error if the last attempt could not connect.
func (h *Handshaker) Run(ctx context.Context, link Link) (string, error) {
	b := h.opts.Retry.newBackOff(ctx)

	var lastErr error
	for attempt := 1; ; attempt++ {
		token, err := h.attempt(ctx, link)
		if err == nil {
			h.logger.WithFields(logrus.Fields{
				"layout":  token,
				"attempt": attempt,
			}).Info("Handshake completed")
			if h.store != nil {
				if err := h.store.SetKeyboardLayout(token); err != nil {
					h.logger.WithError(err).Warn("Failed to persist keyboard layout")
				}
			}
			return token, nil
		}
		lastErr = err

		next := b.NextBackOff()
		if next == backoff.Stop {
			break
		}

		h.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("Handshake attempt failed, reconnecting")

		if err := link.Disconnect(ctx); err != nil {
			h.logger.WithError(err).Debug("Disconnect before handshake retry failed")
		}
		if err := wait(ctx, next); err != nil {
			return "", err
		}
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	var exErr *ExchangeError
	if !errors.As(lastErr, &exErr) {
		return "", lastErr
	}
	return "", ErrNoHandshake
}

func (h *Handshaker) attempt(ctx context.Context, link Link) (string, error) {
	if err := link.Connect(ctx); err != nil {
		return "", err
	}

	text := h.collect(ctx, link.Mailbox())
	token, ok := ParseBanner(text)
	if !ok {
		h.logger.WithField("collected", strings.TrimSpace(text)).Debug("No layout banner in collected text")
		return "", &ExchangeError{Kind: NoHandshake, Reply: text}
	}
	return token, nil
}

// collect streams inbound chunks until a line terminator or complete banner arrives,
// or the deadline passes, and returns whatever was gathered.
func (h *Handshaker) collect(ctx context.Context, mb *mailbox.Mailbox) string {
	chunks := make(chan []byte, 64)
	mb.StartStream(func(data []byte) {
		select {
		case chunks <- data:
		default:
			h.logger.Warn("Handshake collector is full, dropping chunk")
		}
	})
	defer mb.StopStream()

	deadline := time.NewTimer(h.opts.Timeout)
	defer deadline.Stop()

	var sb strings.Builder
	for {
		select {
		case data := <-chunks:
			sb.Write(data)
			if bannerComplete(sb.String()) {
				return sb.String()
			}
		case <-deadline.C:
			return sb.String()
		case <-ctx.Done():
			return sb.String()
		}
	}
}

// String describes the handshake configuration for logs.
func (o HandshakeOptions) String() string {
	return fmt.Sprintf("timeout=%s attempts=%d backoff=%s", o.Timeout, o.Retry.Attempts(), o.Retry.Backoff)
}
