package protocol

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/keylink/internal/device/go-ble"
)

const (
	// AckMarker is contained in every positive command reply.
	AckMarker = "R:OK"
	// SendPrefix tags a payload for verified delivery.
	SendPrefix = "S:"
	// LayoutCommandPrefix selects the dongle's keyboard layout.
	LayoutCommandPrefix = "C:SET:LAYOUT="
)

var hashReplyPattern = regexp.MustCompile(`R:H=([0-9a-fA-F]{32})`)

// ExchangeOptions configures reply waiting.
type ExchangeOptions struct {
	// ReplyTimeout bounds the wait for the single reply notification.
	ReplyTimeout time.Duration `default:"3s"`
	// ForceNoResponse writes commands without link-layer acknowledgement.
	ForceNoResponse bool `default:"false"`
}

// DefaultExchangeOptions returns options populated from their default tags.
func DefaultExchangeOptions() ExchangeOptions {
	opts := ExchangeOptions{}
	defaults.SetDefaults(&opts)
	return opts
}

// Exchanger writes a command and waits for exactly one reply. Exchanges are
// serialized: a call waits until the previous one has completed.
type Exchanger struct {
	mu     sync.Mutex
	opts   ExchangeOptions
	logger *logrus.Logger
}

// NewExchanger creates an exchanger.
func NewExchanger(opts ExchangeOptions, logger *logrus.Logger) *Exchanger {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultExchangeOptions().ReplyTimeout
	}
	return &Exchanger{opts: opts, logger: logger}
}

// BuildLayoutCommand returns the command selecting layout value on the dongle.
func BuildLayoutCommand(value string) string {
	return LayoutCommandPrefix + value + "\n"
}

// Digest returns the lowercase hex MD5 of payload as reported by the dongle.
func Digest(payload []byte) string {
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// SendCommand writes cmd and succeeds when the reply contains R:OK.
// It returns the trimmed reply text.
func (x *Exchanger) SendCommand(ctx context.Context, link Link, cmd string) (string, error) {
	reply, err := x.exchange(ctx, link, []byte(cmd))
	if err != nil {
		return reply, err
	}
	if !strings.Contains(reply, AckMarker) {
		return reply, &ExchangeError{Kind: UnexpectedReply, Reply: reply}
	}
	return strings.TrimSpace(reply), nil
}

// SendVerified writes S:<payload> and succeeds when the dongle echoes the payload's
// MD5 digest as R:H=<32 hex>. Digests are compared case-insensitively.
func (x *Exchanger) SendVerified(ctx context.Context, link Link, payload []byte) error {
	out := make([]byte, 0, len(SendPrefix)+len(payload))
	out = append(out, SendPrefix...)
	out = append(out, payload...)

	reply, err := x.exchange(ctx, link, out)
	if err != nil {
		return err
	}

	m := hashReplyPattern.FindStringSubmatch(reply)
	if m == nil {
		return &ExchangeError{Kind: MalformedReply, Reply: reply}
	}
	if !strings.EqualFold(m[1], Digest(payload)) {
		x.logger.WithFields(logrus.Fields{
			"expected": Digest(payload),
			"received": m[1],
		}).Warn("Dongle reported a different digest")
		return &ExchangeError{Kind: HashMismatch, Reply: reply}
	}
	return nil
}

// exchange performs write-then-await. A write-only link cannot carry the reply,
// so the exchange fails with ErrUnverified once the write has gone out.
func (x *Exchanger) exchange(ctx context.Context, link Link, out []byte) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := link.Connect(ctx); err != nil {
		return "", err
	}

	mb := link.Mailbox()
	if stale := mb.Discard(); stale > 0 {
		x.logger.WithField("messages", stale).Debug("Discarded stale notifications before command")
	}

	if err := link.Write(ctx, out, goble.WriteOptions{ForceNoResponse: x.opts.ForceNoResponse}); err != nil {
		return "", err
	}

	if !link.NotificationsEnabled() {
		x.logger.Warn("Peripheral is write-only, delivery not verified")
		return "", ErrUnverified
	}

	data, ok := mb.Next(ctx, x.opts.ReplyTimeout)
	if !ok {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrNoReply
	}

	reply := string(data)
	x.logger.WithField("reply", strings.TrimSpace(reply)).Debug("Received reply")
	return reply, nil
}
