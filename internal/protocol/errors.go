package protocol

import (
	"fmt"
	"strings"
)

// Kind classifies a failed exchange.
type Kind string

const (
	NoReply         Kind = "no_reply"
	UnexpectedReply Kind = "unexpected_reply"
	MalformedReply  Kind = "malformed_reply"
	HashMismatch    Kind = "hash_mismatch"
	NoHandshake     Kind = "no_handshake"
	Unverified      Kind = "unverified"
)

// ExchangeError reports why a command/response or handshake exchange failed.
// Error() yields the short reason shown to the user.
type ExchangeError struct {
	Kind  Kind
	Reply string
}

func (e *ExchangeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case NoReply:
		return "No reply"
	case UnexpectedReply:
		return "Reply: " + strings.TrimSpace(e.Reply)
	case MalformedReply:
		return fmt.Sprintf("malformed reply: %q", strings.TrimSpace(e.Reply))
	case HashMismatch:
		return "hash mismatch"
	case NoHandshake:
		return "no handshake"
	case Unverified:
		return "delivery not verified"
	default:
		return string(e.Kind)
	}
}

// Is allows errors.Is to compare ExchangeError values by Kind
func (e *ExchangeError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ExchangeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for exchange failures
var (
	ErrNoReply         = &ExchangeError{Kind: NoReply}
	ErrUnexpectedReply = &ExchangeError{Kind: UnexpectedReply}
	ErrMalformedReply  = &ExchangeError{Kind: MalformedReply}
	ErrHashMismatch    = &ExchangeError{Kind: HashMismatch}
	ErrNoHandshake     = &ExchangeError{Kind: NoHandshake}
	ErrUnverified      = &ExchangeError{Kind: Unverified}
)
