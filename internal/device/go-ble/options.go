package goble

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

const (
	// DefaultMTU is the ATT MTU assumed until a larger one is negotiated.
	DefaultMTU = 23

	// attHeaderSize is the per-write ATT overhead subtracted from the MTU.
	attHeaderSize = 3

	// DefaultBLEWriteChunkSize is the payload size that fits the default MTU.
	DefaultBLEWriteChunkSize = DefaultMTU - attHeaderSize
)

// SessionOptions configures a Session.
type SessionOptions struct {
	ConnectTimeout time.Duration `default:"30s"`
	// WriteTimeout bounds acknowledged writes; late confirmations are discarded.
	WriteTimeout time.Duration `default:"10s"`
	// MTU is requested right after the link is established.
	MTU int `default:"247"`
	// ChunkDelay separates consecutive chunks of one oversized write.
	ChunkDelay time.Duration `default:"10ms"`
	// Persistent keeps the link between operations. When false the link is
	// released after every write and the session closes on link loss.
	Persistent  bool   `default:"true"`
	BacklogSize uint32 `default:"64"`

	ServiceUUID string `default:"6E400001-B5A3-F393-E0A9-E50E24DCCA9E"`
	WriteUUID   string `default:"6E400002-B5A3-F393-E0A9-E50E24DCCA9E"`
	NotifyUUID  string `default:"6E400003-B5A3-F393-E0A9-E50E24DCCA9E"`

	// AppendNewline is consulted on every write; a true result appends "\n".
	AppendNewline func() bool
	// BeforeConnect runs before dialing, e.g. to pause passive discovery.
	BeforeConnect func()
	// OnStateChange runs on the session loop after every transition. It must not
	// block or call back into the session.
	OnStateChange func(State)
}

// DefaultSessionOptions returns options populated from their default tags.
func DefaultSessionOptions() SessionOptions {
	opts := SessionOptions{}
	defaults.SetDefaults(&opts)
	return opts
}

// WriteOptions tunes a single write.
type WriteOptions struct {
	// ForceNoResponse selects an unacknowledged write when the characteristic allows it.
	ForceNoResponse bool
}
