package protocol

import (
	"context"

	goble "github.com/srg/keylink/internal/device/go-ble"
	"github.com/srg/keylink/internal/mailbox"
)

// Link is the session surface the protocols run over.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Write(ctx context.Context, data []byte, opts goble.WriteOptions) error
	NotificationsEnabled() bool
	Mailbox() *mailbox.Mailbox
}

// LayoutStore persists the layout token announced by the peripheral.
type LayoutStore interface {
	SetKeyboardLayout(layout string) error
}

var _ Link = (*goble.Session)(nil)
