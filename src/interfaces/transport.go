package interfaces

import (
	"context"

	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------

// ITransport is the capability interface every feed connection must satisfy.
// Concrete feed clients are wrapped into this shape exactly once, at
// connection setup, by transports.NewAdapter; nothing probes method names per
// message.
type ITransport interface {
	// Connect dials the feed. Credential problems are returned here and are
	// fatal to the attempt; the caller decides whether to retry.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Safe to call twice.
	Disconnect() error

	// IsRunning returns the connection status
	IsRunning() bool

	// GetName returns the transport name
	GetName() string

	// GetType returns the transport type (e.g. "websocket")
	GetType() string

	// Subscribe issues the per-category subscribe primitive for the symbols.
	Subscribe(category models.MCategory, symbols []string) error

	// Unsubscribe issues the per-category unsubscribe primitive.
	Unsubscribe(category models.MCategory, symbols []string) error

	// Receive runs the blocking receive loop, delivering each raw message to
	// the callback installed at construction. It returns when the context is
	// cancelled, Disconnect is called, or the connection dies. Cancellation
	// must unblock a pending read promptly.
	Receive(ctx context.Context)
}
