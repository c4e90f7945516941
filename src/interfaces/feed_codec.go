package interfaces

import (
	"market-streamer/src/logger"
	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------

// IFeedCodecConstructor defines the function signature for creating a new
// IFeedCodec instance. Codecs self-register under a protocol name.
type IFeedCodecConstructor func(config *models.MFeedConfig, logger *logger.Logger) (IFeedCodec, error)

// -----------------------------------------------------------------------------

// IFeedCodec builds the wire envelopes of one push-feed dialect. A codec is
// pure message construction; it never touches the network.
type IFeedCodec interface {
	// GetName returns the protocol name the codec registered under
	GetName() string

	// ServiceName maps a tick category to the feed's service identifier
	ServiceName(category models.MCategory) string

	// AddSubscription builds the subscribe request for the symbols
	AddSubscription(category models.MCategory, symbols []string) ([]byte, error)

	// RemoveSubscription builds the unsubscribe request for the symbols
	RemoveSubscription(category models.MCategory, symbols []string) ([]byte, error)
}
