package interfaces

import "market-streamer/src/models"

// -----------------------------------------------------------------------------

// IPublisher defines the interface for publishing normalized ticks downstream
type IPublisher interface {
	// OnTick processes and publishes one normalized tick. It is invoked from
	// the streamer worker via the handler registry and must not block.
	OnTick(tick *models.MTickRecord)

	// Connect establishes connection to the message broker
	Connect() error

	// Disconnect closes the connection to the message broker
	Disconnect() error

	// IsConnected returns the current connection status
	IsConnected() bool
}
