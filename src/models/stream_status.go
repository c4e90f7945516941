package models

import (
	"time"
)

// -----------------------------------------------------------------------------

// MStreamStatus represents the runtime status of the streaming connection.
// It aggregates information from the streamer, the subscription manager and
// the heartbeat monitor for the status API.
type MStreamStatus struct {
	State         string               `json:"state"`          // MConnectionState.String()
	Endpoint      string               `json:"endpoint"`       // Feed endpoint (credentials masked)
	ConnectionID  string               `json:"connection_id"`  // From feed heartbeat notifications, if any
	Subscriptions []MSubscription      `json:"subscriptions"`  // Active (symbol, category) pairs
	LastSeen      map[string]time.Time `json:"last_seen"`      // Per-symbol last tick wall-clock time
	BufferedTicks map[string]int       `json:"buffered_ticks"` // Per-symbol aggregator depth
}
