package models

// -----------------------------------------------------------------------------

// MConnectionState is the lifecycle state of the one streaming connection.
// Transitions: Disconnected -> Connecting -> Connected <-> Degraded ->
// Reconnecting -> Connected | Stopped.
type MConnectionState int32

const (
	StateDisconnected MConnectionState = iota
	StateConnecting
	StateConnected
	StateDegraded
	StateReconnecting
	StateStopped
)

// -----------------------------------------------------------------------------

// String returns a human readable state name for logging and the status API.
func (s MConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDegraded:
		return "DEGRADED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}
