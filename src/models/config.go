package models

// -----------------------------------------------------------------------------
// Configuration structs (loaded from YAML by src/config)
// -----------------------------------------------------------------------------

// MConfig is the root application configuration.
type MConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`

	// HTTP API (dashboard surface)
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// gRPC control plane (health)
	GRPC_Host string `yaml:"grpc_host"`
	GRPC_Port int    `yaml:"grpc_port"`

	Feed      *MFeedConfig     `yaml:"feed"`
	Heartbeat MHeartbeatConfig `yaml:"heartbeat"`
	Backoff   MBackoffConfig   `yaml:"backoff"`

	// Per-symbol tick buffer capacity (FIFO eviction beyond this)
	BufferCapacity int `yaml:"buffer_capacity"`

	// Field alias overrides, merged over the built-in table. Key is the
	// canonical field name, value is the ordered list of wire names to try.
	Aliases map[string][]string `yaml:"aliases"`

	NATS MNATSConfig `yaml:"nats"`
}

// -----------------------------------------------------------------------------

// MFeedConfig describes the upstream push feed connection.
type MFeedConfig struct {
	Protocol                string `yaml:"protocol"` // feed codec name, e.g. "pushfeed"
	Endpoint                string `yaml:"endpoint"`
	HandshakeTimeoutSeconds int    `yaml:"handshake_timeout_seconds"`
	AttemptTimeoutSeconds   int    `yaml:"attempt_timeout_seconds"` // bound on a single connect attempt
	ReceiveBuffer           int    `yaml:"receive_buffer"`          // raw message channel depth
}

// -----------------------------------------------------------------------------

// MHeartbeatConfig controls silent-connection detection.
type MHeartbeatConfig struct {
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	TimeoutSeconds       int `yaml:"timeout_seconds"`
}

// -----------------------------------------------------------------------------

// MBackoffConfig controls reconnect pacing.
type MBackoffConfig struct {
	InitialDelaySeconds int     `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int     `yaml:"max_delay_seconds"`
	Multiplier          float64 `yaml:"multiplier"`
	Jitter              float64 `yaml:"jitter"` // randomization factor, 0 disables
}

// -----------------------------------------------------------------------------

// MNATSConfig describes the optional downstream NATS publisher.
type MNATSConfig struct {
	Enabled               bool     `yaml:"enabled"`
	Servers               []string `yaml:"servers"`
	ClientID              string   `yaml:"client_id"`
	SubjectPrefix         string   `yaml:"subject_prefix"`
	UseJetStream          bool     `yaml:"use_jetstream"`
	Serialization         string   `yaml:"serialization"` // "json" or "binary"
	ConnectTimeoutSeconds int      `yaml:"connect_timeout_seconds"`
	ReconnectWaitSeconds  int      `yaml:"reconnect_wait_seconds"`
	FlushTimeoutSeconds   int      `yaml:"flush_timeout_seconds"`
	MaxReconnects         int      `yaml:"max_reconnects"`
}
