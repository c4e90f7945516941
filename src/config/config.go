package config

import (
	"fmt"
	"os"
	"time"

	"market-streamer/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills in zero-valued optional settings.
func (c *Config) applyDefaults() {
	if c.BufferCapacity == 0 {
		c.BufferCapacity = 1000
	}
	if c.Heartbeat.CheckIntervalSeconds == 0 {
		c.Heartbeat.CheckIntervalSeconds = 5
	}
	if c.Heartbeat.TimeoutSeconds == 0 {
		c.Heartbeat.TimeoutSeconds = 60
	}
	if c.Backoff.InitialDelaySeconds == 0 {
		c.Backoff.InitialDelaySeconds = 1
	}
	if c.Backoff.MaxDelaySeconds == 0 {
		c.Backoff.MaxDelaySeconds = 30
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = 2.0
	}
	if c.Feed != nil {
		if c.Feed.HandshakeTimeoutSeconds == 0 {
			c.Feed.HandshakeTimeoutSeconds = 10
		}
		if c.Feed.AttemptTimeoutSeconds == 0 {
			c.Feed.AttemptTimeoutSeconds = 15
		}
		if c.Feed.ReceiveBuffer == 0 {
			c.Feed.ReceiveBuffer = 1000
		}
		if c.Feed.Protocol == "" {
			c.Feed.Protocol = "pushfeed"
		}
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name cannot be empty")
	}

	// Validate application ports
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid application port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GRPC_Port != 0 && (c.GRPC_Port <= 1024 || c.GRPC_Port > 65535) {
		return fmt.Errorf("invalid gRPC port number: %d (must be between 1025 and 65535)", c.GRPC_Port)
	}

	// Validate feed configuration
	if c.Feed == nil {
		return fmt.Errorf("feed configuration is required")
	}
	if c.Feed.Endpoint == "" {
		return fmt.Errorf("feed endpoint cannot be empty")
	}

	// Heartbeat sanity: the check loop must run several times per timeout
	// window or a dead connection lingers a full extra interval.
	if c.Heartbeat.CheckIntervalSeconds >= c.Heartbeat.TimeoutSeconds {
		return fmt.Errorf("heartbeat check interval (%ds) must be shorter than the timeout (%ds)",
			c.Heartbeat.CheckIntervalSeconds, c.Heartbeat.TimeoutSeconds)
	}

	if c.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be >= 1.0, got %f", c.Backoff.Multiplier)
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		return fmt.Errorf("backoff jitter must be in [0,1], got %f", c.Backoff.Jitter)
	}

	// Validation of NATS config (minimal check)
	if c.NATS.Enabled {
		if len(c.NATS.Servers) == 0 {
			return fmt.Errorf("NATS servers list cannot be empty when NATS is enabled")
		}
		switch c.NATS.Serialization {
		case "", "json", "binary":
		default:
			return fmt.Errorf("unknown NATS serialization '%s' (want json or binary)", c.NATS.Serialization)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------
// Duration helpers (YAML carries plain seconds)
// -----------------------------------------------------------------------------

// HeartbeatCheckInterval returns how often the heartbeat monitor scans.
func (c *Config) HeartbeatCheckInterval() time.Duration {
	return time.Duration(c.Heartbeat.CheckIntervalSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// HeartbeatTimeout returns the per-symbol silence threshold.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Heartbeat.TimeoutSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// HandshakeTimeout returns the websocket dial timeout.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Feed.HandshakeTimeoutSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// AttemptTimeout bounds a single connect attempt so a hung dial cannot occupy
// the worker indefinitely.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Feed.AttemptTimeoutSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// BackoffInitialDelay returns the first reconnect delay.
func (c *Config) BackoffInitialDelay() time.Duration {
	return time.Duration(c.Backoff.InitialDelaySeconds) * time.Second
}

// -----------------------------------------------------------------------------

// BackoffMaxDelay returns the reconnect delay cap.
func (c *Config) BackoffMaxDelay() time.Duration {
	return time.Duration(c.Backoff.MaxDelaySeconds) * time.Second
}
