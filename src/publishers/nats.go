package publishers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"

	"github.com/nats-io/nats.go"
)

// -----------------------------------------------------------------------------
// NATSPublisher implements interfaces.IPublisher over NATS core or JetStream
// -----------------------------------------------------------------------------

type NATSPublisher struct {
	name   string
	config *models.MNATSConfig
	logger *logger.Logger

	useJetStream bool

	mu sync.RWMutex

	nc         *nats.Conn             // NATS core connection
	js         nats.JetStreamContext  // JetStream context (if enabled)
	serializer interfaces.ISerializer // serialize ticks before sending

	connected bool
}

// -----------------------------------------------------------------------------

// NewNATSPublisher creates a new NATS publisher instance
func NewNATSPublisher(config *models.MNATSConfig, logger *logger.Logger, serializer interfaces.ISerializer) interfaces.IPublisher {
	return &NATSPublisher{
		name:   config.ClientID,
		config: config,
		logger: logger,

		serializer: serializer,
	}
}

// -----------------------------------------------------------------------------

// OnTick is the registry callback where every normalized tick lands. It is
// fire-and-forget: serialization or publish failures are logged and the tick
// is dropped, never propagated back into the dispatch path.
func (np *NATSPublisher) OnTick(tick *models.MTickRecord) {
	subject := fmt.Sprintf("ticks.%s.%s", strings.ToLower(string(tick.Category)), subjectToken(tick.Symbol))

	data, err := np.serializer.Marshal(tick)
	if err != nil {
		np.logger.Error("%s : failed to serialize tick for %s: %v", np.name, subject, err)
		return
	}

	if np.useJetStream {
		err = np.PublishJetStream(subject, data)
	} else {
		err = np.Publish(subject, data)
	}

	if err != nil {
		np.logger.Error("%s : failed to publish %s tick for %s to NATS subject %s: %v",
			np.name, tick.Category, tick.Symbol, subject, err)
		return
	}
}

// -----------------------------------------------------------------------------

// Publish sends raw data to a NATS core subject (fire-and-forget).
func (np *NATSPublisher) Publish(subject string, data []byte) error {
	if !np.IsConnected() {
		return fmt.Errorf("nats client not connected")
	}
	return np.nc.Publish(np.getSubject(subject), data)
}

// -----------------------------------------------------------------------------

// PublishJetStream sends raw data using JetStream with delivery acknowledgement.
func (np *NATSPublisher) PublishJetStream(subject string, data []byte) error {
	if !np.IsConnected() {
		return fmt.Errorf("nats client not connected")
	}
	if np.js == nil {
		return fmt.Errorf("jetstream is not initialized or enabled")
	}

	fullSubject := np.getSubject(subject)

	_, err := np.js.Publish(fullSubject, data)
	if err != nil {
		np.logger.Error("%s : jetstream publish failed for %s: %v", np.name, fullSubject, err)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Connect establishes the NATS connection and sets up the JetStream context
// if configured.
func (np *NATSPublisher) Connect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc != nil && np.nc.IsConnected() {
		return nil
	}

	opts := []nats.Option{
		nats.Name(np.config.ClientID),
		nats.Timeout(time.Duration(np.config.ConnectTimeoutSeconds) * time.Second),
		nats.ReconnectWait(time.Duration(np.config.ReconnectWaitSeconds) * time.Second),
		nats.MaxReconnects(np.config.MaxReconnects),
		nats.FlusherTimeout(time.Duration(np.config.FlushTimeoutSeconds) * time.Second),

		// Connection Event Handlers
		nats.RetryOnFailedConnect(true),
		nats.ClosedHandler(func(nc *nats.Conn) {
			np.logger.Error("%s : NATS connection closed unexpectedly", np.name)
			np.setConnected(false)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			np.logger.Warning("%s : NATS disconnected, attempting reconnect: %v", np.name, err)
			np.setConnected(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			np.logger.Info("%s : NATS successfully reconnected to %s", np.name, nc.ConnectedUrl())
			np.setConnected(true)
		}),
	}

	var err error
	np.nc, err = nats.Connect(strings.Join(np.config.Servers, ","), opts...)
	if err != nil {
		return fmt.Errorf("nats connection failed: %w", err)
	}

	np.setConnected(true)
	np.logger.Info("%s : successfully connected to NATS at %s", np.name, np.nc.ConnectedUrl())

	if np.config.UseJetStream {
		np.useJetStream = true
		np.js, err = np.nc.JetStream()
		if err != nil {
			np.logger.Error("%s : failed to create JetStream context: %v", np.name, err)
			return fmt.Errorf("jetstream context creation failed: %w", err)
		}
		np.logger.Info("%s : publisher using NATS JetStream for persistent tick publishing", np.name)
	} else {
		np.useJetStream = false
		np.logger.Warning("%s : publisher using NATS Core (fire-and-forget), JetStream is disabled in config", np.name)
	}

	return nil
}

// -----------------------------------------------------------------------------

// Disconnect closes the NATS connection
func (np *NATSPublisher) Disconnect() error {
	np.mu.Lock()
	defer np.mu.Unlock()

	if np.nc == nil || np.nc.IsClosed() {
		return nil
	}

	np.nc.Close()
	np.setConnected(false)
	np.logger.Info("%s : NATS connection closed successfully", np.name)
	return nil
}

// -----------------------------------------------------------------------------

// IsConnected returns connection status
func (np *NATSPublisher) IsConnected() bool {
	np.mu.RLock()
	defer np.mu.RUnlock()
	return np.connected
}

// -----------------------------------------------------------------------------

// GetName returns client identifier
func (np *NATSPublisher) GetName() string {
	return np.name
}

// -----------------------------------------------------------------------------

// Flush waits for all published messages to reach the server (core NATS).
func (np *NATSPublisher) Flush() error {
	if !np.IsConnected() {
		return fmt.Errorf("cannot flush: nats client not connected")
	}
	return np.nc.Flush()
}

// -----------------------------------------------------------------------------

// setConnected updates the connection status. Called from NATS connection
// event handlers (different goroutines); callers hold np.mu or rely on the
// handlers running serially.
func (np *NATSPublisher) setConnected(status bool) {
	np.connected = status
}

// -----------------------------------------------------------------------------

// getSubject prepends the configured subject prefix if it exists.
func (np *NATSPublisher) getSubject(subject string) string {
	if np.config.SubjectPrefix != "" {
		return fmt.Sprintf("%s.%s", np.config.SubjectPrefix, subject)
	}
	return subject
}

// -----------------------------------------------------------------------------

// subjectToken makes a symbol safe as a NATS subject token. Option symbols
// carry spaces and dots, both of which break subject parsing.
func subjectToken(symbol string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '*', '>':
			return '_'
		default:
			return r
		}
	}, symbol)
}
