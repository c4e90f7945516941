package transports

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/utils"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------

// WebSocketTransport implements interfaces.ITransport using Gorilla WebSocket.
// It owns exactly one connection; reconnection policy lives in the streamer
// worker, not here.
type WebSocketTransport struct {
	name             string
	endpoint         string
	header           http.Header
	handshakeTimeout time.Duration
	codec            interfaces.IFeedCodec
	logger           *logger.Logger
	onRawData        func([]byte)

	mu        sync.RWMutex
	writeMu   sync.Mutex // gorilla allows one concurrent writer
	conn      *websocket.Conn
	isRunning bool
}

// -----------------------------------------------------------------------------

// NewWebSocketTransport creates a WebSocket transport. onRawData receives
// every text frame from the receive loop.
func NewWebSocketTransport(
	name string,
	endpoint string,
	header http.Header,
	handshakeTimeout time.Duration,
	codec interfaces.IFeedCodec,
	logger *logger.Logger,
	onRawData func([]byte),
) *WebSocketTransport {
	return &WebSocketTransport{
		name:             name,
		endpoint:         endpoint,
		header:           header,
		handshakeTimeout: handshakeTimeout,
		codec:            codec,
		logger:           logger,
		onRawData:        onRawData,
	}
}

// -----------------------------------------------------------------------------

// Connect establishes the WebSocket connection. The context bounds the
// attempt; a hung dial is abandoned when it expires.
func (w *WebSocketTransport) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: w.handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, w.endpoint, w.header)
	if err != nil {
		w.logger.Error("%s : failed to connect to %s: %v", w.name, utils.MaskAPIKey(w.endpoint), err)
		return fmt.Errorf("failed to connect to %s: %w", utils.MaskAPIKey(w.endpoint), err)
	}

	w.conn = conn
	w.isRunning = true

	w.logger.Info("%s : WebSocket connected to %s", w.name, utils.MaskAPIKey(w.endpoint))
	return nil
}

// -----------------------------------------------------------------------------

// Disconnect closes the connection. Safe to call twice.
func (w *WebSocketTransport) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isRunning {
		return nil
	}
	w.isRunning = false

	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		if err != nil {
			return fmt.Errorf("failed to close connection to %s: %w", utils.MaskAPIKey(w.endpoint), err)
		}
	}

	w.logger.Info("%s : WebSocket disconnected from %s", w.name, utils.MaskAPIKey(w.endpoint))
	return nil
}

// -----------------------------------------------------------------------------

// GetName returns the transport name
func (w *WebSocketTransport) GetName() string {
	return w.name
}

// -----------------------------------------------------------------------------

// GetType returns the transport type
func (w *WebSocketTransport) GetType() string {
	return "websocket"
}

// -----------------------------------------------------------------------------

// IsRunning returns the connection status
func (w *WebSocketTransport) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isRunning
}

// -----------------------------------------------------------------------------

// Subscribe sends the codec-built subscribe request for the symbols.
func (w *WebSocketTransport) Subscribe(category models.MCategory, symbols []string) error {
	msg, err := w.codec.AddSubscription(category, symbols)
	if err != nil {
		return err
	}
	return w.sendMessage(msg)
}

// -----------------------------------------------------------------------------

// Unsubscribe sends the codec-built unsubscribe request for the symbols.
func (w *WebSocketTransport) Unsubscribe(category models.MCategory, symbols []string) error {
	msg, err := w.codec.RemoveSubscription(category, symbols)
	if err != nil {
		return err
	}
	return w.sendMessage(msg)
}

// -----------------------------------------------------------------------------

// Receive runs the blocking read loop, delivering every text frame to the
// onRawData callback. It returns when the context is cancelled, Disconnect
// is called, or the connection dies. Cancellation closes the connection so a
// pending ReadMessage unblocks promptly instead of waiting for feed traffic.
func (w *WebSocketTransport) Receive(ctx context.Context) {
	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil {
		return
	}

	// Close the connection when the context goes away to unblock the read.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			w.Disconnect()
		case <-watcherDone:
		}
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || !w.IsRunning() {
				// Shutdown path, not a failure.
				return
			}
			w.logger.Error("%s : read message error: %v", w.name, err)
			w.Disconnect()
			return
		}

		if messageType == websocket.TextMessage {
			w.onRawData(message)
		}
	}
}

// -----------------------------------------------------------------------------

// sendMessage writes one text frame.
func (w *WebSocketTransport) sendMessage(data []byte) error {
	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
