package server

import (
	"sync"
	"time"

	"market-streamer/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	hub  *APIServer
	conn *websocket.Conn
	send chan *models.MTickRecord

	// watch narrows the stream to these symbols; nil means all.
	watchMu sync.RWMutex
	watch   map[string]struct{}
}

// -----------------------------------------------------------------------------

// setWatch replaces the client's symbol filter. An empty list clears it.
func (c *Client) setWatch(symbols []string) {
	var watch map[string]struct{}
	if len(symbols) > 0 {
		watch = make(map[string]struct{}, len(symbols))
		for _, symbol := range symbols {
			watch[symbol] = struct{}{}
		}
	}
	c.watchMu.Lock()
	c.watch = watch
	c.watchMu.Unlock()
}

// -----------------------------------------------------------------------------

// wants reports whether the client's filter admits the symbol.
func (c *Client) wants(symbol string) bool {
	c.watchMu.RLock()
	defer c.watchMu.RUnlock()
	if c.watch == nil {
		return true
	}
	_, ok := c.watch[symbol]
	return ok
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Acts as a watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.hub.Logger.Info("%s : client disconnected", c.hub.Name)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("%s : websocket error: %v", c.hub.Name, err)
			}
			break
		}
		// Handle the message (watch commands)
		c.hub.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends ticks to the client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case tick, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(tick); err != nil {
				c.hub.Logger.Info("%s : write error: %v", c.hub.Name, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
