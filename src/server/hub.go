package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"market-streamer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub is the main hub loop. It is the only goroutine touching s.clients.
func (s *APIServer) runHub() {
	for {
		select {
		case <-s.done:
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
				atomic.AddInt64(&s.clientCount, -1)
			}
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			atomic.AddInt64(&s.clientCount, 1)

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
				atomic.AddInt64(&s.clientCount, -1)
			}

		case tick := <-s.broadcast:
			for client := range s.clients {
				if !client.wants(tick.Symbol) {
					continue
				}
				select {
				case client.send <- tick:
				default:
					// Client too slow, disconnect to prevent hub blocking.
					delete(s.clients, client)
					close(client.send)
					atomic.AddInt64(&s.clientCount, -1)
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

// OnTick is registered on the handler registry for every category; it feeds
// the hub. Non-blocking: if the broadcast queue is full the tick is dropped
// for WebSocket viewers (the aggregator still has it).
func (s *APIServer) OnTick(tick *models.MTickRecord) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.broadcast <- tick:
	default:
		s.Logger.Warning("%s : broadcast queue full, dropping tick for %s", s.Name, tick.Symbol)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warning("%s : failed to upgrade websocket: %v", s.Name, err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the hub loop
		send: make(chan *models.MTickRecord, 256),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

type clientCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}

// HandleClientMessage processes a command frame from a WebSocket client. The
// only command is "watch": it narrows the client's tick stream to the given
// symbols (empty list = everything).
func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Warning("%s : failed to parse client command: %v, disconnecting client", s.Name, err)
		client.conn.Close()
		return
	}

	if cmd.Command != "watch" {
		return
	}
	client.setWatch(cmd.Symbols)
}
