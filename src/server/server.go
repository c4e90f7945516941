package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"market-streamer/src/config"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/streamer"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

// APIServer exposes the dashboard surface: a small REST API over the
// streaming service plus a WebSocket tick firehose (see hub.go).
type APIServer struct {
	Name     string
	Config   *config.Config
	Logger   *logger.Logger
	Streamer *streamer.Streamer

	engine     *gin.Engine
	httpServer *http.Server

	// WebSocket clients; the map belongs to the hub goroutine, the counter is
	// readable from request handlers.
	clients     map[*Client]struct{}
	clientCount int64
	broadcast   chan *models.MTickRecord // Strongly typed and buffered queue
	register    chan *Client
	unregister  chan *Client

	// Closed by Stop; the hub exits and later ticks are dropped. The channels
	// above are never closed so in-flight OnTick calls stay safe.
	done     chan struct{}
	stopOnce sync.Once
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *config.Config, logger *logger.Logger, str *streamer.Streamer) *APIServer {
	// Set Gin mode
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Name:     "APIServer",
		Config:   cfg,
		Logger:   logger,
		Streamer: str,
		engine:   gin.Default(),
		clients:  make(map[*Client]struct{}),
		// Buffered channel so a burst of ticks never blocks the dispatch path
		broadcast:  make(chan *models.MTickRecord, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.engine,
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/status", s.getStatus)
	s.engine.GET("/api/snapshot", s.getSnapshot)
	s.engine.GET("/api/health", s.getHealth)
	s.engine.POST("/api/subscribe", s.postSubscribe)
	s.engine.POST("/api/unsubscribe", s.postUnsubscribe)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	s.Logger.Info("%s : starting on %s", s.Name, s.httpServer.Addr)

	go s.runHub()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts the HTTP listener down gracefully and terminates the hub loop.
// Re-entrant; ticks arriving after Stop are dropped.
func (s *APIServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.Logger.Info("%s : stopping", s.Name)
		close(s.done)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Streamer.Status())
}

// -----------------------------------------------------------------------------

// getSnapshot returns the buffered ticks for ?symbols=AAPL,MSFT, or for every
// buffered symbol when the parameter is absent.
func (s *APIServer) getSnapshot(c *gin.Context) {
	var symbols []string
	if raw := c.Query("symbols"); raw != "" {
		symbols = strings.Split(raw, ",")
	}
	c.JSON(http.StatusOK, s.Streamer.Snapshot(symbols))
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"state":       s.Streamer.State().String(),
		"connections": atomic.LoadInt64(&s.clientCount),
	})
}

// -----------------------------------------------------------------------------

type subscribeRequest struct {
	Symbols    []string `json:"symbols" binding:"required"`
	Categories []string `json:"categories"`
}

func (s *APIServer) postSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	categories := make([]models.MCategory, 0, len(req.Categories))
	for _, name := range req.Categories {
		switch strings.ToUpper(name) {
		case string(models.CategoryQuote):
			categories = append(categories, models.CategoryQuote)
		case string(models.CategoryOption):
			categories = append(categories, models.CategoryOption)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown category %q", name)})
			return
		}
	}

	if err := s.Streamer.Subscribe(req.Symbols, categories); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": s.Streamer.Subscriptions.Count()})
}

// -----------------------------------------------------------------------------

type unsubscribeRequest struct {
	Symbols []string `json:"symbols" binding:"required"`
}

func (s *APIServer) postUnsubscribe(c *gin.Context) {
	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Streamer.Unsubscribe(req.Symbols); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": s.Streamer.Subscriptions.Count()})
}
