// Package statusserver serves a campaign's live stats over HTTP and a
// broadcast websocket. Grounded on internal/web/server.go's
// fiber+websocket client-set/broadcast-channel shape, polling a
// supervisor snapshot on a timer instead of an owasp.Detector scan.
package statusserver

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/fluxfuzz/fluxfuzz/pkg/fuzztypes"
)

// StatsSource is anything the server can poll for a campaign snapshot;
// satisfied by *supervisor.Supervisor.
type StatsSource interface {
	Snapshot() fuzztypes.SupervisorStats
}

// Server exposes GET /api/stats and a broadcast GET /ws, mirroring the
// teacher's dashboard server's two surfaces.
type Server struct {
	app       *fiber.App
	source    StatsSource
	logger    *slog.Logger
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan []byte
	stop      chan struct{}
}

// New builds a Server that polls source every second and pushes
// updates to connected websocket clients.
func New(source StatsSource) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s := &Server{
		app:       app,
		source:    source,
		logger:    slog.Default().With(slog.String("component", "statusserver")),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 100),
		stop:      make(chan struct{}),
	}
	s.setupRoutes()
	go s.handleBroadcast()
	go s.pollLoop()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(cors.New())

	s.app.Get("/api/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.source.Snapshot())
	})

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		c.Close()
	}()

	data, _ := json.Marshal(s.source.Snapshot())
	c.WriteMessage(websocket.TextMessage, data)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleBroadcast() {
	for msg := range s.broadcast {
		s.clientsMu.Lock()
		for client := range s.clients {
			if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
				client.Close()
				delete(s.clients, client)
			}
		}
		s.clientsMu.Unlock()
	}
}

func (s *Server) pollLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			data, err := json.Marshal(s.source.Snapshot())
			if err != nil {
				continue
			}
			select {
			case s.broadcast <- data:
			default:
				// a slow consumer shouldn't stall the poll loop
			}
		}
	}
}

// Listen starts the HTTP server on addr, blocking until it stops.
func (s *Server) Listen(addr string) error {
	s.logger.Info("status server listening", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops the poll loop and the HTTP server.
func (s *Server) Shutdown() error {
	close(s.stop)
	return s.app.Shutdown()
}
