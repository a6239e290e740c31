// Package web provides the HTTP control surface for the exoskeleton:
// classifier trigger intake, session status, cancellation, and a live
// progress websocket.
package web

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/243135-tech/lego-robotics/internal/log"
	"github.com/243135-tech/lego-robotics/pkg/hub"
)

// SessionState is the status snapshot served to clients.
type SessionState struct {
	Running      bool    `json:"running"`
	SessionID    string  `json:"session_id,omitempty"`
	Mode         string  `json:"mode,omitempty"`
	TrialID      string  `json:"trial_id,omitempty"`
	Rep          int     `json:"rep"`
	TotalReps    int     `json:"total_reps"`
	LastLabel    string  `json:"last_label,omitempty"`
	LastScore    float64 `json:"last_score"`
	BatteryVolts float64 `json:"battery_volts,omitempty"`
}

// Server is the exoskeleton control server.
type Server struct {
	app  *fiber.App
	port string

	// State
	state   SessionState
	stateMu sync.RWMutex

	// Hub for websocket broadcast (thread-safe!)
	progressHub *hub.Hub

	// OnTrigger starts a session for a classifier prediction. It must
	// return quickly; the session runs elsewhere.
	OnTrigger func(class string, conf float64, trialID string) error

	// OnCancel requests a stop of the running session.
	OnCancel func() error
}

// NewServer creates the control server listening on port.
func NewServer(port string) *Server {
	s := &Server{
		port:        port,
		progressHub: hub.New("progress"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Exo Control",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/trigger", s.handleTrigger)
	api.Post("/cancel", s.handleCancel)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/progress", websocket.New(s.handleProgressWS))

	s.app = app
	return s
}

// Start runs the hub and listens. It blocks.
func (s *Server) Start() error {
	log.Info("control server listening", "port", s.port)
	go s.progressHub.Run()
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("control server stopped", "error", err)
		}
	}()
}

// UpdateState mutates the status snapshot and pushes it to monitors.
func (s *Server) UpdateState(update func(*SessionState)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state // Copy for broadcast
	s.stateMu.Unlock()

	if err := s.progressHub.Broadcast(hub.Event{Type: "status", Data: state}); err != nil {
		log.Warn("status broadcast failed", "error", err)
	}
}

// BroadcastEvent pushes a typed event to every connected monitor.
func (s *Server) BroadcastEvent(kind string, data any) {
	if err := s.progressHub.Broadcast(hub.Event{Type: kind, Data: data}); err != nil {
		log.Warn("event broadcast failed", "type", kind, "error", err)
	}
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
