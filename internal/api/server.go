// Package api serves the hub's HTTP surface: liveness and status endpoints
// plus a websocket stream of connection and command events for dashboard
// clients.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/hub"
)

// Event is the envelope pushed to websocket clients.
type Event struct {
	Type     string `json:"type"` // "connection" or "command"
	DeviceID string `json:"device_id,omitempty"`
	State    string `json:"state,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Command  string `json:"command,omitempty"`
}

// StatusResponse is the payload of GET /status.
type StatusResponse struct {
	Radio          string `json:"radio"`
	ConnectedID    string `json:"connected_device_id"`
	CurrentCommand string `json:"current_command"`
	Clients        int    `json:"ws_clients"`
}

// Server bridges the hub to HTTP and websocket consumers.
type Server struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewServer builds a server over the given hub.
func NewServer(h *hub.Hub) *Server {
	return &Server{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Run forwards hub events to connected websocket clients until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) {
	go func() {
		events := s.hub.Events()
		commands := s.hub.CommandUpdates()
		for {
			select {
			case ev := <-events:
				s.broadcast(Event{
					Type:     "connection",
					DeviceID: ev.DeviceID,
					State:    ev.State.String(),
					Reason:   ev.Reason,
				})
			case cmd := <-commands:
				s.broadcast(Event{
					Type:    "command",
					Command: string(cmd),
				})
			case <-ctx.Done():
				s.closeClients()
				return
			}
		}
	}()
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ClientCount reports how many websocket clients are registered.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonError(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "NASA IoT Hub backend",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	json.NewEncoder(w).Encode(StatusResponse{
		Radio:          s.hub.Status().String(),
		ConnectedID:    s.hub.ConnectedDeviceID(),
		CurrentCommand: string(s.hub.CurrentCommand()),
		Clients:        s.ClientCount(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[API] websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	slog.Info("[API] websocket client connected", "clients", n)

	// Reader loop exists only to detect disconnects; clients don't send
	// anything we act on.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteJSON(ev); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	conn.Close()
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	n := len(s.clients)
	s.mu.Unlock()
	if ok {
		slog.Info("[API] websocket client disconnected", "clients", n)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
