package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/bastion/server/internal/session"
	"github.com/bastion/server/internal/supervisor"
)

// HealthReporter supplies the liveness view served on the health endpoint.
type HealthReporter interface {
	Health() []supervisor.ServerHealth
}

// Server exposes the spectator endpoints: the websocket upgrade and a small
// JSON view of the managed servers.
type Server struct {
	hub      *Hub
	registry *session.Registry
	health   HealthReporter
}

func NewServer(hub *Hub, registry *session.Registry) *Server {
	return &Server{hub: hub, registry: registry}
}

// SetHealthReporter wires the process liveness source for /api/health.
func (s *Server) SetHealthReporter(h HealthReporter) {
	s.health = h
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/servers", s.handleServers)
	mux.HandleFunc("/api/health", s.handleHealth)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	// Spectator connections are unauthenticated; any origin may watch.
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("spectator connected: %s", r.RemoteAddr)
	c := s.hub.AddClient(conn)

	go func() {
		defer func() {
			s.hub.RemoveClient(c)
			log.Printf("spectator disconnected: %s", r.RemoteAddr)
		}()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.hub.HandleInbound(c, msg)
		}
	}()
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.registry.Snapshots())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.health == nil {
		json.NewEncoder(w).Encode([]supervisor.ServerHealth{})
		return
	}
	json.NewEncoder(w).Encode(s.health.Health())
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("spectator transport listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
