package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Fan-out clients are unauthenticated and may come from any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the hub over /ws plus a /health probe
type Server struct {
	hub  *Hub
	http *http.Server
}

// NewServer builds the fan-out HTTP server on the given port
func NewServer(port int, hub *Hub) *Server {
	s := &Server{hub: hub}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWS)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Hub returns the server's hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves until Shutdown. It blocks; run it in a
// goroutine. A bind failure is returned immediately and is fatal for the
// realtime daemon.
func (s *Server) Start() error {
	log.Printf("[Fanout] listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("fanout listen on %s: %w", s.http.Addr, err)
	}
	return nil
}

// Shutdown closes all client sockets and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Fanout] upgrade failed: %v", err)
		return
	}
	c := s.hub.add(conn)
	go s.hub.serve(c)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
