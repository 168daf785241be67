// Package adminhttp exposes a read-only operator surface over stdlib
// net/http. spec.md §1 names the admin surface an external,
// interface-only collaborator, so no router library is introduced here:
// three handlers (health, stats, room list) are enough and a mux library
// would add nothing a single http.ServeMux can't already do.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wqdsca/policethief-go/internal/room"
)

// StatsProvider reports a snapshot of server-wide counters.
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Server is the admin HTTP surface.
type Server struct {
	stats  StatsProvider
	fabric *room.Fabric
	http   *http.Server
}

// New builds a Server bound to addr. stats and fabric back the /stats and
// /rooms endpoints respectively.
func New(addr string, stats StatsProvider, fabric *room.Fabric) *Server {
	s := &Server{stats: stats, fabric: fabric}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", withRequestID(s.handleHealth))
	mux.HandleFunc("/stats", withRequestID(s.handleStats))
	mux.HandleFunc("/rooms", withRequestID(s.handleRooms))
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts serving until the process is stopped or Shutdown
// is called.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fabric.ListRooms())
}

// withRequestID tags every response with a fresh correlation id, so an
// operator grepping logs or a proxy in front of this surface can line up
// one admin request across the server's own log lines.
func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.NewString())
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
