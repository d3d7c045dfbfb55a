// Package admin implements the read-only admin HTTP surface of
// SPEC_FULL.md §6.5: healthz, stats, and snapshot endpoints, plain
// net/http with no web framework, grounded on the teacher's
// pkg/api/server.go and pkg/api/routes.go.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/rubiojr/discord-bridge/internal/log"
	"github.com/rubiojr/discord-bridge/internal/router"
)

var logger = log.ForService("admin")

// Snapshot is the read-only process snapshot document of SPEC_FULL.md §3.
type Snapshot struct {
	State          string        `json:"state"`
	UptimeSeconds  float64       `json:"uptime_seconds"`
	SessionRunning bool          `json:"session_running"`
	Stats          router.Stats  `json:"stats"`
}

// StateProvider is implemented by the Supervisor; it is the only thing the
// admin server depends on, keeping this package ignorant of Router/Session
// internals beyond the Snapshot shape.
type StateProvider interface {
	Snapshot() Snapshot
}

// Server is the admin HTTP listener. It is only constructed when
// admin.listen_addr is configured.
type Server struct {
	addr     string
	provider StateProvider
	srv      *http.Server
	started  bool
}

// New builds a Server bound to addr, reading state from provider.
func New(addr string, provider StateProvider) *Server {
	mux := http.NewServeMux()
	s := &Server{addr: addr, provider: provider}

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/snapshot", s.handleSnapshot)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins listening in a background goroutine. A listen error after
// startup is logged; Start itself only reports an immediate bind failure.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.started = true
	logger.Infof("admin HTTP surface listening on %s", s.addr)
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Errorf("admin HTTP surface stopped: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the admin server down, if it was started.
func (s *Server) Stop() {
	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		logger.Warnf("admin HTTP surface shutdown: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("encoding response: %v", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.provider.Snapshot().Stats)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.provider.Snapshot())
}
