// Package supervisor implements Component D of SPEC_FULL.md: it owns the
// lifecycle of the Router, the Gateway Session, and the optional admin HTTP
// surface, and wires the Session's dispatched events into the Router.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rubiojr/discord-bridge/internal/admin"
	"github.com/rubiojr/discord-bridge/internal/config"
	"github.com/rubiojr/discord-bridge/internal/forwarder"
	"github.com/rubiojr/discord-bridge/internal/gateway"
	"github.com/rubiojr/discord-bridge/internal/log"
	"github.com/rubiojr/discord-bridge/internal/router"
)

var logger = log.ForService("supervisor")

// ConnState is the Supervisor's coarse lifecycle state reported by the
// admin snapshot (SPEC_FULL.md §3 addition); it does not track the Gateway
// connection itself.
type ConnState string

const (
	StateIdle    ConnState = "idle"
	StateRunning ConnState = "running"
	StateStopped ConnState = "stopped"
)

// Supervisor starts and stops the bridge's components in the order
// SPEC_FULL.md §4.D requires: Router, then admin HTTP (reads Router/Session
// state only, so it is safe to bring up right after Router and tear down
// before it), then the Gateway Session last since it is the first thing to
// start producing events. Shutdown reverses this.
type Supervisor struct {
	cfg *config.Config

	router *router.Router
	sess   *gateway.Session
	admin  *admin.Server

	startedAt time.Time

	mu    sync.RWMutex
	state ConnState

	cancel context.CancelFunc
}

// Option customizes a Supervisor at construction time. The only current use
// is overriding the Gateway dial URL in tests; production always dials the
// real Discord Gateway endpoint.
type Option func(*gateway.Config)

// WithGatewayURL overrides the Gateway Session's dial URL.
func WithGatewayURL(url string) Option {
	return func(c *gateway.Config) { c.GatewayURL = url }
}

// New builds a Supervisor from a loaded, validated configuration.
func New(cfg *config.Config, opts ...Option) *Supervisor {
	fwdCfg := forwarder.Config{
		Timeout:       time.Duration(cfg.HTTP.Timeout) * time.Second,
		RetryAttempts: cfg.HTTP.RetryAttempts,
		RetryDelay:    time.Duration(cfg.HTTP.RetryDelay) * time.Second,
	}
	r := router.New(cfg.Routes, fwdCfg)

	s := &Supervisor{cfg: cfg, router: r, state: StateIdle}

	gwCfg := gateway.Config{
		Token:      cfg.Discord.Token,
		Intents:    cfg.Discord.Intents,
		OnDispatch: r.HandleEvent,
	}
	for _, opt := range opts {
		opt(&gwCfg)
	}
	s.sess = gateway.New(gwCfg)

	if cfg.Admin.ListenAddr != "" {
		s.admin = admin.New(cfg.Admin.ListenAddr, s)
	}

	return s
}

// Run starts every component and blocks until ctx is cancelled, then stops
// everything in reverse order.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.startedAt = time.Now()
	s.state = StateRunning
	s.mu.Unlock()

	s.router.Start()

	if s.admin != nil {
		if err := s.admin.Start(); err != nil {
			logger.Errorf("admin HTTP surface failed to start: %v", err)
		}
	}

	sessDone := make(chan error, 1)
	go func() { sessDone <- s.sess.Start(runCtx) }()

	logger.Infof("discord-bridge started")

	select {
	case <-runCtx.Done():
	case err := <-sessDone:
		logger.Errorf("gateway session exited unexpectedly: %v", err)
	}

	s.Stop()
	<-sessDone
	return nil
}

// Stop tears components down in the order opposite to Run's startup.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	cancel := s.cancel
	s.mu.Unlock()

	s.sess.Stop()
	if cancel != nil {
		cancel()
	}

	if s.admin != nil {
		s.admin.Stop()
	}

	s.router.Stop()
	logger.Infof("discord-bridge stopped")
}

// ReloadRoutes atomically swaps the Router's route table, used by the
// SIGHUP/fsnotify hot-reload path in cmd/run.go (SPEC_FULL.md §6.4).
func (s *Supervisor) ReloadRoutes(routes []config.Route) {
	s.router.SetRoutes(routes)
	logger.Infof("route table reloaded: %d route(s)", len(routes))
}

// Snapshot implements admin.StateProvider, returning the admin snapshot
// document described in SPEC_FULL.md §3.
func (s *Supervisor) Snapshot() admin.Snapshot {
	s.mu.RLock()
	state := s.state
	startedAt := s.startedAt
	s.mu.RUnlock()

	var uptime time.Duration
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	return admin.Snapshot{
		State:           string(state),
		UptimeSeconds:   uptime.Seconds(),
		SessionRunning:  s.sess.Running(),
		Stats:           s.router.Stats(),
	}
}
