// Package gateway implements Component C of SPEC_FULL.md: a single Discord
// Gateway session. It dials the websocket endpoint, performs the
// HELLO/IDENTIFY-or-RESUME handshake, keeps a heartbeat pacemaker alive, and
// dispatches decoded events to a caller-supplied handler, reconnecting with
// backoff whenever the connection drops.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/discord-bridge/internal/gateway/heart"
	"github.com/rubiojr/discord-bridge/internal/log"
)

var logger = log.ForService("gateway")

// DispatchHandler processes one decoded DISPATCH event. It must not block
// longer than necessary: the read loop waits for it to return before
// reading the next frame (SPEC_FULL.md §5).
type DispatchHandler func(ctx context.Context, eventType string, data json.RawMessage)

// Config configures a Session.
type Config struct {
	Token   string
	Intents int

	// GatewayURL is the initial endpoint to dial. Defaults to
	// DefaultGatewayURL when empty.
	GatewayURL string

	// ReconnectDelay is the pause before re-dialing after any disconnect.
	ReconnectDelay time.Duration
	// InvalidSessionDelay is the pause required before re-IDENTIFYing in
	// response to a non-resumable INVALID_SESSION.
	InvalidSessionDelay time.Duration

	OnDispatch DispatchHandler
}

func (c *Config) setDefaults() {
	if c.GatewayURL == "" {
		c.GatewayURL = DefaultGatewayURL
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.InvalidSessionDelay <= 0 {
		c.InvalidSessionDelay = 5 * time.Second
	}
}

// Session is a single, reconnecting Gateway connection. The zero value is
// not usable; build one with New.
type Session struct {
	cfg Config

	running atomic.Bool

	// dialURL is the endpoint the next connect attempt uses: the initial
	// GatewayURL, or a resume_gateway_url handed back by a previous READY.
	dialURL string

	mu           sync.Mutex // guards sessionID/lastSequence below
	sessionID    string
	lastSequence *int64

	connMu sync.Mutex // serializes writes to conn, per §5
	conn   *websocket.Conn

	dialer *websocket.Dialer
}

// New builds a Session from cfg. OnDispatch must be set.
func New(cfg Config) *Session {
	cfg.setDefaults()
	return &Session{
		cfg:     cfg,
		dialURL: cfg.GatewayURL,
		dialer:  websocket.DefaultDialer,
	}
}

// Running reports whether Start's connect loop is currently active.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Start runs the reconnect loop until ctx is cancelled; Stop alone only
// drops the current connection, after which the loop reconnects. It blocks
// for the lifetime of the session.
func (s *Session) Start(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Warnf("session ended: %v; reconnecting in %s", err, s.cfg.ReconnectDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// Stop closes the active connection, if any, causing the read loop to
// return and the connect loop in Start to observe ctx and exit on its next
// iteration (the caller is expected to have cancelled ctx too).
func (s *Session) Stop() {
	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.connMu.Unlock()
}

// runOnce dials, handshakes, and pumps frames until the connection drops or
// ctx is cancelled. A nil return means the disconnect was clean (opcode 7
// RECONNECT, opcode 9 INVALID_SESSION, or ctx cancellation); a non-nil
// error is logged by Start before
// backing off.
func (s *Session) runOnce(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.dialURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		if s.conn == conn {
			_ = conn.Close()
			s.conn = nil
		}
		s.connMu.Unlock()
	}()

	hello, err := s.readHello(conn)
	if err != nil {
		return err
	}

	pm := heart.NewPacemaker(
		time.Duration(hello.HeartbeatInterval)*time.Millisecond,
		time.Duration(hello.HeartbeatInterval)*time.Millisecond,
		func() error { return s.sendHeartbeat(conn) },
	)
	death := pm.StartAsync(nil)
	defer pm.Stop()

	if err := s.identifyOrResume(conn); err != nil {
		return err
	}

	frames := make(chan frame)
	readErr := make(chan error, 1)
	go s.readLoop(conn, frames, readErr)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-death:
			if err != nil {
				return err
			}
			return errors.New("pacemaker stopped")
		case err := <-readErr:
			return err
		case fr, ok := <-frames:
			if !ok {
				return errors.New("frame channel closed")
			}
			done, err := s.handleFrame(ctx, conn, fr, pm)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

func (s *Session) readHello(conn *websocket.Conn) (helloPayload, error) {
	var fr frame
	if err := conn.ReadJSON(&fr); err != nil {
		return helloPayload{}, fmt.Errorf("read hello: %w", err)
	}
	if fr.Op != OpHello {
		return helloPayload{}, fmt.Errorf("expected HELLO, got opcode %d", fr.Op)
	}
	var hello helloPayload
	if err := json.Unmarshal(fr.D, &hello); err != nil {
		return helloPayload{}, fmt.Errorf("decode hello: %w", err)
	}
	return hello, nil
}

func (s *Session) identifyOrResume(conn *websocket.Conn) error {
	s.mu.Lock()
	sessionID := s.sessionID
	var seq int64
	if s.lastSequence != nil {
		seq = *s.lastSequence
	}
	s.mu.Unlock()

	if sessionID != "" {
		logger.Infof("resuming session %s at sequence %d", sessionID, seq)
		return s.writeFrame(conn, resumeFrame(s.cfg.Token, sessionID, seq))
	}

	logger.Infof("identifying new session")
	return s.writeFrame(conn, identifyFrame(s.cfg.Token, s.cfg.Intents))
}

func identifyFrame(token string, intents int) frame {
	d, _ := json.Marshal(identifyPayload{
		Token:   token,
		Intents: intents,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "discord-bridge",
			Device:  "discord-bridge",
		},
	})
	return frame{Op: OpIdentify, D: d}
}

func resumeFrame(token, sessionID string, seq int64) frame {
	d, _ := json.Marshal(resumePayload{Token: token, SessionID: sessionID, Seq: seq})
	return frame{Op: OpResume, D: d}
}

func (s *Session) sendHeartbeat(conn *websocket.Conn) error {
	s.mu.Lock()
	var seq *int64
	if s.lastSequence != nil {
		v := *s.lastSequence
		seq = &v
	}
	s.mu.Unlock()
	return s.writeFrame(conn, heartbeatFrame(seq))
}

func (s *Session) writeFrame(conn *websocket.Conn, fr frame) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return conn.WriteJSON(fr)
}

// readLoop decodes frames off conn until it errors or the connection
// closes, forwarding each frame to out. It never touches session state
// directly so it can run without holding any lock.
func (s *Session) readLoop(conn *websocket.Conn, out chan<- frame, errs chan<- error) {
	defer close(out)
	for {
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			errs <- err
			return
		}
		out <- fr
	}
}

// handleFrame applies the opcode table of SPEC_FULL.md §4.C. done is true
// when the caller should end runOnce (a clean close that must reconnect).
func (s *Session) handleFrame(ctx context.Context, conn *websocket.Conn, fr frame, pm *heart.Pacemaker) (done bool, err error) {
	switch fr.Op {
	case OpDispatch:
		s.handleDispatch(ctx, fr)
		return false, nil

	case OpHeartbeatAck:
		pm.Echo()
		return false, nil

	case OpHeartbeat:
		// Server requested an out-of-cycle heartbeat.
		return false, s.sendHeartbeat(conn)

	case OpReconnect:
		logger.Infof("received RECONNECT, reconnecting with resume")
		return true, nil

	case OpInvalidSession:
		var resumable bool
		_ = json.Unmarshal(fr.D, &resumable)
		if resumable {
			logger.Warnf("INVALID_SESSION (resumable), closing and reconnecting to resume")
			return true, nil
		}
		logger.Warnf("INVALID_SESSION (not resumable), clearing session state and reconnecting")
		s.mu.Lock()
		s.sessionID = ""
		s.lastSequence = nil
		s.mu.Unlock()
		select {
		case <-time.After(s.cfg.InvalidSessionDelay):
		case <-ctx.Done():
		}
		return true, nil

	default:
		return false, nil
	}
}

func (s *Session) handleDispatch(ctx context.Context, fr frame) {
	if fr.S != nil {
		s.mu.Lock()
		seq := *fr.S
		s.lastSequence = &seq
		s.mu.Unlock()
	}

	if fr.T == "READY" {
		var ready readyPayload
		if err := json.Unmarshal(fr.D, &ready); err == nil {
			s.mu.Lock()
			s.sessionID = ready.SessionID
			s.mu.Unlock()
			if ready.ResumeGatewayURL != "" {
				s.dialURL = ready.ResumeGatewayURL + "/?v=10&encoding=json"
			}
			logger.Infof("session ready: session_id=%s", ready.SessionID)
		}
	}

	if s.cfg.OnDispatch != nil {
		s.cfg.OnDispatch(ctx, fr.T, fr.D)
	}
}
