package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/discord-bridge/internal/config"
)

var testUpgrader = websocket.Upgrader{}

// fakeGatewayServer sends HELLO on every connection and otherwise idles,
// exercising only the Supervisor's startup/shutdown wiring without reaching
// the real Discord Gateway.
func fakeGatewayServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		d, _ := json.Marshal(map[string]int64{"heartbeat_interval": 30000})
		_ = conn.WriteJSON(map[string]any{"op": 10, "d": json.RawMessage(d)})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(gatewayAdminAddr string) *config.Config {
	cfg := config.Default()
	cfg.Discord.Token = "test-token-0123456789"
	cfg.HTTP.Timeout = 1
	cfg.HTTP.RetryAttempts = 1
	cfg.HTTP.RetryDelay = 0
	cfg.Admin.ListenAddr = gatewayAdminAddr
	return cfg
}

func TestSupervisor_StartStopWithAdminSurface(t *testing.T) {
	gw := fakeGatewayServer()
	defer gw.Close()

	cfg := testConfig("127.0.0.1:18101")
	sup := New(cfg, WithGatewayURL(wsURL(gw)))

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)

	snap := sup.Snapshot()
	if snap.State != string(StateRunning) {
		t.Errorf("state = %q, want running", snap.State)
	}

	resp, err := http.Get("http://127.0.0.1:18101/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after context cancellation")
	}

	snap = sup.Snapshot()
	if snap.State != string(StateStopped) {
		t.Errorf("state after stop = %q, want stopped", snap.State)
	}
}

func TestSupervisor_ReloadRoutesSwapsRouterTable(t *testing.T) {
	gw := fakeGatewayServer()
	defer gw.Close()

	cfg := testConfig("") // no admin surface for this test
	sup := New(cfg, WithGatewayURL(wsURL(gw)))

	sup.ReloadRoutes([]config.Route{
		{EventName: "MESSAGE_CREATE", Endpoints: []string{"http://example.invalid"}},
	})

	snap := sup.Snapshot()
	if snap.Stats.EventsReceived != 0 {
		t.Errorf("expected untouched stats after a pure route reload, got %+v", snap.Stats)
	}

	// The initial config has no routes, so only the reloaded table can match.
	sup.router.HandleEvent(t.Context(), "MESSAGE_CREATE", json.RawMessage(`{}`))
	if got := sup.Snapshot().Stats.RoutesProcessed; got != 1 {
		t.Errorf("routes_processed = %d after reload, want 1 (reloaded route must match)", got)
	}
}
