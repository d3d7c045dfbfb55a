package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rubiojr/discord-bridge/internal/config"
	"github.com/rubiojr/discord-bridge/internal/forwarder"
)

func fwdCfg() forwarder.Config {
	return forwarder.Config{Timeout: time.Second, RetryAttempts: 1, RetryDelay: 10 * time.Millisecond}
}

// S1 — happy path.
func TestHandleEvent_HappyPath(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := New([]config.Route{
		{EventName: "MESSAGE_CREATE", Endpoints: []string{srv.URL}},
	}, fwdCfg())

	r.HandleEvent(t.Context(), "MESSAGE_CREATE", json.RawMessage(`{"id":"1"}`))

	if hits != 1 {
		t.Fatalf("expected 1 request, got %d", hits)
	}
	stats := r.Stats()
	if stats.EventsReceived != 1 || stats.EventsForwarded != 1 || stats.EventsFailed != 0 || stats.RoutesProcessed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

// No route configured for the event: counted as received, nothing else.
func TestHandleEvent_NoMatchingRoute(t *testing.T) {
	r := New(nil, fwdCfg())
	r.HandleEvent(t.Context(), "GUILD_CREATE", json.RawMessage(`{}`))

	stats := r.Stats()
	if stats.EventsReceived != 1 {
		t.Errorf("events_received = %d, want 1", stats.EventsReceived)
	}
	if stats.RoutesProcessed != 0 {
		t.Errorf("routes_processed = %d, want 0 (no route matched)", stats.RoutesProcessed)
	}
}

// Disabled routes are invisible to lookup (testable property 1).
func TestHandleEvent_DisabledRouteIsInvisible(t *testing.T) {
	disabled := false
	r := New([]config.Route{
		{EventName: "MESSAGE_CREATE", Endpoints: []string{"http://example.invalid"}, EnabledRaw: &disabled},
	}, fwdCfg())

	r.HandleEvent(t.Context(), "MESSAGE_CREATE", json.RawMessage(`{}`))

	if r.Stats().RoutesProcessed != 0 {
		t.Error("disabled route should not have been processed")
	}
}

// Testable property 8 — fan-out independence: a hanging endpoint does not
// delay delivery to its siblings.
func TestHandleEvent_FanOutIndependence(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	var fastHit int32
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fastHit, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	r := New([]config.Route{
		{EventName: "MESSAGE_CREATE", Endpoints: []string{slow.URL, fast.URL}},
	}, forwarder.Config{Timeout: 5 * time.Second, RetryAttempts: 1, RetryDelay: 0})

	done := make(chan struct{})
	go func() {
		r.HandleEvent(t.Context(), "MESSAGE_CREATE", json.RawMessage(`{}`))
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&fastHit) != 1 {
		t.Error("fast endpoint should have been hit while the slow one is still pending")
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleEvent did not return after the slow endpoint unblocked")
	}
}

// Testable property 9 — statistics consistency across several events.
func TestHandleEvent_StatisticsConsistency(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer fail.Close()

	r := New([]config.Route{
		{EventName: "A", Endpoints: []string{ok.URL, fail.URL}},
		{EventName: "B", Endpoints: []string{ok.URL}},
	}, fwdCfg())

	r.HandleEvent(t.Context(), "A", json.RawMessage(`{}`))
	r.HandleEvent(t.Context(), "B", json.RawMessage(`{}`))
	r.HandleEvent(t.Context(), "UNROUTED", json.RawMessage(`{}`))

	stats := r.Stats()
	if stats.EventsReceived != 3 {
		t.Errorf("events_received = %d, want 3", stats.EventsReceived)
	}
	if stats.EventsForwarded+stats.EventsFailed != 3 {
		t.Errorf("forwarded+failed = %d, want 3 (total endpoint touches)", stats.EventsForwarded+stats.EventsFailed)
	}
	if stats.RoutesProcessed != 2 {
		t.Errorf("routes_processed = %d, want 2 (events with >=1 matching route)", stats.RoutesProcessed)
	}
}

func TestResetStats(t *testing.T) {
	r := New(nil, fwdCfg())
	r.HandleEvent(t.Context(), "X", json.RawMessage(`{}`))
	r.ResetStats()
	if s := r.Stats(); s.EventsReceived != 0 {
		t.Errorf("expected zeroed stats after reset, got %+v", s)
	}
}

func TestSubscribeReceivesDeliveryEvents(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	r := New([]config.Route{{EventName: "A", Endpoints: []string{ok.URL}}}, fwdCfg())
	id, ch := r.Subscribe()
	defer r.Unsubscribe(id)

	r.HandleEvent(t.Context(), "A", json.RawMessage(`{}`))

	select {
	case ev := <-ch:
		if ev.EventType != "A" || ev.Succeeded != 1 || ev.Failed != 0 {
			t.Errorf("unexpected delivery event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery event")
	}
}
