package admin

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/rubiojr/discord-bridge/internal/router"
)

type fakeProvider struct {
	snap Snapshot
}

func (f fakeProvider) Snapshot() Snapshot { return f.snap }

func TestServer_HealthzOnFixedPort(t *testing.T) {
	s := New("127.0.0.1:18099", fakeProvider{snap: Snapshot{State: "running"}})
	if err := s.Start(); err != nil {
		t.Skipf("could not bind test port: %v", err)
	}
	defer s.Stop()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18099/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestServer_StatsAndSnapshot(t *testing.T) {
	snap := Snapshot{
		State:          "running",
		UptimeSeconds:  3,
		SessionRunning: true,
		Stats:          router.Stats{EventsReceived: 10, EventsForwarded: 9, EventsFailed: 1, RoutesProcessed: 5},
	}
	s := New("127.0.0.1:18100", fakeProvider{snap: snap})
	if err := s.Start(); err != nil {
		t.Skipf("could not bind test port: %v", err)
	}
	defer s.Stop()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get("http://127.0.0.1:18100/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()
	var stats router.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats != snap.Stats {
		t.Errorf("stats = %+v, want %+v", stats, snap.Stats)
	}

	resp2, err := http.Get("http://127.0.0.1:18100/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	defer resp2.Body.Close()
	var got Snapshot
	if err := json.NewDecoder(resp2.Body).Decode(&got); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if got.State != "running" || got.Stats != snap.Stats {
		t.Errorf("snapshot = %+v, want state=running stats=%+v", got, snap.Stats)
	}
}
