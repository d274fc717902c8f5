package alerts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// Scenario 3 (spec.md §8): cooldown_override=2000ms; send at t=0 (POST),
// t=1000 (suppressed), t=2500 (POST). Exactly 2 network requests.
func TestDispatcher_CooldownSuppressesWithinWindow(t *testing.T) {
	t.Parallel()
	var hits int64
	srv := newTestServer(t, &hits)

	d := New(Config{Enabled: true, URL: srv.URL, TimeoutMs: 1000, CooldownSec: 60}, nil)
	d.SetCooldownOverride(2 * time.Second)

	if err := d.SendAt("X", "m", "warning", "", 0); err != nil {
		t.Fatalf("send at t=0: %v", err)
	}
	if err := d.SendAt("X", "m", "warning", "", 1000); err != nil {
		t.Fatalf("send at t=1000: %v", err)
	}
	if err := d.SendAt("X", "m", "warning", "", 2500); err != nil {
		t.Fatalf("send at t=2500: %v", err)
	}

	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Errorf("POST count = %d, want 2", got)
	}
}

func TestDispatcher_DisabledIsNoop(t *testing.T) {
	t.Parallel()
	var hits int64
	srv := newTestServer(t, &hits)

	d := New(Config{Enabled: false, URL: srv.URL}, nil)
	if err := d.SendAt("X", "m", "warning", "", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt64(&hits); got != 0 {
		t.Errorf("expected no POST when disabled, got %d", got)
	}
}

func TestDispatcher_EmptyURLIsNoop(t *testing.T) {
	t.Parallel()
	d := New(Config{Enabled: true, URL: ""}, nil)
	if err := d.SendAt("X", "m", "warning", "", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatcher_DifferentSeverityIsIndependentCooldown(t *testing.T) {
	t.Parallel()
	var hits int64
	srv := newTestServer(t, &hits)

	d := New(Config{Enabled: true, URL: srv.URL, CooldownSec: 60}, nil)
	if err := d.SendAt("X", "m", "warning", "", 0); err != nil {
		t.Fatal(err)
	}
	if err := d.SendAt("X", "m", "critical", "", 100); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Errorf("expected 2 POSTs for distinct (title,severity) keys, got %d", got)
	}
}

func TestDispatcher_SendBodyShape(t *testing.T) {
	t.Parallel()
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d := New(Config{Enabled: true, URL: srv.URL}, nil)
	if err := d.SendAt("title-x", "msg-y", "info", "", 0); err != nil {
		t.Fatal(err)
	}

	if body["title"] != "title-x" || body["message"] != "msg-y" || body["severity"] != "info" {
		t.Errorf("unexpected body: %+v", body)
	}
	if body["source"] != sourceLabel {
		t.Errorf("source = %q, want %q", body["source"], sourceLabel)
	}
}

func TestDispatcher_SendStreamStatusBypassesCooldown(t *testing.T) {
	t.Parallel()
	var hits int64
	srv := newTestServer(t, &hits)

	d := New(Config{Enabled: true, URL: srv.URL, CooldownSec: 9999}, nil)
	// Same channel/service/status called twice in a row: SendStreamStatus
	// has no cooldown ledger of its own, so both must reach the network.
	if err := d.SendStreamStatus("ch", "svc", "warn", StreamStatusMetrics{}, 0); err != nil {
		t.Fatal(err)
	}
	if err := d.SendStreamStatus("ch", "svc", "warn", StreamStatusMetrics{}, 1); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Errorf("POST count = %d, want 2 (no cooldown on stream_status)", got)
	}
}

func TestDispatcher_NonTwoxxIsError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	d := New(Config{Enabled: true, URL: srv.URL}, nil)
	if err := d.SendAt("X", "m", "warning", "", 0); err == nil {
		t.Error("expected an error for a 500 response")
	}
}
