package supervisor

import (
	"testing"
	"time"

	"github.com/zsiec/msmonitor/internal/config"
	"github.com/zsiec/msmonitor/internal/stream"
)

func newTestManager() *Manager {
	return NewManager(config.Default(), nil, nil)
}

func TestManager_AddRemoveStreamRoundTrip(t *testing.T) {
	t.Parallel()
	m := newTestManager()

	if err := m.AddStream(stream.Spec{Name: "A", URL: "udp://bad-host:9"}); err != nil {
		t.Fatalf("AddStream: %v", err)
	}
	if m.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", m.Size())
	}

	if !m.RemoveStream("A") {
		t.Error("RemoveStream should return true for an existing stream")
	}
	if m.Size() != 0 {
		t.Errorf("Size() after remove = %d, want 0", m.Size())
	}
}

func TestManager_RemoveStreamMissingReturnsFalse(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	if m.RemoveStream("nope") {
		t.Error("RemoveStream on a missing name should return false")
	}
}

func TestManager_AddStreamReplacesDuplicate(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	if err := m.AddStream(stream.Spec{Name: "A", URL: "udp://bad-host:9"}); err != nil {
		t.Fatal(err)
	}
	if err := m.AddStream(stream.Spec{Name: "A", URL: "udp://bad-host:10"}); err != nil {
		t.Fatal(err)
	}
	if m.Size() != 1 {
		t.Errorf("Size() = %d, want 1 (replace, not duplicate)", m.Size())
	}
}

func TestManager_AddStreamValidatesSpec(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	if err := m.AddStream(stream.Spec{Name: "", URL: "udp://x"}); err == nil {
		t.Error("expected an error for an empty name")
	}
}

// Scenario: loadFromList(L); getAllStats() returns exactly |L| entries with
// matching names.
func TestManager_LoadFromListThenGetAllStats(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	m.LoadFromList([]config.StreamEntry{
		{Name: "A", URL: "unsupported-scheme://x"},
		{Name: "B", URL: "unsupported-scheme://y"},
	})

	stats := m.GetAllStats()
	if len(stats) != 2 {
		t.Fatalf("len(GetAllStats()) = %d, want 2", len(stats))
	}
	names := map[string]bool{}
	for _, s := range stats {
		names[s.Name] = true
	}
	if !names["A"] || !names["B"] {
		t.Errorf("expected both A and B present, got %+v", stats)
	}
}

// Scenario 5 (spec.md §8): two bad-URL streams; after starting, both report
// running with a non-empty error; stopAll returns promptly with nothing
// left running.
func TestManager_StreamLifecycleWithBadURLs(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	m.LoadFromList([]config.StreamEntry{
		{Name: "A", URL: "unsupported-scheme://x"},
		{Name: "B", URL: "unsupported-scheme://y"},
	})
	m.StartAll()

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		stats := m.GetAllStats()
		allReady := len(stats) == 2
		for _, s := range stats {
			if !s.Running || s.LastError == "" {
				allReady = false
			}
		}
		if allReady {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	for _, s := range m.GetAllStats() {
		if !s.Running {
			t.Errorf("stream %s: expected running=true", s.Name)
		}
		if s.LastError == "" {
			t.Errorf("stream %s: expected non-empty last_error", s.Name)
		}
	}

	done := make(chan struct{})
	go func() {
		m.StopAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("StopAll did not return within 3s")
	}
}

func TestManager_StartStreamAndStopStreamMissingReturnFalse(t *testing.T) {
	t.Parallel()
	m := newTestManager()
	if m.StartStream("nope") {
		t.Error("StartStream on missing name should return false")
	}
	if m.StopStream("nope") {
		t.Error("StopStream on missing name should return false")
	}
	if m.RestartStream("nope") {
		t.Error("RestartStream on missing name should return false")
	}
}
