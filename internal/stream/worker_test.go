package stream

import (
	"testing"
	"time"
)

func TestWorker_StartIsIdempotent(t *testing.T) {
	t.Parallel()
	w := NewWorker(Spec{Name: "a", URL: "udp://bad-host-does-not-exist:9"}, nil)
	w.Start()
	w.Start() // no-op, must not spawn a second goroutine or panic
	w.Stop()
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w := NewWorker(Spec{Name: "a", URL: "udp://bad-host-does-not-exist:9"}, nil)
	w.Start()
	w.Stop()
	w.Stop() // no-op, must not hang or double-close a channel
}

func TestWorker_StopWithoutStartIsNoop(t *testing.T) {
	t.Parallel()
	w := NewWorker(Spec{Name: "a", URL: "udp://bad-host-does-not-exist:9"}, nil)
	w.Stop()
}

// Scenario 5 (spec.md §8), single-worker form: a worker with an unopenable
// URL should report running=true and a non-empty last_error shortly after
// starting, and
// StopAll-equivalent Stop() must return promptly with no worker left
// running.
func TestWorker_LifecycleWithBadURL(t *testing.T) {
	t.Parallel()
	w := NewWorker(Spec{Name: "A", URL: "unsupported-scheme://host/path"}, nil)
	w.Start()

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		st := w.Stats()
		if st.Running && st.LastError != "" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	st := w.Stats()
	if !st.Running {
		t.Error("expected Running=true while reconnect loop is active")
	}
	if st.LastError == "" {
		t.Error("expected a non-empty LastError for an unopenable URL")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop() did not return within 3s")
	}

	if w.Stats().Running {
		t.Error("expected Running=false after Stop")
	}
}

func TestWorker_StatsBeforeStartReportsStoppedDefaults(t *testing.T) {
	t.Parallel()
	w := NewWorker(Spec{Name: "a", URL: "udp://host:9"}, nil)
	st := w.Stats()

	if st.Running {
		t.Error("expected Running=false before Start")
	}
	if st.Status != StatusOK {
		t.Errorf("expected default Status=ok, got %q", st.Status)
	}
	if st.SID != -1 || st.PMTPID != -1 || st.PCRPID != -1 || st.VideoPID != -1 {
		t.Error("expected all PID fields to default to -1 (unknown)")
	}
	if st.Decoder != "CPU" {
		t.Errorf("expected default decoder label CPU, got %q", st.Decoder)
	}
}

func TestWorker_DecoderHintOverridesDefaultLabel(t *testing.T) {
	t.Parallel()
	w := NewWorker(Spec{Name: "a", URL: "udp://host:9", DecoderHint: "GPU(nvdec)"}, nil)
	if got := w.Stats().Decoder; got != "GPU(nvdec)" {
		t.Errorf("Decoder = %q, want GPU(nvdec)", got)
	}
}
