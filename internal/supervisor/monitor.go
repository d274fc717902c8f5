package supervisor

import (
	"time"

	"github.com/zsiec/msmonitor/internal/alerts"
	"github.com/zsiec/msmonitor/internal/config"
	"github.com/zsiec/msmonitor/internal/stream"
)

// tickInterval is the monitor's polling period, spec.md §4.5's "≈300 ms".
const tickInterval = 300 * time.Millisecond

// startMonitor starts the monitor goroutine if it isn't already running.
// Matches StreamManager.cpp's startAll: the monitor is only ever spawned
// once, by whichever StartAll call finds it not yet running.
func (m *Manager) startMonitor() {
	m.monMu.Lock()
	defer m.monMu.Unlock()
	if m.monRunning {
		return
	}
	m.monRunning = true
	m.monCtl = make(chan struct{})
	m.monDone = make(chan struct{})
	go m.monitorLoop(m.monCtl, m.monDone)
}

// stopMonitor signals the monitor loop to exit and waits for it to do so.
// A no-op if the monitor isn't running.
func (m *Manager) stopMonitor() {
	m.monMu.Lock()
	if !m.monRunning {
		m.monMu.Unlock()
		return
	}
	ctl, done := m.monCtl, m.monDone
	m.monRunning = false
	m.monMu.Unlock()

	close(ctl)
	<-done
}

// monitorLoop samples every worker's stats, computes status, and fires a
// transition alert, once per tickInterval, until ctl is closed. Matches
// StreamManager.cpp's monitor_loop: stats are sampled under the registry
// lock, evaluated with the lock released, and the watchdog map update takes
// the lock again.
func (m *Manager) monitorLoop(ctl <-chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctl:
			return
		case <-ticker.C:
			m.evaluateOnce()
		}
	}
}

type sampledStream struct {
	name string
	st   stream.Stats
}

// evaluateOnce runs one monitor tick: snapshot every worker's stats under
// the registry lock, release it, compute each one's status, and for any stream whose
// status changed since the last tick, update the watchdog entry and emit a
// webhook.
func (m *Manager) evaluateOnce() {
	m.mu.Lock()
	cfg := m.cfg
	samples := make([]sampledStream, 0, len(m.workers))
	for name, w := range m.workers {
		samples = append(samples, sampledStream{name: name, st: w.Stats()})
	}
	m.mu.Unlock()

	nowMs := m.clockMs()

	for _, s := range samples {
		status, reason := evaluateStatus(s.st, cfg)

		m.mu.Lock()
		wd, ok := m.watchdog[s.name]
		if !ok {
			m.mu.Unlock()
			continue
		}
		changed := wd.LastStatus != status
		if changed {
			wd.LastStatus = status
		}
		m.mu.Unlock()

		if w, ok := m.lookup(s.name); ok {
			w.SetStatus(status, reason)
		}

		if !changed {
			continue
		}

		m.fireTransition(s.name, s.st, status, nowMs)
	}
}

// evaluateStatus implements spec.md §4.5's status ladder: crit if any of
// fps_ratio/bitrate_kbps/stall_ms crosses its crit limit, else warn if any
// crosses its warn limit, else ok.
func evaluateStatus(st stream.Stats, cfg config.Snapshot) (stream.Status, string) {
	inputFPS := st.InputFPS
	if inputFPS < 0 {
		inputFPS = 0
	}
	decodeFPS := st.DecodeFPS
	if decodeFPS < 0 {
		decodeFPS = 0
	}

	ratio := 1.0
	if inputFPS > 0.0001 {
		ratio = decodeFPS / inputFPS
	}

	bitrate := st.BitrateKbps
	// stall_ms is not tracked by stream.Worker (it has no externally fed
	// render-frame clock); the monitor tick treats it as always 0, per
	// SPEC_FULL.md §12. internal/metrics.Aggregator is the component that
	// does wire a real stall_ms, for sources that feed it render timestamps.
	const stallMs = 0

	th := cfg.Thresholds

	switch {
	case ratio <= th.FPS.CritRatio || bitrate <= float64(th.Bitrate.CritKbps) || stallMs >= th.Stall.CritMs:
		return stream.StatusCrit, "crit threshold crossed"
	case ratio <= th.FPS.WarnRatio || bitrate <= float64(th.Bitrate.WarnKbps) || stallMs >= th.Stall.WarnMs:
		return stream.StatusWarn, "warn threshold crossed"
	default:
		return stream.StatusOK, ""
	}
}

// fireTransition sends the structured stream_status webhook payload for a
// status change. The monitor tick owns only this shape — the generic
// (title,message,severity) alert belongs to whatever calls the dispatcher
// directly for its own reasons (internal/metrics.Aggregator.PollAndAlert),
// not to the per-stream status ladder, so exactly one webhook event goes out
// per transition.
func (m *Manager) fireTransition(name string, st stream.Stats, status stream.Status, nowMs int64) {
	if m.dispatcher == nil {
		return
	}

	inputFPS := st.InputFPS
	if inputFPS < 0 {
		inputFPS = 0
	}
	decodeFPS := st.DecodeFPS
	if decodeFPS < 0 {
		decodeFPS = 0
	}
	ratio := 1.0
	if inputFPS > 0.0001 {
		ratio = decodeFPS / inputFPS
	}

	metrics := alerts.StreamStatusMetrics{
		InputFPS:    inputFPS,
		DecodeFPS:   decodeFPS,
		FPSRatio:    ratio,
		BitrateKbps: int(st.BitrateKbps),
		StallMs:     0,
	}
	if err := m.dispatcher.SendStreamStatus(name, st.ServiceName, string(status), metrics, nowMs); err != nil {
		m.log.Warn("failed to send stream_status webhook", "stream", name, "error", err)
	}
}
