// Package supervisor implements the multi-stream registry and monitor tick
// spec.md §4.5 calls StreamManager: add/remove/start/stop/restart lifecycle
// over a set of stream.Worker instances, plus a periodic status-evaluation
// loop that fires alerts on transition. Grounded on
// original_source/src/StreamManager.cpp method-for-method.
package supervisor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/msmonitor/internal/alerts"
	"github.com/zsiec/msmonitor/internal/config"
	"github.com/zsiec/msmonitor/internal/stream"
)

// WatchdogState is the supervisor-owned, per-stream bookkeeping the monitor
// tick uses to debounce status transitions. Matches spec.md §3's
// WatchdogState (kbps_history and low_decode_consecutive are not currently
// consumed by the status ladder spec.md §4.5 defines, but are retained so a
// future hysteresis rule has somewhere to live without a schema change).
type WatchdogState struct {
	LastStatus           stream.Status
	LastCC               uint64
	LastCCTime           time.Time
	KbpsHistory          []int
	LowDecodeConsecutive int
}

const maxKbpsHistory = 60

// Manager is the process-wide registry of stream workers. One mutex guards
// the registry map; it is never held across a call into a Worker method
// that can block, per spec.md §5.
type Manager struct {
	log        *slog.Logger
	dispatcher *alerts.Dispatcher
	cfg        config.Snapshot

	mu       sync.Mutex
	workers  map[string]*stream.Worker
	watchdog map[string]*WatchdogState

	monMu      sync.Mutex
	monRunning bool
	monCtl     chan struct{}
	monDone    chan struct{}

	clockMs func() int64
}

// NewManager constructs a Manager. If log is nil, slog.Default() is used.
func NewManager(cfg config.Snapshot, dispatcher *alerts.Dispatcher, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:        log.With("component", "supervisor"),
		dispatcher: dispatcher,
		cfg:        cfg,
		workers:    make(map[string]*stream.Worker),
		watchdog:   make(map[string]*WatchdogState),
		clockMs:    func() int64 { return time.Now().UnixMilli() },
	}
}

// SetConfig replaces the threshold/webhook snapshot the monitor tick reads.
// Takes effect on the next tick.
func (m *Manager) SetConfig(cfg config.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// AddStream creates (or replaces, if name already exists) a worker for spec
// and starts it immediately, matching StreamManager.cpp's addStream
// stop-then-replace-on-duplicate rule.
func (m *Manager) AddStream(spec stream.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if old, ok := m.workers[spec.Name]; ok {
		delete(m.workers, spec.Name)
		delete(m.watchdog, spec.Name)
		m.mu.Unlock()
		old.Stop()
		m.mu.Lock()
	}

	w := stream.NewWorker(spec, m.log)
	m.workers[spec.Name] = w
	m.watchdog[spec.Name] = &WatchdogState{
		LastStatus: stream.StatusOK,
		LastCCTime: time.Now(),
	}
	m.mu.Unlock()

	w.Start()
	return nil
}

// RemoveStream stops and erases the named worker. Returns false if the name
// isn't registered.
func (m *Manager) RemoveStream(name string) bool {
	m.mu.Lock()
	w, ok := m.workers[name]
	if ok {
		delete(m.workers, name)
		delete(m.watchdog, name)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	w.Stop()
	return true
}

// StartStream forwards Start to the named worker; false if missing.
func (m *Manager) StartStream(name string) bool {
	w, ok := m.lookup(name)
	if !ok {
		return false
	}
	w.Start()
	return true
}

// StopStream forwards Stop to the named worker; false if missing.
func (m *Manager) StopStream(name string) bool {
	w, ok := m.lookup(name)
	if !ok {
		return false
	}
	w.Stop()
	return true
}

// RestartStream stops then starts the named worker; false if missing.
func (m *Manager) RestartStream(name string) bool {
	w, ok := m.lookup(name)
	if !ok {
		return false
	}
	w.Stop()
	w.Start()
	return true
}

func (m *Manager) lookup(name string) (*stream.Worker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[name]
	return w, ok
}

// StartAll starts every registered worker, then starts the monitor tick if
// it isn't already running.
func (m *Manager) StartAll() {
	m.mu.Lock()
	workers := make([]*stream.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	for _, w := range workers {
		w.Start()
	}

	m.startMonitor()
}

// StopAll signals the monitor tick to exit, joins it, then stops every
// registered worker, matching StreamManager.cpp's stopAll ordering.
func (m *Manager) StopAll() {
	m.stopMonitor()

	m.mu.Lock()
	workers := make([]*stream.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}

// LoadFromList replaces the registry wholesale: every existing worker is
// stopped first, then a fresh worker per entry is created (not started —
// callers call StartAll afterward, matching loadFromList's own contract of
// only populating the registry).
func (m *Manager) LoadFromList(entries []config.StreamEntry) {
	m.mu.Lock()
	old := make([]*stream.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		old = append(old, w)
	}
	m.workers = make(map[string]*stream.Worker)
	m.watchdog = make(map[string]*WatchdogState)
	m.mu.Unlock()

	for _, w := range old {
		w.Stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		w := stream.NewWorker(stream.Spec{Name: e.Name, URL: e.URL}, m.log)
		m.workers[e.Name] = w
		m.watchdog[e.Name] = &WatchdogState{
			LastStatus: stream.StatusOK,
			LastCCTime: time.Now(),
		}
	}
}

// LoadConfig reads a streams config file from path and calls LoadFromList
// with its entries. Returns the read/parse error, if any; on failure the
// registry is left unchanged rather than partially populated.
func (m *Manager) LoadConfig(path string) error {
	entries, err := config.LoadStreamList(path)
	if err != nil {
		return err
	}
	m.LoadFromList(entries)
	return nil
}

// Size returns the number of registered streams.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// GetAllStats snapshots every worker's stats, overlaying each one's current
// watchdog-derived status.
func (m *Manager) GetAllStats() []stream.Stats {
	m.mu.Lock()
	type entry struct {
		w  *stream.Worker
		wd *WatchdogState
	}
	entries := make([]entry, 0, len(m.workers))
	for name, w := range m.workers {
		entries = append(entries, entry{w: w, wd: m.watchdog[name]})
	}
	m.mu.Unlock()

	out := make([]stream.Stats, 0, len(entries))
	for _, e := range entries {
		st := e.w.Stats()
		if e.wd != nil {
			st.Status = e.wd.LastStatus
		}
		out = append(out, st)
	}
	return out
}
