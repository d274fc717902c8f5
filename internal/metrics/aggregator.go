package metrics

import (
	"log/slog"
	"sync"
)

// AlertSender is the subset of internal/alerts.Dispatcher's API the
// Aggregator needs. Defined locally so this package doesn't have to import
// internal/alerts just to accept one.
type AlertSender interface {
	Send(title, message, severity, source string) error
}

// Thresholds configures the Aggregator's own status evaluation. This is a
// separate, independently loaded set of limits from the per-stream
// supervisor's ConfigSnapshot thresholds, mirroring the original monitoring
// program's two separately maintained threshold sources.
type Thresholds struct {
	FPSWarnRatio    float64
	FPSCritRatio    float64
	BitrateWarnKbps float64
	BitrateCritKbps float64
	StallWarnMs     int64
	StallCritMs     int64
	CCWarnPerMin    int
	CCCritPerMin    int
}

// DefaultThresholds returns the legacy defaults the original program's
// standalone metrics aggregator used, distinct from the supervisor's
// ConfigSnapshot defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FPSWarnRatio:    0.70,
		FPSCritRatio:    0.40,
		BitrateWarnKbps: 300,
		BitrateCritKbps: 100,
		StallWarnMs:     3000,
		StallCritMs:     7000,
		CCWarnPerMin:    5,
		CCCritPerMin:    30,
	}
}

// Aggregator is a global, stream-agnostic collector: it tracks continuity
// errors and frame-render timestamps fed to it from any source, independent
// of any single StreamWorker's own per-stream tracking. It re-implements its
// own minimal TS header parse rather than depending on internal/mpegts, the
// same way the original program's Metrics collector never called into its
// per-stream Stream class.
type Aggregator struct {
	log *slog.Logger

	mu           sync.Mutex
	ccPIDs       map[uint16]*ccState
	ccWindow     []int64
	ccTotal      uint64
	renderWindow *FrameWindow
	lastRenderMs int64
	haveRender   bool

	lastStatus string
	dispatcher AlertSender
	thresholds Thresholds

	referenceFPS float64
}

type ccState struct {
	valid  bool
	lastCC uint8
}

const ccAggregatorWindowMs = 60000

// NewAggregator returns an Aggregator using renderHorizonMs as the render-FPS
// window and referenceFPS as the "expected" rate used for ratio thresholds
// (matching the original's 30fps default reference).
func NewAggregator(log *slog.Logger, renderHorizonMs int64, referenceFPS float64, dispatcher AlertSender) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	if referenceFPS <= 0 {
		referenceFPS = 30
	}
	return &Aggregator{
		log:          log.With("component", "metrics-aggregator"),
		ccPIDs:       make(map[uint16]*ccState),
		renderWindow: NewFrameWindow(renderHorizonMs),
		dispatcher:   dispatcher,
		thresholds:   DefaultThresholds(),
		referenceFPS: referenceFPS,
	}
}

// SetThresholds replaces the aggregator's threshold set.
func (a *Aggregator) SetThresholds(t Thresholds) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thresholds = t
}

// HandleTSPacket extracts the PID/continuity-counter/payload fields from a
// single 188-byte (or larger) transport stream packet and folds any
// continuity error into the rolling one-minute window. Malformed packets
// (bad sync byte, short buffer) are silently ignored, matching the
// shallow-parse discipline the rest of this repo uses for raw TS bytes.
func (a *Aggregator) HandleTSPacket(buf []byte, nowMs int64) {
	pid, cc, hasPayload, discontinuity, ok := parseMinimalHeader(buf)
	if !ok || !hasPayload {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, exists := a.ccPIDs[pid]
	if !exists {
		st = &ccState{}
		a.ccPIDs[pid] = st
	}

	if !st.valid || discontinuity {
		st.valid = true
		st.lastCC = cc
		return
	}

	expected := (st.lastCC + 1) & 0x0F
	if cc != expected {
		a.ccTotal++
		a.ccWindow = append(a.ccWindow, nowMs)
		a.trimCCWindow(nowMs)
	}
	st.lastCC = cc
}

func parseMinimalHeader(buf []byte) (pid uint16, cc uint8, hasPayload bool, discontinuity bool, ok bool) {
	const syncByte = 0x47
	if len(buf) < 188 || buf[0] != syncByte {
		return 0, 0, false, false, false
	}
	pid = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	afc := (buf[3] >> 4) & 0x03
	hasAF := afc == 2 || afc == 3
	hasPayload = afc == 1 || afc == 3
	cc = buf[3] & 0x0F
	if hasAF && len(buf) > 5 {
		afLen := int(buf[4])
		if afLen > 0 {
			discontinuity = buf[5]&0x80 != 0
		}
	}
	return pid, cc, hasPayload, discontinuity, true
}

func (a *Aggregator) trimCCWindow(nowMs int64) {
	cut := 0
	for cut < len(a.ccWindow) && nowMs-a.ccWindow[cut] > ccAggregatorWindowMs {
		cut++
	}
	if cut > 0 {
		a.ccWindow = a.ccWindow[cut:]
	}
}

// CCErrorsPerMinute returns the CC error count within the trailing 60s of nowMs.
func (a *Aggregator) CCErrorsPerMinute(nowMs int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trimCCWindow(nowMs)
	return len(a.ccWindow)
}

// RecordFrameRendered notes that one frame was rendered at nowMs.
func (a *Aggregator) RecordFrameRendered(nowMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.renderWindow.Add(nowMs)
	a.lastRenderMs = nowMs
	a.haveRender = true
}

// RenderFPS returns the render rate over the aggregator's horizon.
func (a *Aggregator) RenderFPS(nowMs int64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.renderWindow.FPS(nowMs)
}

// StallMsNow returns how long it's been since the last recorded render, or 0
// if no frame has ever been recorded.
func (a *Aggregator) StallMsNow(nowMs int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.haveRender {
		return 0
	}
	if nowMs < a.lastRenderMs {
		return 0
	}
	return nowMs - a.lastRenderMs
}

// PollAndAlert evaluates the aggregator's own status ladder (stall, then
// FPS ratio, then CC error rate — the worst of the three wins) and, on a
// status transition, sends a webhook through dispatcher. Unlike the
// supervisor's per-stream monitor tick, this uses a single process-wide
// status, matching the original's singleton metrics collector.
func (a *Aggregator) PollAndAlert(nowMs int64, source string) {
	a.mu.Lock()
	stallMs := int64(0)
	if a.haveRender && nowMs >= a.lastRenderMs {
		stallMs = nowMs - a.lastRenderMs
	}
	fps := a.renderWindow.FPS(nowMs)
	a.trimCCWindow(nowMs)
	ccPerMin := len(a.ccWindow)
	haveRender := a.haveRender
	th := a.thresholds
	prev := a.lastStatus
	a.mu.Unlock()
	if prev == "" {
		prev = "ok"
	}

	status := "ok"
	switch {
	case stallMs >= th.StallCritMs:
		status = "crit"
	case stallMs >= th.StallWarnMs:
		status = "warn"
	}

	if status != "crit" && haveRender && a.referenceFPS > 0 {
		ratio := fps / a.referenceFPS
		if ratio <= th.FPSCritRatio {
			status = "crit"
		} else if status != "crit" && ratio <= th.FPSWarnRatio {
			status = "warn"
		}
	}

	if status != "crit" {
		switch {
		case ccPerMin >= th.CCCritPerMin:
			status = "crit"
		case status != "warn" && ccPerMin >= th.CCWarnPerMin:
			status = "warn"
		}
	}

	if status == prev {
		return
	}

	a.mu.Lock()
	a.lastStatus = status
	a.mu.Unlock()

	if a.dispatcher == nil {
		return
	}
	msg := "metrics aggregator status changed"
	if err := a.dispatcher.Send("stream health", msg, aggregatorSeverity(status), source); err != nil {
		a.log.Warn("failed to send aggregator alert", "error", err)
	}
}

// aggregatorSeverity maps the aggregator's ok/warn/crit status vocabulary to
// the webhook payload's info/warning/critical severity vocabulary spec.md
// §6 requires.
func aggregatorSeverity(status string) string {
	switch status {
	case "crit":
		return "critical"
	case "warn":
		return "warning"
	default:
		return "info"
	}
}
