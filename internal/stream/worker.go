package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/msmonitor/internal/metrics"
	"github.com/zsiec/msmonitor/internal/mpegts"
)

// defaultInputFPS is the frame-rate fallback spec.md §4.4 names as the last
// resort when nothing else supplies a hint. The original program read this
// from libavformat's AVStream.avg_frame_rate/r_frame_rate; this repo's
// demuxer works a layer below any such container-level hint (see
// SPEC_FULL.md §12), so a Spec.ExpectedFPS override is the only thing that
// ever beats this constant.
const defaultInputFPS = 25.0

const (
	openRetryDelay = 1 * time.Second
	eofRetryDelay  = 500 * time.Millisecond
)

// Worker owns one stream's lifetime: open input, discover its program,
// read packets, probe decode via PES-unit boundaries, and keep a live
// Stats snapshot. One Worker runs exactly one background goroutine at a
// time; Start/Stop are idempotent and Stop joins that goroutine before
// returning, matching spec.md §3's "worker joined before removal" invariant.
type Worker struct {
	spec Spec
	log  *slog.Logger

	clockMs func() int64

	running atomic.Bool
	mu      sync.Mutex
	ctl     chan struct{} // closed by Stop to request termination
	done    chan struct{} // closed by the worker goroutine on exit

	// Fields below are mutated only by the worker goroutine while running,
	// and read (copied out) by Stats() under mu — matching spec.md §5's
	// "single producer, lock-protected snapshot" discipline.
	state             State
	lastError         string
	startedAt         time.Time
	inputFPS          float64
	decodeEmaRaw      float64
	lastFrameAbsMs    int64
	haveDecodedFrame  bool
	decodeSampleStart int64
	decodeSampleCount int

	sid               int
	pmtPID            int
	pcrPID            int
	videoPID          int
	audioPIDs         []int
	serviceName       string
	programDiscovered bool

	decoderLabel string
	bytesRecv    int64
	packetsRecv  int64
	reconnects   int

	status       Status
	statusReason string

	cc      *mpegts.ContinuityTracker
	bitrate *metrics.BitrateAccumulator
	decoder *metrics.DecodeFPSSmoother

	ccErrors       uint64
	ccErrorsPerMin int
	bitrateKbps    float64
	videoKbps      float64
	audioKbps      float64
	rateMode       string
}

// NewWorker builds a Worker for spec. It does not start any goroutine; call
// Start for that. If log is nil, slog.Default() is used.
func NewWorker(spec Spec, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		spec:         spec,
		log:          log.With("component", "stream-worker", "name", spec.Name),
		clockMs:      func() int64 { return time.Now().UnixMilli() },
		state:        StateStopped,
		sid:          -1,
		pmtPID:       -1,
		pcrPID:       -1,
		videoPID:     -1,
		serviceName:  spec.ServiceNameHint,
		decoderLabel: "CPU",
		status:       StatusOK,
		rateMode:     "VBR",
		cc:           mpegts.NewContinuityTracker(),
		bitrate:      metrics.NewBitrateAccumulator(),
		decoder:      metrics.NewDecodeFPSSmoother(),
	}
	if spec.DecoderHint != "" {
		w.decoderLabel = spec.DecoderHint
	}
	return w
}

// Start spawns the worker's read/decode-probe loop if it isn't already
// running. Idempotent: a second Start on an already-running Worker is a
// no-op, matching spec.md §8's "start() after start() is a no-op".
func (w *Worker) Start() {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	w.mu.Lock()
	w.startedAt = time.Now()
	w.state = StateConnecting
	w.ctl = make(chan struct{})
	w.done = make(chan struct{})
	ctl, done := w.ctl, w.done
	w.mu.Unlock()

	go w.run(ctl, done)
}

// Stop requests termination, joins the worker goroutine, and releases any
// input/decoder resources it held. Idempotent: a second Stop on an already
// stopped Worker is a no-op, matching spec.md §8's "stop() after stop() is
// a no-op (no double-free, no hang)".
func (w *Worker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	w.mu.Lock()
	ctl, done := w.ctl, w.done
	w.mu.Unlock()

	close(ctl)
	<-done

	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()
}

// run is the outer reconnect loop: open → serve until the connection ends
// → backoff → repeat, until ctl is closed. Exactly one run goroutine exists
// per Start/Stop cycle.
func (w *Worker) run(ctl <-chan struct{}, done chan struct{}) {
	defer close(done)

	first := true
	for {
		select {
		case <-ctl:
			return
		default:
		}

		if !first {
			w.mu.Lock()
			w.reconnects++
			w.mu.Unlock()
		}
		first = false

		delay := w.openAndServe(ctl)

		select {
		case <-ctl:
			return
		case <-time.After(delay):
		}
	}
}

// openAndServe opens the input once, serves it until EOF/error/cancel, and
// returns the backoff delay the outer loop should wait before the next
// attempt. It never returns an error directly — all failure handling is
// local, per spec.md §7's "no error type crosses a thread boundary".
func (w *Worker) openAndServe(ctl <-chan struct{}) time.Duration {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctl:
			cancel()
		case <-stopWatch:
		}
	}()

	rc, err := openInput(ctx, w.spec.URL)
	if err != nil {
		w.setLastError("open failed")
		return openRetryDelay
	}
	defer rc.Close()

	w.resetForNewConnection()

	demux := mpegts.NewDemuxer(ctx, rc, mpegts.DemuxerOptPacketObserver(w.onRawPacket))

	for {
		select {
		case <-ctl:
			return 0
		default:
		}

		data, err := demux.NextData()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return 0
			}
			// EOF and every other read/network error share the same
			// short reconnect delay, per spec.md §4.4 step 4/§7.
			return eofRetryDelay
		}

		w.handleDemuxerData(data)
	}
}

// resetForNewConnection reinitializes per-connection measurement state.
// cc_errors itself (the lifetime total) is left untouched — only the
// per-PID validity map and the CC error window are cleared — preserving
// spec.md §3's "cc_errors monotonically non-decreasing for the lifetime of
// a worker" invariant across reconnects within the same Worker.
func (w *Worker) resetForNewConnection() {
	w.cc.Reset()
	w.bitrate = metrics.NewBitrateAccumulator()

	now := w.clockMs()

	w.mu.Lock()
	w.inputFPS = w.resolveInputFPS()
	w.decodeSampleStart = now
	w.decodeSampleCount = 0
	if w.decodeEmaRaw <= 0 {
		w.decodeEmaRaw = w.decoder.Observe(w.inputFPS)
	}
	w.sid, w.pmtPID, w.pcrPID, w.videoPID = -1, -1, -1, -1
	w.audioPIDs = nil
	w.programDiscovered = false
	w.serviceName = w.spec.ServiceNameHint
	w.lastError = ""
	w.state = StateRunning
	w.bitrateKbps, w.videoKbps, w.audioKbps = 0, 0, 0
	w.rateMode = "VBR"
	w.mu.Unlock()
}

func (w *Worker) resolveInputFPS() float64 {
	if w.spec.ExpectedFPS > 0 {
		return w.spec.ExpectedFPS
	}
	return defaultInputFPS
}

// onRawPacket is the demuxer's per-packet hook: every valid TS packet, in
// arrival order, before any PSI/PES reassembly. It drives the continuity
// tracker and the bitrate accumulator — the two components spec.md §4.1/
// §4.2/§4.3 describe as operating on raw packets, independent of whatever
// the demuxer does with them afterward.
func (w *Worker) onRawPacket(pkt *mpegts.Packet) {
	now := w.clockMs()
	w.cc.Observe(pkt.Header, now)

	w.mu.Lock()
	videoPID := w.videoPID
	audioPIDs := w.audioPIDs
	w.mu.Unlock()

	isVideo := videoPID >= 0 && int(pkt.Header.PID) == videoPID
	isAudio := false
	if !isVideo {
		for _, p := range audioPIDs {
			if int(pkt.Header.PID) == p {
				isAudio = true
				break
			}
		}
	}
	switch {
	case isVideo:
		w.bitrate.AddVideoBytes(mpegts.PacketSize, now)
	case isAudio:
		w.bitrate.AddAudioBytes(mpegts.PacketSize, now)
	default:
		w.bitrate.AddOtherBytes(mpegts.PacketSize, now)
	}

	rateMode := w.bitrate.RateMode()
	if rateMode == "UNKNOWN" {
		rateMode = "VBR"
	}

	w.mu.Lock()
	w.bytesRecv += mpegts.PacketSize
	w.packetsRecv++
	w.ccErrors = w.cc.TotalErrors()
	w.ccErrorsPerMin = w.cc.ErrorsPerMinute(now)
	w.bitrateKbps = w.bitrate.TotalKbps()
	w.videoKbps = w.bitrate.VideoKbps()
	w.audioKbps = w.bitrate.AudioKbps()
	w.rateMode = rateMode
	w.mu.Unlock()
}

func (w *Worker) handleDemuxerData(data *mpegts.DemuxerData) {
	switch {
	case data.PAT != nil:
		w.handlePAT(data.PAT)
	case data.PMT != nil && data.FirstPacket != nil:
		w.handlePMT(data.FirstPacket.Header.PID, data.PMT)
	case data.PES != nil && data.FirstPacket != nil:
		w.handlePES(data.FirstPacket.Header.PID)
	}
}

// handlePAT records the first declared program's SID and PMT PID, matching
// spec.md §4.4's "take the first declared program". Later PATs are ignored
// once a program has been chosen, mirroring the original's one-shot
// probe_program_info.
func (w *Worker) handlePAT(pat *mpegts.PATData) {
	if len(pat.Programs) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pmtPID != -1 {
		return
	}
	prog := pat.Programs[0]
	w.sid = int(prog.ProgramNumber)
	w.pmtPID = int(prog.ProgramMapID)
}

// handlePMT enumerates the chosen program's elementary streams once its PMT
// arrives: PCR PID, the first video PID, and the ordered audio PIDs,
// matching spec.md §4.4's program/PID discovery rules.
func (w *Worker) handlePMT(pid uint16, pmt *mpegts.PMTData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.programDiscovered || w.pmtPID == -1 || int(pid) != w.pmtPID {
		return
	}

	w.pcrPID = int(pmt.PCRPID)
	videoPID := -1
	var audioPIDs []int
	for _, es := range pmt.ElementaryStreams {
		if videoPID == -1 && mpegts.IsVideoStreamType(es.StreamType) {
			videoPID = int(es.ElementaryPID)
			continue
		}
		if mpegts.IsAudioStreamType(es.StreamType) {
			audioPIDs = append(audioPIDs, int(es.ElementaryPID))
		}
	}
	w.videoPID = videoPID
	w.audioPIDs = audioPIDs
	w.programDiscovered = true
}

// handlePES counts one decoded frame for every complete PES unit observed
// on the selected video PID — this repo's decode-probe, per SPEC_FULL.md
// §12 ("one complete reassembled PES unit = one decoded frame").
func (w *Worker) handlePES(pid uint16) {
	w.mu.Lock()
	onVideoPID := w.videoPID >= 0 && int(pid) == w.videoPID
	w.mu.Unlock()
	if !onVideoPID {
		return
	}
	w.onVideoFrameDecoded()
}

// onVideoFrameDecoded folds one decoded frame into the EWMA sampler,
// matching Stream.cpp's on_video_frame_decoded: accumulate a frame count,
// and once >=1000ms have elapsed since the sample window started, fold the
// instantaneous rate into the smoother with alpha=0.25.
func (w *Worker) onVideoFrameDecoded() {
	now := w.clockMs()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.decodeSampleCount++
	w.lastFrameAbsMs = now
	w.haveDecodedFrame = true

	elapsed := now - w.decodeSampleStart
	if elapsed >= 1000 {
		dt := float64(elapsed) / 1000.0
		inst := float64(w.decodeSampleCount) / dt
		w.decodeEmaRaw = w.decoder.Observe(inst)
		w.decodeSampleCount = 0
		w.decodeSampleStart = now
	}
}

func (w *Worker) setLastError(msg string) {
	w.mu.Lock()
	w.lastError = msg
	w.state = StateError
	w.mu.Unlock()
}

// SetStatus records the supervisor's latest derived status for this stream.
// Stats() overlays it; spec.md keeps status/status_reason as supervisor-
// computed fields on an otherwise worker-owned record (§3, §4.5).
func (w *Worker) SetStatus(status Status, reason string) {
	w.mu.Lock()
	w.status = status
	w.statusReason = reason
	w.mu.Unlock()
}

// Stats returns a consistent, copy-safe snapshot of the worker's current
// measurements, applying the reporting rules in spec.md §4.4: decode_fps is
// clamped to [0, input_fps] when input_fps>0, and rate_mode defaults to
// "VBR" until classification has enough samples (already folded in by
// onRawPacket).
func (w *Worker) Stats() Stats {
	now := w.clockMs()

	w.mu.Lock()
	defer w.mu.Unlock()

	decodeFPS := w.decodeEmaRaw
	if w.inputFPS > 0 {
		if decodeFPS > w.inputFPS {
			decodeFPS = w.inputFPS
		}
		if decodeFPS < 0 {
			decodeFPS = 0
		}
	} else if decodeFPS < 0 {
		decodeFPS = 0
	}

	audioPIDs := make([]int, len(w.audioPIDs))
	copy(audioPIDs, w.audioPIDs)

	var uptimeMs int64
	if !w.startedAt.IsZero() {
		uptimeMs = time.Since(w.startedAt).Milliseconds()
	}

	var lastFrameAgeMs int64
	if w.haveDecodedFrame {
		lastFrameAgeMs = now - w.lastFrameAbsMs
		if lastFrameAgeMs < 0 {
			lastFrameAgeMs = 0
		}
	}

	return Stats{
		Name:            w.spec.Name,
		URL:             w.spec.URL,
		Running:         w.running.Load(),
		LastError:       w.lastError,
		InputFPS:        w.inputFPS,
		DecodeFPS:       decodeFPS,
		RenderFPS:       0,
		BitrateKbps:     w.bitrateKbps,
		VideoKbps:       w.videoKbps,
		AudioKbps:       w.audioKbps,
		RateMode:        w.rateMode,
		Decoder:         w.decoderLabel,
		SID:             w.sid,
		PMTPID:          w.pmtPID,
		PCRPID:          w.pcrPID,
		VideoPID:        w.videoPID,
		AudioPIDs:       audioPIDs,
		ServiceName:     w.serviceName,
		CCErrors:        w.ccErrors,
		CCErrorsPerMin:  w.ccErrorsPerMin,
		Status:          w.status,
		StatusReason:    w.statusReason,
		BytesReceived:   w.bytesRecv,
		PacketsReceived: w.packetsRecv,
		ReconnectCount:  w.reconnects,
		UptimeMs:        uptimeMs,
		LastFrameAgeMs:  lastFrameAgeMs,
	}
}
