package mpegts

// ContinuityTracker counts continuity-counter errors per PID and keeps a
// sliding one-minute window of error timestamps so callers can read an
// errors-per-minute rate. It is independent of the packetAccumulator's own
// discontinuity handling, which exists only to keep PSI/PES reassembly
// correct; this tracker exists purely to measure stream health.
type ContinuityTracker struct {
	pids   map[uint16]*ccPidState
	window []int64 // ms timestamps of CC errors, oldest first
	total  uint64
}

type ccPidState struct {
	valid  bool
	lastCC uint8
}

// continuityWindowMs is the horizon for ErrorsPerMinute.
const continuityWindowMs = 60000

// NewContinuityTracker returns an empty tracker.
func NewContinuityTracker() *ContinuityTracker {
	return &ContinuityTracker{pids: make(map[uint16]*ccPidState)}
}

// Observe feeds one packet header's PID/CC/discontinuity state into the
// tracker at time nowMs (caller-supplied monotonic milliseconds). It reports
// whether this packet represents a continuity error.
//
// Rules, matching the original program's per-PID CC bookkeeping:
//   - Packets without a payload never advance or check CC (AFC values that
//     carry adaptation-field-only data don't increment the encoder's CC).
//   - A signaled discontinuity indicator reinitializes tracking for that PID
//     without counting an error, exactly like first contact with a PID.
//   - Otherwise the expected CC is (last+1) mod 16; any other value is an
//     error, but the observed CC is still recorded so a single bad packet
//     doesn't cascade into spurious errors for every subsequent packet.
func (t *ContinuityTracker) Observe(h PacketHeader, nowMs int64) bool {
	if !h.HasPayload {
		return false
	}

	st, ok := t.pids[h.PID]
	if !ok {
		st = &ccPidState{}
		t.pids[h.PID] = st
	}

	if !st.valid || h.DiscontinuityIndicator {
		st.valid = true
		st.lastCC = h.ContinuityCounter
		return false
	}

	expected := (st.lastCC + 1) & 0x0F
	isError := h.ContinuityCounter != expected
	st.lastCC = h.ContinuityCounter

	if isError {
		t.total++
		t.window = append(t.window, nowMs)
		t.trim(nowMs)
	}

	return isError
}

func (t *ContinuityTracker) trim(nowMs int64) {
	cut := 0
	for cut < len(t.window) && nowMs-t.window[cut] > continuityWindowMs {
		cut++
	}
	if cut > 0 {
		t.window = t.window[cut:]
	}
}

// ErrorsPerMinute returns the number of CC errors observed within the
// trailing 60 seconds of nowMs.
func (t *ContinuityTracker) ErrorsPerMinute(nowMs int64) int {
	t.trim(nowMs)
	return len(t.window)
}

// TotalErrors returns the lifetime count of CC errors across all PIDs.
func (t *ContinuityTracker) TotalErrors() uint64 {
	return t.total
}

// Reset clears all per-PID state, forcing the next packet on every PID to be
// treated as first contact. Used when a StreamWorker reopens its input.
func (t *ContinuityTracker) Reset() {
	t.pids = make(map[uint16]*ccPidState)
	t.window = nil
}
