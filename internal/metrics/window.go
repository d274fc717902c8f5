// Package metrics implements the sliding-window counters, EWMA smoothing,
// and bitrate classification used to judge a stream's health, plus an
// independent global Aggregator modeled on the original monitoring
// program's standalone metrics collector.
package metrics

import "math"

// FrameWindow is a bounded-horizon, monotonic-timestamp event counter. It
// answers "how many events in the last N ms" without retaining more history
// than that horizon requires.
type FrameWindow struct {
	horizonMs int64
	events    []int64
}

// NewFrameWindow returns a window that only retains events within horizonMs
// of the most recently observed timestamp.
func NewFrameWindow(horizonMs int64) *FrameWindow {
	return &FrameWindow{horizonMs: horizonMs}
}

// Add records an event at nowMs and trims anything older than the horizon.
func (w *FrameWindow) Add(nowMs int64) {
	w.events = append(w.events, nowMs)
	w.trim(nowMs)
}

func (w *FrameWindow) trim(nowMs int64) {
	cut := 0
	for cut < len(w.events) && nowMs-w.events[cut] > w.horizonMs {
		cut++
	}
	if cut > 0 {
		w.events = w.events[cut:]
	}
}

// Count returns the number of events within the horizon of nowMs.
func (w *FrameWindow) Count(nowMs int64) int {
	w.trim(nowMs)
	return len(w.events)
}

// FPS returns the event rate, in events/second, over the horizon. Uses the
// configured horizon as the denominator rather than the observed span, so a
// window that just started filling doesn't report an inflated rate.
func (w *FrameWindow) FPS(nowMs int64) float64 {
	count := w.Count(nowMs)
	if count == 0 || w.horizonMs <= 0 {
		return 0
	}
	return float64(count) / (float64(w.horizonMs) / 1000.0)
}

// DecodeFPSSmoother applies exponential smoothing to an instantaneous
// decoded-frames-per-second reading, matching the original program's
// alpha=0.25 EWMA so a single slow interval doesn't immediately tank the
// reported rate.
type DecodeFPSSmoother struct {
	alpha       float64
	value       float64
	initialized bool
}

// NewDecodeFPSSmoother returns a smoother using the standard alpha=0.25.
func NewDecodeFPSSmoother() *DecodeFPSSmoother {
	return &DecodeFPSSmoother{alpha: 0.25}
}

// Observe folds instantFPS into the running EWMA and returns the new value.
func (s *DecodeFPSSmoother) Observe(instantFPS float64) float64 {
	if !s.initialized {
		s.value = instantFPS
		s.initialized = true
		return s.value
	}
	s.value = s.alpha*instantFPS + (1-s.alpha)*s.value
	return s.value
}

// Value returns the current smoothed value without observing a new sample.
func (s *DecodeFPSSmoother) Value() float64 {
	return s.value
}

const bitrateBucketMs = 1000

// BitrateAccumulator keeps a single running bit total across every packet
// type it's fed (video, audio, or other), and on each bucket roll divides
// that total by the actual elapsed time to get one kbps figure. video_kbps
// and audio_kbps are both just that one figure, assigned to whichever of
// them matches the packet that triggered the roll — they are never tracked
// as independently-summed rates, so a stream whose last packet before a
// roll was audio reports that roll's kbps as the audio rate and leaves the
// video rate at its previous value.
type BitrateAccumulator struct {
	started       bool
	bucketStartMs int64
	totalBits     int64

	totalKbps float64
	videoKbps float64
	audioKbps float64
	samples   []float64 // trailing total-kbps samples, most recent last
}

// NewBitrateAccumulator returns an empty accumulator.
func NewBitrateAccumulator() *BitrateAccumulator {
	return &BitrateAccumulator{}
}

// AddVideoBytes folds n bytes observed at nowMs, on the selected video PID,
// into the running total and rolls the bucket if enough time has passed.
func (b *BitrateAccumulator) AddVideoBytes(n int, nowMs int64) {
	b.add(n, true, false, nowMs)
}

// AddAudioBytes is AddVideoBytes for a selected audio PID.
func (b *BitrateAccumulator) AddAudioBytes(n int, nowMs int64) {
	b.add(n, false, true, nowMs)
}

// AddOtherBytes folds in bytes from a packet that's neither the video PID
// nor a selected audio PID (PAT, PMT, PCR, null packets, ...). These still
// count toward the bit total but never reclassify video_kbps or audio_kbps.
func (b *BitrateAccumulator) AddOtherBytes(n int, nowMs int64) {
	b.add(n, false, false, nowMs)
}

func (b *BitrateAccumulator) add(n int, isVideo, isAudio bool, nowMs int64) {
	if !b.started {
		b.started = true
		b.bucketStartMs = nowMs
	}
	b.totalBits += int64(n) * 8
	b.rollIfNeeded(isVideo, isAudio, nowMs)
}

func (b *BitrateAccumulator) rollIfNeeded(isVideo, isAudio bool, nowMs int64) {
	elapsedMs := nowMs - b.bucketStartMs
	if elapsedMs < bitrateBucketMs {
		return
	}

	dt := float64(elapsedMs) / 1000.0
	kbps := math.Round(float64(b.totalBits) / 1000.0 / dt)

	b.totalKbps = kbps
	if isVideo {
		b.videoKbps = kbps
	}
	if isAudio {
		b.audioKbps = kbps
	}

	const maxSamples = 6
	b.samples = append(b.samples, kbps)
	if len(b.samples) > maxSamples {
		b.samples = b.samples[len(b.samples)-maxSamples:]
	}

	b.totalBits = 0
	b.bucketStartMs = nowMs
}

// VideoKbps returns the rate of the most recent roll classified as video.
func (b *BitrateAccumulator) VideoKbps() float64 { return b.videoKbps }

// AudioKbps returns the rate of the most recent roll classified as audio.
func (b *BitrateAccumulator) AudioKbps() float64 { return b.audioKbps }

// TotalKbps returns the most recently completed bucket's combined rate,
// computed across every packet type observed during that bucket.
func (b *BitrateAccumulator) TotalKbps() float64 { return b.totalKbps }

// RateMode classifies the bitrate pattern as "CBR", "VBR", or "UNKNOWN" (not
// enough samples yet). A stream is judged CBR when its trailing 6 one-second
// samples average above 1 kbps and the most recent sample sits within 10% of
// that average.
func (b *BitrateAccumulator) RateMode() string {
	const minSamples = 6
	if len(b.samples) < minSamples {
		return "UNKNOWN"
	}
	var sum float64
	for _, s := range b.samples {
		sum += s
	}
	mean := sum / float64(len(b.samples))
	if mean <= 1 {
		return "VBR"
	}
	last := b.samples[len(b.samples)-1]
	if math.Abs(last-mean)/mean < 0.10 {
		return "CBR"
	}
	return "VBR"
}
