package metrics

import "testing"

func TestFrameWindow_CountAndTrim(t *testing.T) {
	t.Parallel()
	w := NewFrameWindow(10000)
	for ms := int64(0); ms < 10; ms++ {
		w.Add(ms * 1000)
	}
	if got := w.Count(9000); got != 10 {
		t.Errorf("Count(9000) = %d, want 10", got)
	}
	if got := w.Count(20000); got != 0 {
		t.Errorf("Count(20000) = %d, want 0 (all samples now older than the 10s horizon)", got)
	}
}

func TestFrameWindow_FPS(t *testing.T) {
	t.Parallel()
	w := NewFrameWindow(10000)
	for i := 0; i < 250; i++ {
		w.Add(int64(i) * 40) // 25 fps cadence over 10s
	}
	fps := w.FPS(9960)
	if fps < 24 || fps > 26 {
		t.Errorf("FPS = %.2f, want ~25", fps)
	}
}

func TestFrameWindow_Empty(t *testing.T) {
	t.Parallel()
	w := NewFrameWindow(10000)
	if got := w.Count(0); got != 0 {
		t.Errorf("Count on empty window = %d, want 0", got)
	}
	if got := w.FPS(0); got != 0 {
		t.Errorf("FPS on empty window = %v, want 0", got)
	}
}

func TestDecodeFPSSmoother_EWMA(t *testing.T) {
	t.Parallel()
	s := NewDecodeFPSSmoother()
	first := s.Observe(30)
	if first != 30 {
		t.Errorf("first observation should seed the value: got %v, want 30", first)
	}
	second := s.Observe(10)
	want := 0.25*10 + 0.75*30
	if second != want {
		t.Errorf("Observe(10) = %v, want %v", second, want)
	}
	if s.Value() != second {
		t.Errorf("Value() = %v, want %v", s.Value(), second)
	}
}

func TestBitrateAccumulator_RollsBucketsAndClassifies(t *testing.T) {
	t.Parallel()
	b := NewBitrateAccumulator()
	nowMs := int64(0)
	for i := 0; i < 8; i++ {
		b.AddVideoBytes(100000, nowMs) // 800kbit/s, one call per exact 1s tick
		nowMs += 1000
	}

	if b.TotalKbps() <= 0 {
		t.Error("TotalKbps should be positive after several buckets")
	}
	if got := b.VideoKbps(); got != b.TotalKbps() {
		t.Errorf("VideoKbps() = %v, want it to match TotalKbps() %v since every packet was video", got, b.TotalKbps())
	}
	if mode := b.RateMode(); mode != "CBR" {
		t.Errorf("RateMode() = %q, want CBR for a constant bitrate sequence", mode)
	}
}

func TestBitrateAccumulator_OtherPacketsCountTowardTotal(t *testing.T) {
	t.Parallel()
	withOther := NewBitrateAccumulator()
	withoutOther := NewBitrateAccumulator()
	nowMs := int64(0)
	for i := 0; i < 3; i++ {
		withOther.AddVideoBytes(1000, nowMs)
		withOther.AddOtherBytes(5000, nowMs)
		withoutOther.AddVideoBytes(1000, nowMs)
		nowMs += 1000
	}
	withOther.AddOtherBytes(0, nowMs)
	withoutOther.AddVideoBytes(0, nowMs)

	if withOther.TotalKbps() <= withoutOther.TotalKbps() {
		t.Errorf("TotalKbps with PSI/null packets folded in (%v) should exceed video-only total (%v)",
			withOther.TotalKbps(), withoutOther.TotalKbps())
	}
}

func TestBitrateAccumulator_DividesByActualElapsedTime(t *testing.T) {
	t.Parallel()
	b := NewBitrateAccumulator()
	b.AddVideoBytes(100000, 0) // 800000 bits
	// Roll lands 2s later, not the usual 1s -> kbps must be halved, not
	// computed as if exactly one second had passed.
	b.AddVideoBytes(0, 2000)
	if got := b.TotalKbps(); got != 400 {
		t.Errorf("TotalKbps() = %v, want 400 (800000 bits / 1000 / 2.0s)", got)
	}
}

func TestBitrateAccumulator_UnknownBeforeEnoughSamples(t *testing.T) {
	t.Parallel()
	b := NewBitrateAccumulator()
	b.AddVideoBytes(1000, 0)
	b.AddVideoBytes(1000, 1000)
	if mode := b.RateMode(); mode != "UNKNOWN" {
		t.Errorf("RateMode() = %q, want UNKNOWN with <6 samples", mode)
	}
}

func TestBitrateAccumulator_VBRWhenVolatile(t *testing.T) {
	t.Parallel()
	b := NewBitrateAccumulator()
	nowMs := int64(0)
	rates := []int{100000, 50000, 200000, 60000, 300000, 40000, 250000, 45000}
	for _, bytes := range rates {
		b.AddVideoBytes(bytes, nowMs)
		nowMs += 1000
	}
	if mode := b.RateMode(); mode != "VBR" {
		t.Errorf("RateMode() = %q, want VBR for a volatile sequence", mode)
	}
}
