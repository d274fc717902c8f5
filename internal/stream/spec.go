// Package stream implements the per-source ingest/decode-probe engine:
// opening a transport URL, demuxing it shallowly enough to count decoded
// frames and measure bitrate, and exposing a live StreamStats snapshot.
package stream

// Spec describes one stream to monitor. It is the caller-supplied
// configuration a Worker is built from — either loaded from streams.json or
// constructed directly by an embedder.
type Spec struct {
	// Name uniquely identifies the stream within a Supervisor.
	Name string `json:"name"`
	// URL is the input transport URL. Supported schemes: http, https, udp,
	// rtp, srt.
	URL string `json:"url"`
	// DecoderHint, if non-empty, is reported verbatim as StreamStats.Decoder.
	// Left empty, the worker reports "CPU" (this repo never engages a real
	// hardware decode path).
	DecoderHint string `json:"decoderHint,omitempty"`
	// ExpectedFPS, if > 0, substitutes for the worker's "declared frame
	// rate" step. Left at 0, the worker always falls back to 25.0.
	ExpectedFPS float64 `json:"expectedFps,omitempty"`
	// ServiceNameHint, if non-empty, is copied into StreamStats.ServiceName
	// once the program is discovered. This repo does not parse SDT, so it
	// has no other way to learn a service name.
	ServiceNameHint string `json:"serviceNameHint,omitempty"`
}

// Validate reports whether the spec has the minimum fields a Worker needs.
func (s Spec) Validate() error {
	if s.Name == "" {
		return errEmptyName
	}
	if s.URL == "" {
		return errEmptyURL
	}
	return nil
}
