package alerts

import (
	"encoding/json"
	"fmt"
)

// StreamStatusMetrics is the "metrics" sub-object of the stream_status
// webhook payload (spec.md §6, second shape).
type StreamStatusMetrics struct {
	InputFPS    float64 `json:"input_fps"`
	DecodeFPS   float64 `json:"decode_fps"`
	FPSRatio    float64 `json:"fps_ratio"`
	BitrateKbps int     `json:"bitrate_kbps"`
	StallMs     int     `json:"stall_ms"`
}

type streamStatusPayload struct {
	Event   string              `json:"event"`
	Channel string              `json:"channel"`
	Service string              `json:"service"`
	Status  string              `json:"status"`
	Metrics StreamStatusMetrics `json:"metrics"`
	TSMs    int64               `json:"ts"`
}

// SendStreamStatus POSTs the second webhook shape spec.md §6 describes for
// the supervisor's own status-transition events. It is a genuinely separate
// function from Send/SendAt: it shares this Dispatcher's HTTP transport and
// timeout but not its (title, severity) cooldown ledger — transitions are
// already debounced by the monitor only calling this on an actual status
// change, matching original_source/src/StreamManager.cpp's anonymous
// send_webhook, which has no cooldown of its own either.
func (d *Dispatcher) SendStreamStatus(channel, service, status string, metrics StreamStatusMetrics, nowMs int64) error {
	d.mu.Lock()
	enabled, webhookURL, timeout := d.enabled, d.url, d.timeout
	d.mu.Unlock()

	if !enabled || webhookURL == "" {
		return nil
	}

	payload := streamStatusPayload{
		Event:   "stream_status",
		Channel: channel,
		Service: service,
		Status:  status,
		Metrics: metrics,
		TSMs:    nowMs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alerts: encode stream_status payload: %w", err)
	}
	return d.postJSON(webhookURL, body, timeout)
}
