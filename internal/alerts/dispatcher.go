// Package alerts implements the throttled webhook dispatcher spec.md §4.6
// describes: a process-wide cooldown ledger keyed by (title, severity), and
// a single-timeout-budget HTTP(S) POST of a small JSON payload. Grounded on
// original_source/src/Alerts.cpp.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Severity is the alert's urgency, carried verbatim into the webhook body.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// sourceLabel is the constant "source" field every payload built by Send
// carries, matching the original's hardcoded "MultiScreenSystem".
const sourceLabel = "MultiScreenSystem"

// defaultTimeout is used when a Dispatcher is constructed with timeoutMs<=0.
const defaultTimeout = 2000 * time.Millisecond

type alertKey struct {
	title    string
	severity string
}

// Dispatcher is a thread-safe, cooldown-throttled webhook sender. One
// Dispatcher is meant to live for the process lifetime and be shared by the
// supervisor's monitor tick and any metrics.Aggregator instances, matching
// spec.md §9's "construct one instance at process start, pass a handle in"
// guidance for the original's process-global singletons.
type Dispatcher struct {
	log *slog.Logger

	enabled bool
	url     string
	timeout time.Duration

	cooldown time.Duration

	mu               sync.Mutex
	lastSentMs       map[alertKey]int64
	cooldownOverride time.Duration // -1 means "not overridden"

	httpClient *http.Client
}

// Config carries the webhook settings a Dispatcher needs, mirroring
// spec.md §4.7's alerts.webhook.* and alerts.cooldown_sec fields.
type Config struct {
	Enabled      bool
	URL          string
	TimeoutMs    int
	CooldownSec  int
}

// New constructs a Dispatcher from cfg. If log is nil, slog.Default() is
// used.
func New(cfg Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	cooldown := 60 * time.Second
	if cfg.CooldownSec >= 0 {
		cooldown = time.Duration(cfg.CooldownSec) * time.Second
	}
	return &Dispatcher{
		log:              log.With("component", "alert-dispatcher"),
		enabled:          cfg.Enabled,
		url:              cfg.URL,
		timeout:          timeout,
		cooldown:         cooldown,
		lastSentMs:       make(map[alertKey]int64),
		cooldownOverride: -1,
		httpClient:       &http.Client{},
	}
}

// SetCooldownOverride forces the dispatcher's cooldown regardless of its
// configured value; a negative duration restores the configured value.
// Matches spec.md §4.6's "Severity cooldown override" (used by tests to
// exercise the literal cooldown scenario in spec.md §8 deterministically).
func (d *Dispatcher) SetCooldownOverride(cooldown time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cooldownOverride = cooldown
}

// Send dispatches an alert using the current wall-clock time. See SendAt.
func (d *Dispatcher) Send(title, message, severity, source string) error {
	return d.SendAt(title, message, severity, source, time.Now().UnixMilli())
}

// SendAt implements spec.md §4.6's send(title, message, severity, now_ms)
// procedure:
//  1. webhook disabled or URL empty => no-op success.
//  2. under cooldown for (title, severity) => suppressed success.
//  3. record the ledger entry, build the JSON body, POST it.
//
// source overrides the payload's "source" field when non-empty; an empty
// source yields "MultiScreenSystem", the original's hardcoded constant.
// metrics.Aggregator.PollAndAlert forwards its own caller's source string
// here. source is a parameter rather than a hardcoded literal so
// metrics.AlertSender's four-string-argument shape can be satisfied without
// a second adapter type.
func (d *Dispatcher) SendAt(title, message, severity, source string, nowMs int64) error {
	d.mu.Lock()
	if !d.enabled || d.url == "" {
		d.mu.Unlock()
		return nil
	}

	cooldown := d.cooldown
	if d.cooldownOverride >= 0 {
		cooldown = d.cooldownOverride
	}

	key := alertKey{title: title, severity: severity}
	if last, ok := d.lastSentMs[key]; ok {
		if nowMs-last < cooldown.Milliseconds() {
			d.mu.Unlock()
			return nil
		}
	}
	d.lastSentMs[key] = nowMs
	timeout := d.timeout
	webhookURL := d.url
	d.mu.Unlock()

	if source == "" {
		source = sourceLabel
	}
	body := map[string]string{
		"title":    title,
		"message":  message,
		"severity": severity,
		"source":   source,
	}
	return d.post(webhookURL, body, timeout)
}

// post marshals body and POSTs it. See postJSON for the transport details.
func (d *Dispatcher) post(rawURL string, body any, timeout time.Duration) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("alerts: encode payload: %w", err)
	}
	return d.postJSON(rawURL, payload, timeout)
}

// postJSON performs the actual HTTP(S) POST with a single combined timeout
// budget (spec.md §4.6 step 6: "connect/read/write timeouts equal to
// configured webhook timeout"). No lock is held during this call — spec.md
// §5 requires network I/O never happen under the ledger's mutex.
func (d *Dispatcher) postJSON(rawURL string, payload []byte, timeout time.Duration) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("alerts: invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("alerts: unsupported webhook scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("alerts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.log.Warn("webhook post failed", "url", rawURL, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alerts: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
