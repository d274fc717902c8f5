// Package config loads the JSON settings and stream-list files spec.md §4.7
// and §6 describe. Grounded on original_source/src/Settings.cpp and
// original_source/include/Settings.h: malformed or missing files leave the
// returned Snapshot at its defaults rather than failing the caller.
package config

import (
	"encoding/json"
	"os"
)

// FPSThresholds holds the fps_ratio warn/crit levels the monitor tick
// compares decode_fps/input_fps against.
type FPSThresholds struct {
	WarnRatio float64 `json:"warn_ratio"`
	CritRatio float64 `json:"crit_ratio"`
}

// BitrateThresholds holds the bitrate_kbps warn/crit floors.
type BitrateThresholds struct {
	WarnKbps int `json:"warn_kbps"`
	CritKbps int `json:"crit_kbps"`
}

// StallThresholds holds the stall_ms warn/crit ceilings.
type StallThresholds struct {
	WarnMs int `json:"warn_ms"`
	CritMs int `json:"crit_ms"`
}

// Thresholds bundles the three independent threshold ladders the monitor
// tick evaluates (worst-wins; crit checked before warn).
type Thresholds struct {
	FPS     FPSThresholds     `json:"fps"`
	Bitrate BitrateThresholds `json:"bitrate"`
	Stall   StallThresholds   `json:"stall"`

	// DecodeFPSMin, BitrateDropPct and CCErrorsPerMin are the legacy
	// fields from the original UI schema. They are not consumed by the
	// monitor tick's own ladder but are preserved for callers that still
	// read them (back-compat getters below), matching Settings.h's
	// decode_fps_min()/bitrate_drop_pct()/cc_errors_per_min().
	DecodeFPSMin   *int `json:"decode_fps_min,omitempty"`
	BitrateDropPct *int `json:"bitrate_drop_pct,omitempty"`
	CCErrorsPerMin *int `json:"cc_errors_per_min,omitempty"`
}

// Webhook holds the alerts.webhook.* and alerts.cooldown_sec fields.
type Webhook struct {
	Enabled     bool   `json:"enabled"`
	URL         string `json:"url"`
	TimeoutMs   int    `json:"timeout_ms"`
	CooldownSec int    `json:"cooldown_sec"`
}

// Snapshot is the immutable, defaulted configuration the monitor tick and
// the alert dispatcher are built from. Zero value is not valid; use
// Default() or LoadSettings.
type Snapshot struct {
	Thresholds Thresholds `json:"thresholds"`
	Webhook    Webhook    `json:"webhook"`
}

// Default returns the snapshot spec.md §4.7 lists as the built-in defaults.
func Default() Snapshot {
	return Snapshot{
		Thresholds: Thresholds{
			FPS:     FPSThresholds{WarnRatio: 0.75, CritRatio: 0.50},
			Bitrate: BitrateThresholds{WarnKbps: 1500, CritKbps: 500},
			Stall:   StallThresholds{WarnMs: 1000, CritMs: 3000},
		},
		Webhook: Webhook{
			Enabled:     false,
			TimeoutMs:   2000,
			CooldownSec: 60,
		},
	}
}

// rawSettings mirrors the on-disk JSON shape, which nests alerts.webhook
// and alerts.cooldown_sec under a separate "alerts" object while thresholds
// sit at the top level — the UI schema Settings.cpp parses.
type rawSettings struct {
	Thresholds struct {
		FPS            *FPSThresholds     `json:"fps"`
		Bitrate        *BitrateThresholds `json:"bitrate"`
		Stall          *StallThresholds   `json:"stall"`
		DecodeFPSMin   *int               `json:"decode_fps_min"`
		BitrateDropPct *int               `json:"bitrate_drop_pct"`
		CCErrorsPerMin *int               `json:"cc_errors_per_min"`
	} `json:"thresholds"`
	Alerts struct {
		Webhook *struct {
			Enabled   *bool   `json:"enabled"`
			URL       *string `json:"url"`
			TimeoutMs *int    `json:"timeout_ms"`
		} `json:"webhook"`
		CooldownSec *int `json:"cooldown_sec"`
	} `json:"alerts"`
}

// LoadSettings reads and parses path, overlaying recognized fields onto
// Default(). A missing file or malformed JSON returns the defaults and a
// non-nil error; the error is informational only — per spec.md §4.7,
// "malformed JSON leaves defaults in place" is not itself a fatal condition
// for the caller.
func LoadSettings(path string) (Snapshot, error) {
	snap := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}

	// Seed the threshold objects with the defaults so a partially specified
	// object (e.g. only fps.warn_ratio) keeps the defaults of its other fields.
	var raw rawSettings
	fps, bitrate, stall := snap.Thresholds.FPS, snap.Thresholds.Bitrate, snap.Thresholds.Stall
	raw.Thresholds.FPS, raw.Thresholds.Bitrate, raw.Thresholds.Stall = &fps, &bitrate, &stall
	if err := json.Unmarshal(data, &raw); err != nil {
		return snap, err
	}

	if raw.Thresholds.FPS != nil {
		snap.Thresholds.FPS = clampFPS(*raw.Thresholds.FPS)
	}
	if raw.Thresholds.Bitrate != nil {
		snap.Thresholds.Bitrate = clampBitrate(*raw.Thresholds.Bitrate)
	}
	if raw.Thresholds.Stall != nil {
		snap.Thresholds.Stall = clampStall(*raw.Thresholds.Stall)
	}
	snap.Thresholds.DecodeFPSMin = raw.Thresholds.DecodeFPSMin
	snap.Thresholds.BitrateDropPct = raw.Thresholds.BitrateDropPct
	snap.Thresholds.CCErrorsPerMin = raw.Thresholds.CCErrorsPerMin

	if raw.Alerts.Webhook != nil {
		w := raw.Alerts.Webhook
		if w.Enabled != nil {
			snap.Webhook.Enabled = *w.Enabled
		}
		if w.URL != nil {
			snap.Webhook.URL = *w.URL
		}
		if w.TimeoutMs != nil && *w.TimeoutMs >= 0 {
			snap.Webhook.TimeoutMs = *w.TimeoutMs
		}
	}
	if raw.Alerts.CooldownSec != nil && *raw.Alerts.CooldownSec >= 0 {
		snap.Webhook.CooldownSec = *raw.Alerts.CooldownSec
	}

	return snap, nil
}

func clampFPS(t FPSThresholds) FPSThresholds {
	t.WarnRatio = clampFloat(t.WarnRatio, 0, 10)
	t.CritRatio = clampFloat(t.CritRatio, 0, 10)
	return t
}

func clampBitrate(t BitrateThresholds) BitrateThresholds {
	if t.WarnKbps < 0 {
		t.WarnKbps = 0
	}
	if t.CritKbps < 0 {
		t.CritKbps = 0
	}
	return t
}

func clampStall(t StallThresholds) StallThresholds {
	if t.WarnMs < 0 {
		t.WarnMs = 0
	}
	if t.CritMs < 0 {
		t.CritMs = 0
	}
	return t
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DecodeFPSMin returns the legacy thresholds.decode_fps_min value, deriving
// it from fps.warn_ratio·30 when absent, matching Settings::decode_fps_min.
func (s Snapshot) DecodeFPSMin() int {
	if s.Thresholds.DecodeFPSMin != nil {
		v := *s.Thresholds.DecodeFPSMin
		if v < 0 {
			return 0
		}
		return v
	}
	const refFPS = 30
	v := int(refFPS * s.Thresholds.FPS.WarnRatio)
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

// BitrateDropPct returns the legacy thresholds.bitrate_drop_pct value,
// clamped to [0,100]; 0 when absent.
func (s Snapshot) BitrateDropPct() int {
	if s.Thresholds.BitrateDropPct == nil {
		return 0
	}
	v := *s.Thresholds.BitrateDropPct
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// CCErrorsPerMin returns the legacy thresholds.cc_errors_per_min value; 0
// (disabled) when absent.
func (s Snapshot) CCErrorsPerMin() int {
	if s.Thresholds.CCErrorsPerMin == nil {
		return 0
	}
	v := *s.Thresholds.CCErrorsPerMin
	if v < 0 {
		return 0
	}
	return v
}
