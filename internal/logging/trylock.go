// Package logging provides the reentrancy-safe slog.Handler spec.md §9
// asks for: a handler that drops a record rather than blocking when its
// lock is contended. Grounded on original_source/src/Logger.cpp/Logger.h,
// which guards every log() call with std::try_to_lock on a recursive mutex
// specifically to avoid self-deadlock when a log call originates from code
// that already holds a logger-adjacent lock.
package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const maxRecent = 1000

// Entry is one retained log record, matching original_source's LogEntry.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// TryLockHandler wraps another slog.Handler behind a non-blocking mutex.
// Handle drops the record silently when the lock is already held instead
// of waiting for it — do not replace TryLock with Lock; that reintroduces
// the reentrant-deadlock risk this type exists to avoid.
type TryLockHandler struct {
	next slog.Handler

	mu      sync.Mutex
	recent  []Entry
	dropped atomic.Uint64
}

// NewTryLockHandler wraps next. next itself must not call back into this
// handler while holding a lock of its own.
func NewTryLockHandler(next slog.Handler) *TryLockHandler {
	return &TryLockHandler{next: next}
}

// Enabled delegates to the wrapped handler without taking the lock; this
// mirrors the original, which only guards the write path, not level checks.
func (h *TryLockHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle attempts to record r. If the handler's lock is contended, the
// record is counted in Dropped() and discarded; the call never blocks.
func (h *TryLockHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.mu.TryLock() {
		h.dropped.Add(1)
		return nil
	}
	defer h.mu.Unlock()

	h.recent = append(h.recent, Entry{Time: r.Time, Level: r.Level, Message: r.Message})
	if len(h.recent) > maxRecent {
		h.recent = h.recent[len(h.recent)-maxRecent:]
	}

	return h.next.Handle(ctx, r)
}

// WithAttrs and WithGroup return a new TryLockHandler sharing this one's
// ring buffer, wrapping the attribute/group-scoped child of next.
func (h *TryLockHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TryLockHandler{next: h.next.WithAttrs(attrs), recent: h.recent}
}

func (h *TryLockHandler) WithGroup(name string) slog.Handler {
	return &TryLockHandler{next: h.next.WithGroup(name), recent: h.recent}
}

// Recent returns up to n of the most recently handled records, newest
// first. Returns nil without blocking if the lock is contended, matching
// getRecentLogs's try-lock-or-return-empty behavior.
func (h *TryLockHandler) Recent(n int) []Entry {
	if !h.mu.TryLock() {
		return nil
	}
	defer h.mu.Unlock()

	if n > len(h.recent) {
		n = len(h.recent)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = h.recent[len(h.recent)-1-i]
	}
	return out
}

// Dropped returns the number of records discarded so far due to lock
// contention.
func (h *TryLockHandler) Dropped() uint64 {
	return h.dropped.Load()
}
