package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestTryLockHandler_PassesThroughToNext(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewTryLockHandler(slog.NewTextHandler(&buf, nil))
	logger := slog.New(h)
	logger.Info("hello")

	if buf.Len() == 0 {
		t.Error("expected the wrapped handler to receive the record")
	}
}

func TestTryLockHandler_DropsRecordOnContention(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewTryLockHandler(slog.NewTextHandler(&buf, nil))

	h.mu.Lock() // simulate another goroutine already holding the lock
	err := h.Handle(context.Background(), slog.Record{Message: "dropped"})
	h.mu.Unlock()

	if err != nil {
		t.Errorf("Handle should never return an error on contention, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("expected the record to be dropped, not forwarded")
	}
	if h.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", h.Dropped())
	}
}

func TestTryLockHandler_RecentReturnsNewestFirst(t *testing.T) {
	t.Parallel()
	h := NewTryLockHandler(slog.NewTextHandler(&bytes.Buffer{}, nil))
	logger := slog.New(h)

	logger.Info("first")
	logger.Info("second")
	logger.Info("third")

	recent := h.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("len(Recent(2)) = %d, want 2", len(recent))
	}
	if recent[0].Message != "third" || recent[1].Message != "second" {
		t.Errorf("recent = %+v, want [third, second]", recent)
	}
}

func TestTryLockHandler_RecentReturnsNilOnContention(t *testing.T) {
	t.Parallel()
	h := NewTryLockHandler(slog.NewTextHandler(&bytes.Buffer{}, nil))

	h.mu.Lock()
	got := h.Recent(5)
	h.mu.Unlock()

	if got != nil {
		t.Errorf("Recent() under contention = %+v, want nil", got)
	}
}

func TestTryLockHandler_RingBufferCapsAtMaxRecent(t *testing.T) {
	t.Parallel()
	h := NewTryLockHandler(slog.NewTextHandler(&bytes.Buffer{}, nil))
	logger := slog.New(h)

	for i := 0; i < maxRecent+10; i++ {
		logger.Info("msg")
	}

	h.mu.Lock()
	got := len(h.recent)
	h.mu.Unlock()

	if got != maxRecent {
		t.Errorf("ring buffer size = %d, want %d", got, maxRecent)
	}
}
