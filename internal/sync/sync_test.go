package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	ms := newMockStore()
	ms.add(1, "climate", time.Now().UTC())

	dest := &mockDestination{}
	sched := NewScheduler(ms, []Destination{dest}, 50*time.Millisecond, 0, testLogger())
	sched.Start()

	// Wait for at least the initial sync + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}

	lines := nonEmptyLines(string(data))
	// 1 header + 1 search + 1 top query = 3
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(newMockStore(), nil, time.Minute, 0, testLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSchedulerMultipleDestinations(t *testing.T) {
	ms := newMockStore()
	failing := &mockDestination{err: errors.New("bucket gone")}
	ok := &mockDestination{}

	sched := NewScheduler(ms, []Destination{failing, ok}, time.Minute, 0, testLogger())
	if failed := sched.SyncOnce(context.Background()); failed != 1 {
		t.Fatalf("SyncOnce failed = %d, want 1", failed)
	}
	if failing.writes.Load() != 1 || ok.writes.Load() != 1 {
		t.Fatalf("writes = %d/%d, want 1/1", failing.writes.Load(), ok.writes.Load())
	}
}

func TestSchedulerWindow(t *testing.T) {
	ms := newMockStore()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ms.add(1, "stale", now.Add(-72*time.Hour))
	ms.add(2, "fresh", now.Add(-time.Hour))

	dest := &mockDestination{}
	sched := NewScheduler(ms, []Destination{dest}, time.Minute, 24*time.Hour, testLogger())
	sched.now = func() time.Time { return now }
	sched.SyncOnce(context.Background())

	data, _ := dest.last.Load().([]byte)
	if s := string(data); strings.Contains(s, "stale") || !strings.Contains(s, "fresh") {
		t.Fatalf("export ignored the window:\n%s", s)
	}
}

func TestSchedulerExportError(t *testing.T) {
	ms := newMockStore()
	ms.listErr = errors.New("db down")
	dest := &mockDestination{}

	sched := NewScheduler(ms, []Destination{dest}, time.Minute, 0, testLogger())
	if failed := sched.SyncOnce(context.Background()); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if dest.writes.Load() != 0 {
		t.Error("destination should not be written when the export fails")
	}
}

func TestS3ObjectKey(t *testing.T) {
	day := time.Date(2026, 5, 1, 23, 30, 0, 0, time.FixedZone("x", -2*3600))
	d := &S3Destination{key: "exports/{date}/search-log.jsonl", now: func() time.Time { return day }}
	if got := d.ObjectKey(); got != "exports/2026-05-02/search-log.jsonl" {
		t.Errorf("ObjectKey = %q", got)
	}
	d.key = "search-log.jsonl"
	if got := d.ObjectKey(); got != "search-log.jsonl" {
		t.Errorf("ObjectKey = %q", got)
	}
}

func TestNewS3Destination_RequiresBucket(t *testing.T) {
	if _, err := NewS3Destination(context.Background(), S3Config{Key: "k"}); err == nil {
		t.Error("expected error without bucket")
	}
}
