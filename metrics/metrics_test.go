package metrics

import (
	"context"
	"testing"
)

func TestNewRegistersCounters(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.DownloadsTotal == nil || m.LedgerWritesTotal == nil || m.ResolutionsTotal == nil {
		t.Fatalf("expected all counters to be initialised, got %+v", m)
	}
}

func TestIncrementMethodsToleratesZeroValue(t *testing.T) {
	var m Metrics
	ctx := context.Background()

	// A zero-value Metrics (e.g. before New succeeds) must not panic when
	// the caller increments it, matching the teacher's nil-tolerant counter
	// methods.
	m.IncrementDownload(ctx, "git", 1024, false)
	m.IncrementHashFailure(ctx, "git")
	m.IncrementResolution(ctx, 1, 1)
	m.IncrementCompression(ctx, "zstd", 512)
	m.IncrementLedgerWrite(ctx, true)
}
