package ledger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestLedger(t *testing.T) (*Ledger, func()) {
	t.Helper()
	ctx := context.Background()
	s, closer, err := NewStore(ctx, "sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	l, err := New(ctx, discardLogger(), s)
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	return l, func() { _ = closer() }
}

func TestTrackDerivesStatus(t *testing.T) {
	l, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	rec, err := l.Track(ctx, Progress{ID: "op-1", Kind: KindDownload, ComponentName: "git", Title: "install git"})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("expected pending, got %s", rec.Status)
	}

	rec, err = l.Track(ctx, Progress{ID: "op-1", Kind: KindDownload, ComponentName: "git", Title: "install git", ProgressPercent: 50})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Fatalf("expected running, got %s", rec.Status)
	}

	later := now.Add(10 * time.Second)
	l.now = func() time.Time { return later }
	rec, err = l.Track(ctx, Progress{ID: "op-1", Kind: KindDownload, ComponentName: "git", Title: "install git", ProgressPercent: 100})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", rec.Status)
	}
	if rec.DurationSeconds != 10 {
		t.Fatalf("expected 10s duration, got %v", rec.DurationSeconds)
	}

	history := l.GetHistory(ctx, -1, 0, Filters{})
	if len(history) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(history))
	}
}

func TestTrackFailedOnErrors(t *testing.T) {
	l, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()

	rec, err := l.Track(ctx, Progress{ID: "op-2", Kind: KindResolve, Title: "resolve", Errors: []string{"boom"}})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
}

func TestSearchOperations(t *testing.T) {
	l, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()

	if _, err := l.Track(ctx, Progress{ID: "s1", Kind: KindDownload, ComponentName: "nodejs", Title: "Install Node.js"}); err != nil {
		t.Fatalf("track: %v", err)
	}
	if _, err := l.Track(ctx, Progress{ID: "s2", Kind: KindDownload, ComponentName: "git", Title: "Install Git"}); err != nil {
		t.Fatalf("track: %v", err)
	}

	results := l.SearchOperations(ctx, "node")
	if len(results) != 1 || results[0].ComponentName != "nodejs" {
		t.Fatalf("expected nodejs match, got %+v", results)
	}
}

func TestGetOperationSummary(t *testing.T) {
	l, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if _, err := l.Track(ctx, Progress{ID: "s1", Kind: KindDownload, ComponentName: "git", ProgressPercent: 100}); err != nil {
		t.Fatalf("track: %v", err)
	}
	if _, err := l.Track(ctx, Progress{ID: "s2", Kind: KindDownload, ComponentName: "git", Errors: []string{"x"}}); err != nil {
		t.Fatalf("track: %v", err)
	}

	summary := l.GetOperationSummary(ctx, Period24Hour, "")
	if summary.TotalOperations != 2 {
		t.Fatalf("expected 2 operations, got %d", summary.TotalOperations)
	}
	if summary.SuccessCount != 1 || summary.FailureCount != 1 {
		t.Fatalf("expected 1 success/1 failure, got %+v", summary)
	}
	if summary.SuccessRate != 0.5 {
		t.Fatalf("expected 0.5 success rate, got %v", summary.SuccessRate)
	}

	// Cached summary should be stable even if we add another record
	// before the TTL expires.
	if _, err := l.Track(ctx, Progress{ID: "s3", Kind: KindDownload, ComponentName: "git", ProgressPercent: 100}); err != nil {
		t.Fatalf("track: %v", err)
	}
	cached := l.GetOperationSummary(ctx, Period24Hour, "")
	if cached.TotalOperations != 2 {
		t.Fatalf("expected cached summary to still report 2, got %d", cached.TotalOperations)
	}
}

func TestTimelineBucketing(t *testing.T) {
	l, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	if _, err := l.Track(ctx, Progress{ID: "t1", Kind: KindDownload, ComponentName: "git"}); err != nil {
		t.Fatalf("track: %v", err)
	}

	buckets := l.Timeline(ctx, TimelineOptions{From: base.Add(-24 * time.Hour), To: base.Add(24 * time.Hour), Granularity: GranularityDay})
	var found bool
	for _, b := range buckets {
		for _, evt := range b.RepresentativeEvents {
			if evt.Timestamp.Before(b.StartTime) || !evt.Timestamp.Before(b.EndTime) {
				t.Fatalf("event %v outside bucket [%v,%v)", evt.Timestamp, b.StartTime, b.EndTime)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected at least one bucketed event")
	}
}

func TestExportFormats(t *testing.T) {
	l, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if _, err := l.Track(ctx, Progress{ID: "e1", Kind: KindDownload, ComponentName: "git", Title: "install", ProgressPercent: 100}); err != nil {
		t.Fatalf("track: %v", err)
	}

	dir := t.TempDir()
	for _, format := range []Format{FormatJSON, FormatCSV, FormatHTML, FormatXML, FormatZIP} {
		path := filepath.Join(dir, "export."+string(format))
		got, err := l.Export(ctx, format, Filters{}, path)
		if err != nil {
			t.Fatalf("export %s: %v", format, err)
		}
		if got != path {
			t.Fatalf("expected path %s, got %s", path, got)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if info.Size() == 0 {
			t.Fatalf("expected non-empty export for %s", format)
		}
	}
}

func TestGetSystemReport(t *testing.T) {
	l, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if _, err := l.Track(ctx, Progress{ID: "active-1", Kind: KindDownload, ComponentName: "git", ProgressPercent: 40}); err != nil {
		t.Fatalf("track: %v", err)
	}
	if _, err := l.Track(ctx, Progress{ID: "done-1", Kind: KindDownload, ComponentName: "nodejs", ProgressPercent: 100}); err != nil {
		t.Fatalf("track: %v", err)
	}

	report := l.GetSystemReport(ctx)
	if len(report.ActiveOperations) != 1 || report.ActiveOperations[0].ID != "active-1" {
		t.Fatalf("expected active-1 to be the only active operation, got %+v", report.ActiveOperations)
	}
	if len(report.LatestCompleted) != 1 || report.LatestCompleted[0].ID != "done-1" {
		t.Fatalf("expected done-1 among latest completed, got %+v", report.LatestCompleted)
	}
	if report.Recent24Hour.TotalOperations != 2 {
		t.Fatalf("expected summary to cover both operations, got %+v", report.Recent24Hour)
	}
}

func TestCleanupOldRecords(t *testing.T) {
	l, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return old }
	if _, err := l.Track(ctx, Progress{ID: "old-1", Kind: KindDownload, ComponentName: "git", ProgressPercent: 100}); err != nil {
		t.Fatalf("track: %v", err)
	}

	recent := old.Add(200 * 24 * time.Hour)
	l.now = func() time.Time { return recent }
	if _, err := l.Track(ctx, Progress{ID: "new-1", Kind: KindDownload, ComponentName: "nodejs", ProgressPercent: 100}); err != nil {
		t.Fatalf("track: %v", err)
	}

	removed, err := l.CleanupOldRecords(ctx, 90)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed record, got %d", removed)
	}

	history := l.GetHistory(ctx, -1, 0, Filters{})
	if len(history) != 1 || history[0].ID != "new-1" {
		t.Fatalf("expected only new-1 to remain, got %+v", history)
	}

	if _, ok, err := l.GetByID(ctx, "old-1"); err != nil || ok {
		t.Fatalf("expected old-1 to be gone from durable store, ok=%v err=%v", ok, err)
	}
}
