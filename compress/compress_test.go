package compress

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestIsCandidate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-1 * time.Hour)

	tests := []struct {
		name string
		f    FileStat
		want bool
	}{
		{"old large log", FileStat{Path: "a.log", Size: 2 << 20, LastAccessed: old}, true},
		{"already compressed", FileStat{Path: "a.gz", Size: 2 << 20, LastAccessed: old}, false},
		{"too small", FileStat{Path: "a.log", Size: 100, LastAccessed: old}, false},
		{"too recent", FileStat{Path: "a.log", Size: 2 << 20, LastAccessed: recent}, false},
		{"has sidecar marker", FileStat{Path: "a.log", Size: 2 << 20, LastAccessed: old, Marker: "a.log.compressinfo"}, false},
		{"jpg image", FileStat{Path: "photo.jpg", Size: 5 << 20, LastAccessed: old}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCandidate(tt.f, CandidacyOptions{}, now); got != tt.want {
				t.Errorf("IsCandidate(%+v) = %v, want %v", tt.f, got, tt.want)
			}
		})
	}
}

func TestSelectAlgorithm(t *testing.T) {
	tests := []struct {
		ext           string
		zstdAvailable bool
		want          Algorithm
	}{
		{".log", true, AlgorithmGzip},
		{".csv", true, AlgorithmGzip},
		{".json", true, AlgorithmXZ},
		{".xml", true, AlgorithmXZ},
		{".go", true, AlgorithmZstd},
		{".go", false, AlgorithmGzip},
		{".unknown", true, AlgorithmGzip},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := SelectAlgorithm(tt.ext, tt.zstdAvailable); got != tt.want {
				t.Errorf("SelectAlgorithm(%q, %v) = %q, want %q", tt.ext, tt.zstdAvailable, got, tt.want)
			}
		})
	}
}

func TestEngineRunCompressesCandidateAndWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.log")
	content := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 50000)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	old := time.Now().Add(-40 * 24 * time.Hour)
	e := New(discardLogger())

	result := e.Run(context.Background(), []FileStat{
		{Path: path, Size: int64(len(content)), LastAccessed: old},
	}, CandidacyOptions{})

	if !result.Success {
		t.Fatalf("expected success, got errors: %v", result.Errors)
	}
	if len(result.CompressedFiles) != 1 {
		t.Fatalf("compressedFiles = %d, want 1", len(result.CompressedFiles))
	}
	if result.SpaceSaved <= 0 {
		t.Errorf("spaceSaved = %d, want > 0", result.SpaceSaved)
	}
	if _, err := os.Stat(path + ".compressinfo"); err != nil {
		t.Errorf("expected sidecar metadata file: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading replaced file: %v", err)
	}
	if len(got) >= len(content) {
		t.Error("replaced file should be smaller than the original")
	}
}

func TestCleanupTempFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "old.tmp")
	fresh := filepath.Join(dir, "new.tmp")
	keep := filepath.Join(dir, "keep.txt")

	for _, p := range []string{stale, fresh, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, errs := CleanupTempFiles([]string{dir}, time.Now())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(removed) != 1 || removed[0] != stale {
		t.Errorf("removed = %v, want [%s]", removed, stale)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh .tmp file should survive cleanup")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error(".txt file should never be touched")
	}
}
