package provision

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/a-h/provision/download"
	"github.com/a-h/provision/ledger"
	"github.com/a-h/provision/resolve"
	"github.com/a-h/provision/storage"
	"github.com/a-h/provision/version"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) (*ledger.Ledger, func()) {
	t.Helper()
	ctx := context.Background()
	s, closer, err := ledger.NewStore(ctx, "sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	led, err := ledger.New(ctx, discardLogger(), s)
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	return led, func() { _ = closer() }
}

type fakeSource struct {
	deps map[string][]resolve.DeclaredDependency
}

func (f fakeSource) ComponentType(ctx context.Context, name string) (string, bool) { return "tool", true }
func (f fakeSource) InstalledVersion(ctx context.Context, name string) (version.Version, bool) {
	return version.Version{}, false
}
func (f fakeSource) Dependencies(ctx context.Context, name string) []resolve.DeclaredDependency {
	return f.deps[name]
}

type fakeArtifacts struct{}

func (fakeArtifacts) Artifact(ctx context.Context, name, v string) (download.Request, storage.ComponentRequest, error) {
	return download.Request{URL: "https://example.test/" + name}, storage.ComponentRequest{Name: name, Priority: storage.PriorityMedium, DownloadSize: 1024}, nil
}

type fakeExecutor struct {
	executed []string
}

func (e *fakeExecutor) Execute(ctx context.Context, componentName, artifactPath string) error {
	e.executed = append(e.executed, componentName)
	return nil
}

func newTestEngine(t *testing.T) *download.Engine {
	t.Helper()
	return download.New(discardLogger())
}

func TestProcessTracksLedgerProgress(t *testing.T) {
	led, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()

	executor := &fakeExecutor{}
	orch := New(discardLogger(), fakeSource{}, fakeArtifacts{}, newTestEngine(t), storage.NewFileSystem(t.TempDir()), executor, led, nil)

	result, err := orch.Process(ctx, Request{Components: []string{"git"}})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	// The fake artifact resolver points at an unreachable host, so the
	// download is expected to fail; what matters here is that every
	// transition was recorded in the ledger.
	if result.Analysis.NodeCount != 1 {
		t.Fatalf("expected 1 node in graph, got %d", result.Analysis.NodeCount)
	}

	history := led.GetHistory(ctx, -1, 0, ledger.Filters{})
	if len(history) == 0 {
		t.Fatalf("expected at least one ledger record")
	}
	final := history[0]
	if final.Status != ledger.StatusCompleted && final.Status != ledger.StatusFailed {
		t.Fatalf("expected a terminal status, got %s", final.Status)
	}
}

func TestProcessPropagatesArtifactResolutionFailure(t *testing.T) {
	led, closer := newTestLedger(t)
	defer closer()
	ctx := context.Background()

	orch := New(discardLogger(), fakeSource{}, failingArtifactResolver{}, newTestEngine(t), storage.NewFileSystem(t.TempDir()), &fakeExecutor{}, led, nil)

	_, err := orch.Process(ctx, Request{Components: []string{"broken"}})
	if err == nil {
		t.Fatalf("expected an error when artifact resolution fails")
	}
}

type failingArtifactResolver struct{}

func (failingArtifactResolver) Artifact(ctx context.Context, name, v string) (download.Request, storage.ComponentRequest, error) {
	return download.Request{}, storage.ComponentRequest{}, os.ErrNotExist
}
