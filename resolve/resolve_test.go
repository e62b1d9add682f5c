package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/a-h/provision/version"
)

// fakeSource is a ComponentSource backed by an in-memory fixture, used for
// tests instead of a live PackageManager.
type fakeSource struct {
	types   map[string]string
	deps    map[string][]DeclaredDependency
	install map[string]version.Version
}

func (f fakeSource) ComponentType(ctx context.Context, name string) (string, bool) {
	t, ok := f.types[name]
	return t, ok
}

func (f fakeSource) InstalledVersion(ctx context.Context, name string) (version.Version, bool) {
	v, ok := f.install[name]
	return v, ok
}

func (f fakeSource) Dependencies(ctx context.Context, name string) []DeclaredDependency {
	return f.deps[name]
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// TestConflictDetection implements scenario S2: two dependents require
// shared-lib at ==1.0.0 and ==2.0.0 with shared-lib 1.5.0 installed.
func TestConflictDetection(t *testing.T) {
	src := fakeSource{
		types: map[string]string{"app-a": "app", "app-b": "app", "shared-lib": "lib"},
		deps: map[string][]DeclaredDependency{
			"app-a": {{Name: "shared-lib", Kind: EdgeRequired, Constraint: "==1.0.0"}},
			"app-b": {{Name: "shared-lib", Kind: EdgeRequired, Constraint: "==2.0.0"}},
		},
		install: map[string]version.Version{"shared-lib": version.MustParse("1.5.0")},
	}

	g := Build(context.Background(), src, []string{"app-a", "app-b"})
	conflicts := g.DetectConflicts()

	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1: %+v", len(conflicts), conflicts)
	}
	c := conflicts[0]
	if c.Component != "shared-lib" {
		t.Errorf("component = %q, want shared-lib", c.Component)
	}
	if len(c.ConflictingDependents) != 2 {
		t.Errorf("dependents = %v, want 2 entries", c.ConflictingDependents)
	}
	if c.InstalledVersion == nil || c.InstalledVersion.String() != "1.5.0" {
		t.Errorf("installedVersion = %v, want 1.5.0", c.InstalledVersion)
	}

	result := Analyse(g, fixedNow(time.Now()))
	if result.ConflictCount < 1 {
		t.Error("analysis result should report conflicts_found >= 1")
	}
}

// TestCycleDetection implements scenario S3: edges A->B, B->C, C->A form a
// single length-3 cycle of high severity.
func TestCycleDetection(t *testing.T) {
	src := fakeSource{
		types: map[string]string{"a": "x", "b": "x", "c": "x"},
		deps: map[string][]DeclaredDependency{
			"a": {{Name: "b", Kind: EdgeRequired}},
			"b": {{Name: "c", Kind: EdgeRequired}},
			"c": {{Name: "a", Kind: EdgeRequired}},
		},
	}

	g := Build(context.Background(), src, []string{"a"})
	cycles := g.DetectCycles()

	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1: %+v", len(cycles), cycles)
	}
	if cycles[0].Length != 3 {
		t.Errorf("cycle length = %d, want 3", cycles[0].Length)
	}
	if cycles[0].Severity != "high" {
		t.Errorf("severity = %q, want high", cycles[0].Severity)
	}

	if g.HasTopologicalOrder() {
		t.Error("a graph with a cycle should not admit a topological order")
	}
}

// TestNoCycleHasTopologicalOrder checks invariant 4: absence of a reported
// cycle implies a topological order exists.
func TestNoCycleHasTopologicalOrder(t *testing.T) {
	src := fakeSource{
		types: map[string]string{"a": "x", "b": "x", "c": "x"},
		deps: map[string][]DeclaredDependency{
			"a": {{Name: "b", Kind: EdgeRequired}},
			"b": {{Name: "c", Kind: EdgeRequired}},
		},
	}

	g := Build(context.Background(), src, []string{"a"})
	if cycles := g.DetectCycles(); len(cycles) != 0 {
		t.Fatalf("expected no cycles, got %+v", cycles)
	}
	if !g.HasTopologicalOrder() {
		t.Error("acyclic graph should admit a topological order")
	}
}

// TestTransitiveDepsClosure checks invariant 3: transitiveDeps[n] is the
// reflexive-transitive closure over directDeps minus {n}, and a superset of
// directDeps[n].
func TestTransitiveDepsClosure(t *testing.T) {
	src := fakeSource{
		types: map[string]string{"a": "x", "b": "x", "c": "x"},
		deps: map[string][]DeclaredDependency{
			"a": {{Name: "b", Kind: EdgeRequired}},
			"b": {{Name: "c", Kind: EdgeRequired}},
		},
	}

	g := Build(context.Background(), src, []string{"a"})

	for dep := range g.DirectDeps["a"] {
		if _, ok := g.TransitiveDeps["a"][dep]; !ok {
			t.Errorf("transitiveDeps[a] missing direct dep %s", dep)
		}
	}
	if _, ok := g.TransitiveDeps["a"]["c"]; !ok {
		t.Error("transitiveDeps[a] should include transitively-reached c")
	}
	if _, ok := g.TransitiveDeps["a"]["a"]; ok {
		t.Error("transitiveDeps[a] should not include a itself")
	}
}

func TestUnknownComponentBecomesPlaceholder(t *testing.T) {
	src := fakeSource{types: map[string]string{}, deps: map[string][]DeclaredDependency{}}

	g := Build(context.Background(), src, []string{"ghost"})
	id, ok := g.NodeByName("ghost")
	if !ok {
		t.Fatal("expected a placeholder node for an unknown component")
	}
	if g.Nodes[id].ComponentType != "" {
		t.Errorf("placeholder node should have empty ComponentType, got %q", g.Nodes[id].ComponentType)
	}
}
