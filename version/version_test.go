package version

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr bool
	}{
		{name: "full", input: "1.2.3", want: Version{Major: 1, Minor: 2, Patch: 3}},
		{name: "v prefix", input: "v1.2.3", want: Version{Major: 1, Minor: 2, Patch: 3}},
		{name: "prerelease", input: "1.2.3-beta.1", want: Version{Major: 1, Minor: 2, Patch: 3, Prerelease: "beta.1"}},
		{name: "build metadata", input: "1.2.3+build.5", want: Version{Major: 1, Minor: 2, Patch: 3, Build: "build.5"}},
		{name: "partial major only", input: "2", want: Version{Major: 2}},
		{name: "partial major.minor", input: "2.5", want: Version{Major: 2, Minor: 5}},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "not-a-version", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "equal", a: "1.2.3", b: "1.2.3", want: 0},
		{name: "major differs", a: "2.0.0", b: "1.9.9", want: 1},
		{name: "minor differs", a: "1.3.0", b: "1.2.9", want: 1},
		{name: "patch differs", a: "1.2.4", b: "1.2.3", want: 1},
		{name: "prerelease is less than release", a: "1.2.3-beta", b: "1.2.3", want: -1},
		{name: "release is greater than prerelease", a: "1.2.3", b: "1.2.3-beta", want: 1},
		{name: "prerelease lexical", a: "1.2.3-alpha", b: "1.2.3-beta", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(MustParse(tt.a), MustParse(tt.b))
			if got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// TestCaretConstraintMatching implements scenario S1 from the testable
// properties: constraint ^1.2.3 satisfied by 1.2.3 and 1.9.9; violated by
// 2.0.0 and 1.2.2.
func TestCaretConstraintMatching(t *testing.T) {
	c := MustParseConstraint("^1.2.3")

	satisfied := []string{"1.2.3", "1.9.9"}
	for _, vs := range satisfied {
		if !Satisfies(MustParse(vs), c) {
			t.Errorf("Satisfies(%s, ^1.2.3) = false, want true", vs)
		}
	}

	violated := []string{"2.0.0", "1.2.2"}
	for _, vs := range violated {
		if Satisfies(MustParse(vs), c) {
			t.Errorf("Satisfies(%s, ^1.2.3) = true, want false", vs)
		}
	}
}

// TestCaretConstraintZeroMajor covers the 0.x.y caret narrowing rules.
func TestCaretConstraintZeroMajor(t *testing.T) {
	c := MustParseConstraint("^0.2.3")
	if !Satisfies(MustParse("0.2.9"), c) {
		t.Error("0.2.9 should satisfy ^0.2.3")
	}
	if Satisfies(MustParse("0.3.0"), c) {
		t.Error("0.3.0 should not satisfy ^0.2.3")
	}

	zero := MustParseConstraint("^0.0.3")
	if !Satisfies(MustParse("0.0.3"), zero) {
		t.Error("0.0.3 should satisfy ^0.0.3")
	}
	if Satisfies(MustParse("0.0.4"), zero) {
		t.Error("0.0.4 should not satisfy ^0.0.3")
	}
}

func TestTildeConstraint(t *testing.T) {
	c := MustParseConstraint("~1.2.3")
	if !Satisfies(MustParse("1.2.9"), c) {
		t.Error("1.2.9 should satisfy ~1.2.3")
	}
	if Satisfies(MustParse("1.3.0"), c) {
		t.Error("1.3.0 should not satisfy ~1.2.3")
	}
}

// TestScoreCompatibility implements the scoring half of S1: compatibility of
// 1.2.3 against [^1.2.3] is perfect (1.0); against [>=2.0.0] is incompatible.
func TestScoreCompatibility(t *testing.T) {
	InvalidateScoreCache()

	v := MustParse("1.2.3")

	perfect := Score(v, []Constraint{MustParseConstraint("^1.2.3")})
	if perfect.Score != 1.0 || perfect.CompatibilityLevel != LevelPerfect {
		t.Errorf("Score(1.2.3, [^1.2.3]) = %+v, want perfect 1.0", perfect)
	}
	if !perfect.Compatible {
		t.Error("perfect score should be compatible")
	}

	incompatible := Score(v, []Constraint{MustParseConstraint(">=2.0.0")})
	if incompatible.CompatibilityLevel != LevelIncompatible {
		t.Errorf("Score(1.2.3, [>=2.0.0]) = %+v, want incompatible", incompatible)
	}
	if incompatible.Compatible {
		t.Error("violated constraint should not be compatible")
	}
}

func TestScoreCaching(t *testing.T) {
	InvalidateScoreCache()

	v := MustParse("1.0.0")
	constraints := []Constraint{MustParseConstraint("^1.0.0")}

	first := Score(v, constraints)
	second := Score(v, constraints)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached score differs from first computation (-first +second):\n%s", diff)
	}

	InvalidateScoreCache()
	third := Score(v, constraints)
	if diff := cmp.Diff(first, third); diff != "" {
		t.Errorf("score after invalidation differs (-first +third):\n%s", diff)
	}
}

func TestFindCompatible(t *testing.T) {
	candidates := []Version{MustParse("1.0.0"), MustParse("1.5.0"), MustParse("2.0.0")}
	constraints := []Constraint{MustParseConstraint("^1.0.0")}

	found := FindCompatible(candidates, constraints)
	if len(found) != 2 {
		t.Fatalf("FindCompatible returned %d versions, want 2", len(found))
	}
	if found[0].Version.String() != "1.0.0" {
		t.Errorf("best match = %s, want 1.0.0 (exact match to constraint)", found[0].Version)
	}
}

func TestSuggestResolutionWithoutCandidates(t *testing.T) {
	s := SuggestResolution([]Constraint{MustParseConstraint("^1.2.0")}, nil)
	if !s.Found {
		t.Fatalf("SuggestResolution should derive a version from the lower bound: %+v", s)
	}
	if s.Version.String() != "1.2.0" {
		t.Errorf("suggested version = %s, want 1.2.0", s.Version)
	}
}

func TestScoreStringsParsingError(t *testing.T) {
	got := ScoreStrings("not-a-version", []string{"^1.0.0"})
	if got.CompatibilityLevel != LevelIncompatible {
		t.Fatalf("malformed version should yield incompatible, got %+v", got)
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != "parsing error" {
		t.Errorf("reasons = %v, want [parsing error]", got.Reasons)
	}
}
