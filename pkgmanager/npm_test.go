package pkgmanager

import (
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/provision/version"
)

func TestConstraintToSemverString(t *testing.T) {
	tests := []struct {
		name string
		c    version.Constraint
		want string
	}{
		{name: "caret", c: version.MustParseConstraint("^1.2.3"), want: "^1.2.3"},
		{name: "tilde", c: version.MustParseConstraint("~1.2.3"), want: "~1.2.3"},
		{name: "gte", c: version.MustParseConstraint(">=1.2.3"), want: ">= 1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := constraintToSemverString(tt.c)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if _, err := semver.NewConstraint(got); err != nil {
				t.Errorf("produced string %q is not a valid semver constraint: %v", got, err)
			}
		})
	}
}

func TestToSemverConstraintsChecksVersion(t *testing.T) {
	constraints := []version.Constraint{version.MustParseConstraint("^1.2.3")}
	sc, err := toSemverConstraints(constraints)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	match, err := semver.NewVersion("1.9.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sc.Check(match) {
		t.Error("expected 1.9.9 to satisfy ^1.2.3")
	}

	noMatch, err := semver.NewVersion("2.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Check(noMatch) {
		t.Error("expected 2.0.0 not to satisfy ^1.2.3")
	}
}

func TestPackageInfoCacheTTL(t *testing.T) {
	c := newCache(0) // zero TTL: entries expire immediately
	c.put("npm", "left-pad", PackageInfo{Name: "left-pad"}, true)

	_, _, found := c.get("npm", "left-pad")
	if found {
		t.Error("zero-TTL cache entry should already be expired")
	}
}
