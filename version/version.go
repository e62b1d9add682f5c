// Package version implements the semantic version algebra: parsing,
// ordering, constraint satisfaction and compatibility scoring.
//
// It is intentionally independent of any package-manager backend. The npm
// and pip backends in package pkgmanager layer their own ecosystem-accurate
// libraries (Masterminds/semver, go-pep440-version) on top of this package
// where the spec calls for ecosystem-faithful behaviour; this package
// implements the caret/tilde/score rules exactly as specified.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Build      string
}

var fullPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)
var partialPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// Parse parses a version string. It accepts an optional leading "v" and
// falls back to a partial major[.minor[.patch]] form with missing fields
// defaulting to zero.
func Parse(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return Version{}, fmt.Errorf("version: empty version string")
	}

	if m := fullPattern.FindStringSubmatch(s); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		patch, _ := strconv.Atoi(m[3])
		return Version{Major: major, Minor: minor, Patch: patch, Prerelease: m[4], Build: m[5]}, nil
	}

	if m := partialPattern.FindStringSubmatch(s); m != nil && m[1] != "" {
		major, _ := strconv.Atoi(m[1])
		minor := 0
		if m[2] != "" {
			minor, _ = strconv.Atoi(m[2])
		}
		patch := 0
		if m[3] != "" {
			patch, _ = strconv.Atoi(m[3])
		}
		return Version{Major: major, Minor: minor, Patch: patch}, nil
	}

	return Version{}, fmt.Errorf("version: invalid version format: %q", s)
}

// MustParse parses s, panicking on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version in canonical major.minor.patch[-pre][+build] form.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Compare returns -1, 0 or 1 as v is less than, equal to, or greater than
// other. Build metadata is ignored. A version with a prerelease is strictly
// less than the same version without one.
func Compare(v, other Version) int {
	if v.Major != other.Major {
		return intCompare(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return intCompare(v.Minor, other.Minor)
	}
	if v.Patch != other.Patch {
		return intCompare(v.Patch, other.Patch)
	}
	switch {
	case v.Prerelease == "" && other.Prerelease == "":
		return 0
	case v.Prerelease == "" && other.Prerelease != "":
		return 1
	case v.Prerelease != "" && other.Prerelease == "":
		return -1
	default:
		return strings.Compare(v.Prerelease, other.Prerelease)
	}
}

func intCompare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports whether v and other denote the same version, including prerelease.
func Equal(v, other Version) bool { return Compare(v, other) == 0 }

// Less reports whether v sorts before other.
func Less(v, other Version) bool { return Compare(v, other) < 0 }

// LessEqual reports whether v sorts before or equal to other.
func LessEqual(v, other Version) bool { return Compare(v, other) <= 0 }

// Greater reports whether v sorts after other.
func Greater(v, other Version) bool { return Compare(v, other) > 0 }

// GreaterEqual reports whether v sorts after or equal to other.
func GreaterEqual(v, other Version) bool { return Compare(v, other) >= 0 }
