package version

import (
	"fmt"
	"strings"
)

// ConstraintKind tags the variant held by a Constraint.
type ConstraintKind string

const (
	KindExact        ConstraintKind = "exact"
	KindGreaterThan  ConstraintKind = "gt"
	KindGreaterEqual ConstraintKind = "gte"
	KindLessThan     ConstraintKind = "lt"
	KindLessEqual    ConstraintKind = "lte"
	KindCaret        ConstraintKind = "caret"
	KindTilde        ConstraintKind = "tilde"
	KindRange        ConstraintKind = "range"
	KindWildcard     ConstraintKind = "wildcard"
)

// Constraint is a tagged variant over the predicate kinds in spec §3.
type Constraint struct {
	Kind  ConstraintKind
	Lo    Version
	Hi    Version // only meaningful for KindRange
	Raw   string
}

// ParseConstraint parses a single constraint expression.
func ParseConstraint(s string) (Constraint, error) {
	raw := s
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "=="):
		v, err := Parse(s[2:])
		return Constraint{Kind: KindExact, Lo: v, Raw: raw}, err
	case strings.HasPrefix(s, ">="):
		v, err := Parse(s[2:])
		return Constraint{Kind: KindGreaterEqual, Lo: v, Raw: raw}, err
	case strings.HasPrefix(s, "<="):
		v, err := Parse(s[2:])
		return Constraint{Kind: KindLessEqual, Lo: v, Raw: raw}, err
	case strings.HasPrefix(s, ">"):
		v, err := Parse(s[1:])
		return Constraint{Kind: KindGreaterThan, Lo: v, Raw: raw}, err
	case strings.HasPrefix(s, "<"):
		v, err := Parse(s[1:])
		return Constraint{Kind: KindLessThan, Lo: v, Raw: raw}, err
	case strings.HasPrefix(s, "^"):
		v, err := Parse(s[1:])
		return Constraint{Kind: KindCaret, Lo: v, Raw: raw}, err
	case strings.HasPrefix(s, "~"):
		v, err := Parse(s[1:])
		return Constraint{Kind: KindTilde, Lo: v, Raw: raw}, err
	case strings.Contains(s, " - "):
		parts := strings.SplitN(s, " - ", 2)
		if len(parts) != 2 {
			return Constraint{}, fmt.Errorf("version: invalid range constraint: %q", raw)
		}
		lo, err := Parse(parts[0])
		if err != nil {
			return Constraint{}, err
		}
		hi, err := Parse(parts[1])
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{Kind: KindRange, Lo: lo, Hi: hi, Raw: raw}, nil
	case strings.Contains(s, "*"):
		base := strings.ReplaceAll(s, "*", "0")
		v, err := Parse(base)
		return Constraint{Kind: KindWildcard, Lo: v, Raw: raw}, err
	default:
		v, err := Parse(s)
		return Constraint{Kind: KindExact, Lo: v, Raw: raw}, err
	}
}

// MustParseConstraint parses s, panicking on error.
func MustParseConstraint(s string) Constraint {
	c, err := ParseConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Satisfies reports whether v satisfies c.
func Satisfies(v Version, c Constraint) bool {
	switch c.Kind {
	case KindExact:
		return Equal(v, c.Lo)
	case KindGreaterThan:
		return Greater(v, c.Lo)
	case KindGreaterEqual:
		return GreaterEqual(v, c.Lo)
	case KindLessThan:
		return Less(v, c.Lo)
	case KindLessEqual:
		return LessEqual(v, c.Lo)
	case KindCaret:
		return satisfiesCaret(v, c.Lo)
	case KindTilde:
		return satisfiesTilde(v, c.Lo)
	case KindRange:
		return GreaterEqual(v, c.Lo) && LessEqual(v, c.Hi)
	case KindWildcard:
		return v.Major == c.Lo.Major && v.Minor == c.Lo.Minor
	default:
		return false
	}
}

// satisfiesCaret implements the §3 caret rules:
//
//	major >= 1:            [v, (major+1).0.0)
//	major == 0, minor >= 1: [v, 0.(minor+1).0)
//	major == 0, minor == 0: [v, 0.0.(patch+1))
func satisfiesCaret(v, lo Version) bool {
	if lo.Major >= 1 {
		return GreaterEqual(v, lo) && v.Major == lo.Major
	}
	if lo.Minor >= 1 {
		return GreaterEqual(v, lo) && v.Major == 0 && v.Minor == lo.Minor
	}
	return GreaterEqual(v, lo) && v.Major == 0 && v.Minor == 0 && v.Patch == lo.Patch
}

// satisfiesTilde implements [v, major.(minor+1).0).
func satisfiesTilde(v, lo Version) bool {
	return GreaterEqual(v, lo) && v.Major == lo.Major && v.Minor == lo.Minor
}

// upperBound returns the exclusive upper bound implied by c, used through
// Bounds by the resolver's conflict detection. ok is false for constraint
// kinds without a derivable exclusive upper bound.
func upperBound(c Constraint) (Version, bool) {
	switch c.Kind {
	case KindExact:
		return Version{Major: c.Lo.Major, Minor: c.Lo.Minor, Patch: c.Lo.Patch + 1}, true
	case KindCaret:
		if c.Lo.Major >= 1 {
			return Version{Major: c.Lo.Major + 1}, true
		}
		if c.Lo.Minor >= 1 {
			return Version{Major: 0, Minor: c.Lo.Minor + 1}, true
		}
		return Version{Major: 0, Minor: 0, Patch: c.Lo.Patch + 1}, true
	case KindTilde:
		return Version{Major: c.Lo.Major, Minor: c.Lo.Minor + 1}, true
	case KindLessThan:
		return c.Lo, true
	case KindLessEqual:
		// Inclusive; treat as exclusive bound one patch above for intersection purposes.
		return Version{Major: c.Lo.Major, Minor: c.Lo.Minor, Patch: c.Lo.Patch + 1}, true
	case KindRange:
		return Version{Major: c.Hi.Major, Minor: c.Hi.Minor, Patch: c.Hi.Patch + 1}, true
	case KindWildcard:
		return Version{Major: c.Lo.Major, Minor: c.Lo.Minor + 1}, true
	default:
		return Version{}, false
	}
}

// Bounds returns the inclusive lower and exclusive upper bound implied by c,
// where derivable. hasLo/hasHi are false when c's kind has no such bound
// (e.g. KindLessThan has no lower bound).
func Bounds(c Constraint) (lo Version, hasLo bool, hi Version, hasHi bool) {
	lo, hasLo = lowerBound(c)
	hi, hasHi = upperBound(c)
	return lo, hasLo, hi, hasHi
}

func lowerBound(c Constraint) (Version, bool) {
	switch c.Kind {
	case KindExact, KindGreaterEqual, KindCaret, KindTilde, KindRange, KindWildcard:
		return c.Lo, true
	case KindGreaterThan:
		return Version{Major: c.Lo.Major, Minor: c.Lo.Minor, Patch: c.Lo.Patch + 1}, true
	default:
		return Version{}, false
	}
}
