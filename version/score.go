package version

import (
	"math"
	"sort"
	"strings"
	"sync"
)

// CompatibilityLevel buckets a CompatibilityScore.score into a human label.
type CompatibilityLevel string

const (
	LevelPerfect      CompatibilityLevel = "perfect"
	LevelHigh         CompatibilityLevel = "high"
	LevelMedium       CompatibilityLevel = "medium"
	LevelLow          CompatibilityLevel = "low"
	LevelIncompatible CompatibilityLevel = "incompatible"
)

// CompatibilityScore is the result of scoring a version against a set of
// constraints.
type CompatibilityScore struct {
	Score             float64
	CompatibilityLevel CompatibilityLevel
	Reasons           []string
	SuggestedAction   string
	Compatible        bool
}

var (
	scoreCacheMu sync.Mutex
	scoreCache   = map[string]CompatibilityScore{}
)

// InvalidateScoreCache clears the memoised score() results. Callers invoke
// this explicitly whenever the constraint universe changes (e.g. a new
// registry fetch invalidates previously computed scores).
func InvalidateScoreCache() {
	scoreCacheMu.Lock()
	defer scoreCacheMu.Unlock()
	scoreCache = map[string]CompatibilityScore{}
}

func cacheKey(v Version, constraints []Constraint) string {
	raws := make([]string, len(constraints))
	for i, c := range constraints {
		raws[i] = string(c.Kind) + ":" + c.Lo.String() + ":" + c.Hi.String()
	}
	sort.Strings(raws)
	return v.String() + "|" + strings.Join(raws, ",")
}

// Score computes the CompatibilityScore of v against constraints, per the
// mean-of-per-constraint-score rule with a satisfied-all bonus.
func Score(v Version, constraints []Constraint) CompatibilityScore {
	key := cacheKey(v, constraints)

	scoreCacheMu.Lock()
	if cached, ok := scoreCache[key]; ok {
		scoreCacheMu.Unlock()
		return cached
	}
	scoreCacheMu.Unlock()

	result := computeScore(v, constraints)

	scoreCacheMu.Lock()
	scoreCache[key] = result
	scoreCacheMu.Unlock()

	return result
}

func computeScore(v Version, constraints []Constraint) CompatibilityScore {
	if len(constraints) == 0 {
		return CompatibilityScore{Score: 1.0, CompatibilityLevel: LevelPerfect, Compatible: true, SuggestedAction: "no action"}
	}

	var reasons []string
	allSatisfied := true
	exceedsMajor := false
	total := 0.0

	for _, c := range constraints {
		satisfied := Satisfies(v, c)
		if !satisfied {
			allSatisfied = false
			reasons = append(reasons, "violates constraint "+c.Raw)
			continue
		}
		total += constraintScore(v, c)
		if lo, ok := lowerBound(c); ok && lo.Major > v.Major {
			exceedsMajor = true
		}
	}

	mean := total / float64(len(constraints))
	if allSatisfied {
		mean = math.Min(mean*1.10, 1.0)
	} else {
		mean = 0
	}

	level := levelFor(mean)
	compatible := allSatisfied && mean >= 0.4

	action := "update to latest compatible"
	switch {
	case mean >= 0.9:
		action = "no action"
	case exceedsMajor:
		action = "major version update required"
	}

	return CompatibilityScore{
		Score:              mean,
		CompatibilityLevel: level,
		Reasons:            reasons,
		SuggestedAction:    action,
		Compatible:         compatible,
	}
}

// constraintScore scores a single satisfied constraint by semantic distance
// between v and the constraint's reference version, floored at 0.5 since the
// constraint is, by construction, satisfied.
func constraintScore(v Version, c Constraint) float64 {
	ref := c.Lo
	if Equal(v, ref) {
		return 1.0
	}
	distance := 10*math.Abs(float64(v.Major-ref.Major)) +
		5*math.Abs(float64(v.Minor-ref.Minor)) +
		0.1*math.Abs(float64(v.Patch-ref.Patch))
	s := 1.0 / (1.0 + distance)
	if s < 0.5 {
		s = 0.5
	}
	return s
}

func levelFor(score float64) CompatibilityLevel {
	switch {
	case score >= 1.0:
		return LevelPerfect
	case score >= 0.8:
		return LevelHigh
	case score >= 0.6:
		return LevelMedium
	case score >= 0.4:
		return LevelLow
	default:
		return LevelIncompatible
	}
}

// ScoredVersion pairs a version with its CompatibilityScore.
type ScoredVersion struct {
	Version Version
	Score   CompatibilityScore
}

// FindCompatible scores every candidate version against constraints and
// returns only the compatible ones, ordered best-first.
func FindCompatible(candidates []Version, constraints []Constraint) []ScoredVersion {
	var out []ScoredVersion
	for _, v := range candidates {
		s := Score(v, constraints)
		if s.Compatible {
			out = append(out, ScoredVersion{Version: v, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score.Score > out[j].Score.Score
	})
	return out
}

// Feasibility buckets how confidently SuggestResolution's result can be
// trusted, per spec.md §4.1's "Feasibility is reported as high | medium |
// low" requirement.
type Feasibility string

const (
	FeasibilityHigh   Feasibility = "high"
	FeasibilityMedium Feasibility = "medium"
	FeasibilityLow    Feasibility = "low"
)

// Suggestion is the result of SuggestResolution.
type Suggestion struct {
	Version     Version
	Found       bool
	Feasibility Feasibility
	Reasons     []string
}

// SuggestResolution tries three strategies in order, per spec.md §4.1:
//
//	(i)   compute the intersection of all constraint bounds and return its
//	      lower edge, if non-empty;
//	(ii)  if candidates is supplied, return the best-scoring compatible
//	      candidate;
//	(iii) report infeasible ("manual").
func SuggestResolution(constraints []Constraint, candidates []Version) Suggestion {
	if v, ok := intersectionLowerEdge(constraints); ok {
		return Suggestion{Version: v, Found: true, Feasibility: FeasibilityHigh}
	}

	if len(candidates) > 0 {
		found := FindCompatible(candidates, constraints)
		if len(found) > 0 {
			return Suggestion{Version: found[0].Version, Found: true, Feasibility: FeasibilityMedium}
		}
		return Suggestion{Found: false, Feasibility: FeasibilityLow, Reasons: []string{"no candidate satisfies all constraints"}}
	}

	return Suggestion{Found: false, Feasibility: FeasibilityLow, Reasons: []string{"manual: no derivable lower bound among constraints and no candidates supplied"}}
}

// intersectionLowerEdge computes the tightest lower bound among constraints
// with a derivable lower bound, then confirms that bound satisfies every
// constraint -- i.e. that the bound intersection is genuinely non-empty,
// not just that some individual lower bound exists.
func intersectionLowerEdge(constraints []Constraint) (Version, bool) {
	var best Version
	have := false
	for _, c := range constraints {
		lo, ok := lowerBound(c)
		if !ok {
			continue
		}
		if !have || Greater(lo, best) {
			best = lo
			have = true
		}
	}
	if !have {
		return Version{}, false
	}
	for _, c := range constraints {
		if !Satisfies(best, c) {
			return Version{}, false
		}
	}
	return best, true
}
