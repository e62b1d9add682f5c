package version

// ScoreStrings is the string-based entry point the resolver calls: it parses
// the version and constraint expressions and scores them, but never returns
// an error. A malformed version or constraint string instead yields a
// zero-score incompatibility with the reason "parsing error", per the
// public API's no-throw contract.
func ScoreStrings(versionStr string, constraintStrs []string) CompatibilityScore {
	v, err := Parse(versionStr)
	if err != nil {
		return CompatibilityScore{CompatibilityLevel: LevelIncompatible, Reasons: []string{"parsing error"}}
	}

	constraints := make([]Constraint, 0, len(constraintStrs))
	for _, cs := range constraintStrs {
		c, err := ParseConstraint(cs)
		if err != nil {
			return CompatibilityScore{CompatibilityLevel: LevelIncompatible, Reasons: []string{"parsing error"}}
		}
		constraints = append(constraints, c)
	}

	return Score(v, constraints)
}
