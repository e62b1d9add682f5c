package resolve

import (
	"fmt"
	"sort"
	"time"
)

// PlanStep is one step of a resolution plan: a cycle break or a conflict
// resolution, in priority order.
type PlanStep struct {
	Kind                  string // "cycle_break" | "conflict_resolution"
	Description           string
	EstimatedResolutionMinutes float64
}

// DependencyAnalysisResult bundles the graph, counts, the ordered
// resolution plan, and the elapsed analysis time.
type DependencyAnalysisResult struct {
	Graph              *Graph
	NodeCount          int
	EdgeCount          int
	CycleCount         int
	ConflictCount      int
	Plan               []PlanStep
	Complexity         string // low | medium | high
	SuccessProbability float64
	AnalysisDuration   time.Duration
}

// Analyse runs cycle detection, conflict detection, and produces the
// resolution plan and summary counts for g.
func Analyse(g *Graph, now func() time.Time) DependencyAnalysisResult {
	start := now()

	cycles := g.DetectCycles()
	conflicts := g.DetectConflicts()

	var steps []PlanStep
	for _, c := range cycles {
		steps = append(steps, PlanStep{
			Kind:                       "cycle_break",
			Description:                fmt.Sprintf("break circular dependency: %v", c.CyclePath),
			EstimatedResolutionMinutes: 15 * float64(c.Length),
		})
	}
	for _, c := range conflicts {
		steps = append(steps, PlanStep{
			Kind:                       "conflict_resolution",
			Description:                fmt.Sprintf("resolve version conflict on %s among %d dependents", c.Component, len(c.ConflictingDependents)),
			EstimatedResolutionMinutes: 10 * float64(len(c.ConflictingDependents)),
		})
	}
	// Cycle breaks carry the highest priority; PlanStep insertion order above
	// already places them first, but sort stably to make the guarantee explicit.
	sort.SliceStable(steps, func(i, j int) bool {
		return stepPriority(steps[i].Kind) < stepPriority(steps[j].Kind)
	})

	total := len(cycles) + len(conflicts)
	complexity := "low"
	switch {
	case total == 0:
		complexity = "low"
	case total <= 2:
		complexity = "medium"
	default:
		complexity = "high"
	}

	probability := 0.9 - 0.1*float64(len(conflicts)) - 0.15*float64(len(cycles))
	if probability < 0.1 {
		probability = 0.1
	}

	return DependencyAnalysisResult{
		Graph:              g,
		NodeCount:          len(g.Nodes),
		EdgeCount:          len(g.Edges),
		CycleCount:         len(cycles),
		ConflictCount:      len(conflicts),
		Plan:               steps,
		Complexity:         complexity,
		SuccessProbability: probability,
		AnalysisDuration:   now().Sub(start),
	}
}

func stepPriority(kind string) int {
	if kind == "cycle_break" {
		return 0
	}
	return 1
}
