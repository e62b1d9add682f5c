package resolve

import (
	"fmt"

	"github.com/a-h/provision/version"
)

// DetectConflicts aggregates, per target node, the constraints carried by
// all incoming edges; if any pair's projected ranges fail to intersect, it
// emits a VersionConflict for that node.
func (g *Graph) DetectConflicts() []VersionConflict {
	incoming := map[NodeID][]Edge{}
	for _, e := range g.Edges {
		if e.Constraint != nil {
			incoming[e.To] = append(incoming[e.To], e)
		}
	}

	var conflicts []VersionConflict
	for target, edges := range incoming {
		if len(edges) < 2 {
			continue
		}
		if !pairwiseCompatible(edges) {
			conflicts = append(conflicts, buildConflict(g, target, edges))
		}
	}

	g.Conflicts = conflicts
	return conflicts
}

// pairwiseCompatible reports whether every pair of constraints in edges has a
// non-empty intersection. Exact-equality constraints on different versions
// are always a conflict, per spec §4.3.
func pairwiseCompatible(edges []Edge) bool {
	for i := 0; i < len(edges); i++ {
		for j := i + 1; j < len(edges); j++ {
			if !intersects(*edges[i].Constraint, *edges[j].Constraint) {
				return false
			}
		}
	}
	return true
}

func intersects(a, b version.Constraint) bool {
	if a.Kind == version.KindExact && b.Kind == version.KindExact {
		return version.Equal(a.Lo, b.Lo)
	}

	aLo, aHasLo, aHi, aHasHi := version.Bounds(a)
	bLo, bHasLo, bHi, bHasHi := version.Bounds(b)

	// [aLo, aHi) intersects [bLo, bHi) iff aLo < bHi and bLo < aHi, treating a
	// missing bound as unbounded in that direction.
	if aHasLo && bHasHi && version.GreaterEqual(aLo, bHi) {
		return false
	}
	if bHasLo && aHasHi && version.GreaterEqual(bLo, aHi) {
		return false
	}
	return true
}

func buildConflict(g *Graph, target NodeID, edges []Edge) VersionConflict {
	name := g.Nodes[target].Name
	var required []string
	var dependents []string
	runtime := false
	for _, e := range edges {
		required = append(required, e.Constraint.Raw)
		dependents = append(dependents, g.Nodes[e.From].Name)
		if e.Kind == EdgeRuntime {
			runtime = true
		}
	}

	severity := "low"
	switch {
	case runtime:
		severity = "high"
	case len(dependents) > 2:
		severity = "medium"
	}

	var installed *version.Version
	if g.Nodes[target].InstalledVersion != nil {
		installed = g.Nodes[target].InstalledVersion
	}

	return VersionConflict{
		Component:             name,
		RequiredVersions:       required,
		InstalledVersion:       installed,
		Kind:                   "version_conflict",
		ConflictingDependents:  dependents,
		Severity:               severity,
		SuggestedResolution:    fmt.Sprintf("pin %s to a version satisfying all %d dependents, or split the conflicting requirement", name, len(dependents)),
	}
}
