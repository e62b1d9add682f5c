// Package resolve implements the Dependency Resolver: graph construction
// over a requested component list, cycle and conflict detection, and
// resolution planning.
package resolve

import (
	"time"

	"github.com/a-h/provision/version"
)

// NodeID indexes into Graph.Nodes. Nodes are never addressed by pointer so
// that a Graph can be copied, serialised, or rebuilt cheaply between
// resolution calls.
type NodeID int

// EdgeKind is the relationship a DependencyEdge represents.
type EdgeKind string

const (
	EdgeRequired    EdgeKind = "required"
	EdgeOptional    EdgeKind = "optional"
	EdgeDevelopment EdgeKind = "development"
	EdgeRuntime     EdgeKind = "runtime"
	EdgeBuild       EdgeKind = "build"
)

// Node is a DependencyNode. Identity is (Name, DeclaredVersion) per the data
// model; nodes for components the caller requested but whose metadata
// couldn't be found are "unknown" placeholders (ComponentType == "").
type Node struct {
	Name             string
	DeclaredVersion  string
	InstalledVersion *version.Version
	RequiredVersion  *version.Version
	ComponentType    string
	IsInstalled      bool
	InstallPath      string
	Metadata         map[string]string
}

// Edge is a DependencyEdge between two nodes, addressed by NodeID.
type Edge struct {
	From       NodeID
	To         NodeID
	Kind       EdgeKind
	Constraint *version.Constraint
	Satisfied  bool
}

// VersionConflict records incompatible constraints converging on one node.
type VersionConflict struct {
	Component            string
	RequiredVersions      []string
	InstalledVersion      *version.Version
	Kind                  string
	ConflictingDependents []string
	Severity              string // low | medium | high
	SuggestedResolution   string
}

// CircularDependency records a cycle found by DFS.
type CircularDependency struct {
	CyclePath []string
	Length    int
	Severity  string // low | medium | high
}

// Graph is the DependencyGraph: nodes and edges owned exclusively by this
// struct, transient per resolution call.
type Graph struct {
	Nodes          []Node
	Edges          []Edge
	nameToID       map[string]NodeID
	DirectDeps     map[string]map[string]struct{}
	TransitiveDeps map[string]map[string]struct{}
	Conflicts      []VersionConflict
	Cycles         []CircularDependency
	AnalysedAt     time.Time
}

// NewGraph returns an empty, ready-to-populate graph.
func NewGraph() *Graph {
	return &Graph{
		nameToID:       map[string]NodeID{},
		DirectDeps:     map[string]map[string]struct{}{},
		TransitiveDeps: map[string]map[string]struct{}{},
	}
}

// AddNode inserts n (if not already present by name) and returns its id.
// Re-adding an existing name is a no-op that returns the existing id.
func (g *Graph) AddNode(n Node) NodeID {
	if id, ok := g.nameToID[n.Name]; ok {
		return id
	}
	id := NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, n)
	g.nameToID[n.Name] = id
	g.DirectDeps[n.Name] = map[string]struct{}{}
	return id
}

// NodeByName returns the node id for name, if present.
func (g *Graph) NodeByName(name string) (NodeID, bool) {
	id, ok := g.nameToID[name]
	return id, ok
}

// AddEdge records a dependency edge and updates DirectDeps. Both endpoints
// must already exist via AddNode.
func (g *Graph) AddEdge(e Edge) {
	g.Edges = append(g.Edges, e)
	from := g.Nodes[e.From].Name
	to := g.Nodes[e.To].Name
	if g.DirectDeps[from] == nil {
		g.DirectDeps[from] = map[string]struct{}{}
	}
	g.DirectDeps[from][to] = struct{}{}
}

// ComputeTransitiveDeps fills TransitiveDeps[n] with the reflexive-transitive
// closure over DirectDeps, minus {n}, using depth-first traversal with
// memoisation so shared subtrees are only walked once.
func (g *Graph) ComputeTransitiveDeps() {
	memo := map[string]map[string]struct{}{}
	for _, n := range g.Nodes {
		g.TransitiveDeps[n.Name] = closure(n.Name, g.DirectDeps, memo, map[string]bool{})
	}
}

func closure(name string, direct map[string]map[string]struct{}, memo map[string]map[string]struct{}, visiting map[string]bool) map[string]struct{} {
	if result, ok := memo[name]; ok {
		return result
	}
	if visiting[name] {
		// a cycle; the closure is whatever's been discovered without
		// recursing further through this path.
		return map[string]struct{}{}
	}
	visiting[name] = true

	result := map[string]struct{}{}
	for dep := range direct[name] {
		result[dep] = struct{}{}
		for transitive := range closure(dep, direct, memo, visiting) {
			result[transitive] = struct{}{}
		}
	}
	delete(visiting, name)
	memo[name] = result
	return result
}
