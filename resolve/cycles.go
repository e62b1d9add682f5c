package resolve

// colour is the DFS visitation state used by grey-stack cycle detection.
type colour int

const (
	white colour = iota
	grey
	black
)

// DetectCycles runs a colour-marking depth-first search over DirectDeps,
// reporting every cycle found. The grey stack holds the current path; on
// encountering a grey node the path is sliced from that node's position to
// report the cycle. Self-loops are reported as length-1 cycles.
func (g *Graph) DetectCycles() []CircularDependency {
	colours := make(map[string]colour, len(g.Nodes))
	for _, n := range g.Nodes {
		colours[n.Name] = white
	}

	var cycles []CircularDependency
	var path []string
	pathIndex := map[string]int{}

	var visit func(name string)
	visit = func(name string) {
		colours[name] = grey
		path = append(path, name)
		pathIndex[name] = len(path) - 1

		for dep := range g.DirectDeps[name] {
			switch colours[dep] {
			case white:
				visit(dep)
			case grey:
				start := pathIndex[dep]
				cyclePath := append([]string{}, path[start:]...)
				cyclePath = append(cyclePath, dep)
				cycles = append(cycles, CircularDependency{
					CyclePath: cyclePath,
					Length:    len(cyclePath) - 1,
					Severity:  cycleSeverity(len(cyclePath) - 1),
				})
			case black:
				// already fully explored, no cycle through here
			}
		}

		colours[name] = black
		path = path[:len(path)-1]
		delete(pathIndex, name)
	}

	for _, n := range g.Nodes {
		if colours[n.Name] == white {
			visit(n.Name)
		}
	}

	g.Cycles = cycles
	return cycles
}

func cycleSeverity(length int) string {
	switch {
	case length <= 3:
		return "high"
	case length <= 5:
		return "medium"
	default:
		return "low"
	}
}

// HasTopologicalOrder reports whether DirectDeps admits a topological order,
// i.e. no cycle exists. Used to validate invariant 4: absence of a reported
// cycle implies a valid order exists.
func (g *Graph) HasTopologicalOrder() bool {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Nodes))

	var dfs func(name string) bool
	dfs = func(name string) bool {
		switch state[name] {
		case done:
			return true
		case visiting:
			return false
		}
		state[name] = visiting
		for dep := range g.DirectDeps[name] {
			if !dfs(dep) {
				return false
			}
		}
		state[name] = done
		return true
	}

	for _, n := range g.Nodes {
		if !dfs(n.Name) {
			return false
		}
	}
	return true
}
