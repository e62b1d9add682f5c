package resolve

import (
	"context"

	"github.com/a-h/provision/pkgmanager"
	"github.com/a-h/provision/version"
)

// DeclaredDependency is one dependency a requested component declares, as
// surfaced by a PackageManager backend.
type DeclaredDependency struct {
	Name       string
	Kind       EdgeKind
	Constraint string
}

// ComponentSource supplies the metadata the builder needs for each requested
// component: its type, currently-installed version (if any), and declared
// dependencies. Backed by pkgmanager.PackageManager in production; tests
// supply a fake.
type ComponentSource interface {
	ComponentType(ctx context.Context, name string) (string, bool)
	InstalledVersion(ctx context.Context, name string) (version.Version, bool)
	Dependencies(ctx context.Context, name string) []DeclaredDependency
}

// packageManagerSource adapts a pkgmanager.PackageManager into a
// ComponentSource, turning each entry of GetPackageInfo's Dependencies map
// into a "required" edge carrying that entry's constraint expression.
type packageManagerSource struct {
	pm pkgmanager.PackageManager
}

// NewPackageManagerSource builds a ComponentSource over a PackageManager
// port implementation.
func NewPackageManagerSource(pm pkgmanager.PackageManager) ComponentSource {
	return packageManagerSource{pm: pm}
}

func (s packageManagerSource) ComponentType(ctx context.Context, name string) (string, bool) {
	info, ok := s.pm.GetPackageInfo(ctx, name)
	if !ok {
		return "", false
	}
	return info.Name, true
}

func (s packageManagerSource) InstalledVersion(ctx context.Context, name string) (version.Version, bool) {
	return version.Version{}, false
}

func (s packageManagerSource) Dependencies(ctx context.Context, name string) []DeclaredDependency {
	info, ok := s.pm.GetPackageInfo(ctx, name)
	if !ok {
		return nil
	}
	deps := make([]DeclaredDependency, 0, len(info.Dependencies))
	for depName, constraint := range info.Dependencies {
		deps = append(deps, DeclaredDependency{Name: depName, Kind: EdgeRequired, Constraint: constraint})
	}
	return deps
}

// Build constructs a Graph from a requested component list per spec §4.3:
// one node per component (missing metadata becomes an unknown-type
// placeholder), one edge per declared dependency, then the transitive
// closure.
func Build(ctx context.Context, src ComponentSource, requested []string) *Graph {
	g := NewGraph()

	var queue []string
	seen := map[string]bool{}
	for _, name := range requested {
		if seen[name] {
			continue
		}
		seen[name] = true
		queue = append(queue, name)
	}

	for i := 0; i < len(queue); i++ {
		name := queue[i]
		componentType, known := src.ComponentType(ctx, name)
		node := Node{Name: name, ComponentType: componentType, Metadata: map[string]string{}}
		if installed, ok := src.InstalledVersion(ctx, name); ok {
			v := installed
			node.InstalledVersion = &v
			node.IsInstalled = true
		}
		if !known {
			node.ComponentType = ""
		}
		fromID := g.AddNode(node)

		for _, dep := range src.Dependencies(ctx, name) {
			if !seen[dep.Name] {
				seen[dep.Name] = true
				queue = append(queue, dep.Name)
			}
		}
		_ = fromID
	}

	// Second pass: now every node exists, wire edges (a dependency may have
	// been discovered after its dependent was first visited).
	for _, name := range queue {
		fromID, _ := g.NodeByName(name)
		for _, dep := range src.Dependencies(ctx, name) {
			toID, ok := g.NodeByName(dep.Name)
			if !ok {
				toID = g.AddNode(Node{Name: dep.Name, Metadata: map[string]string{}})
			}
			edge := Edge{From: fromID, To: toID, Kind: dep.Kind, Satisfied: true}
			if dep.Constraint != "" {
				if c, err := version.ParseConstraint(dep.Constraint); err == nil {
					edge.Constraint = &c
				}
			}
			g.AddEdge(edge)
		}
	}

	g.ComputeTransitiveDeps()
	return g
}
