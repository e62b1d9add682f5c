package pkgmanager

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/provision/version"
)

// npmRegistryURL is the default registry consulted by NewNPM. Tests and
// alternate deployments override it via WithRegistryURL.
const npmRegistryURL = "https://registry.npmjs.org"

// NPM is a PackageManager backend for the npm ecosystem. Constraint
// satisfaction defers to Masterminds/semver/v3 rather than this module's own
// version package, since npm's range syntax (`^`, `~`, `1.x`, `||`) is not
// identical to the spec's own caret/tilde rules and callers expect
// registry-accurate answers.
type NPM struct {
	log     *slog.Logger
	client  *http.Client
	baseURL string
	cache   *cache
}

// NewNPM constructs an npm-backed PackageManager.
func NewNPM(log *slog.Logger) *NPM {
	return &NPM{
		log:     log,
		client:  &http.Client{Timeout: DefaultDeadline},
		baseURL: npmRegistryURL,
		cache:   newCache(time.Hour),
	}
}

// WithRegistryURL overrides the registry base URL, e.g. for a private mirror
// or test server.
func (n *NPM) WithRegistryURL(url string) *NPM {
	n.baseURL = url
	return n
}

// registryPackument mirrors the subset of an npm "packument" this backend
// consumes: the dist-tags and version->manifest map.
type registryPackument struct {
	Name     string                        `json:"name"`
	DistTags map[string]string             `json:"dist-tags"`
	Versions map[string]registryVersionDoc `json:"versions"`
}

type registryVersionDoc struct {
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

func (n *NPM) IsAvailable(ctx context.Context) bool {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, n.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (n *NPM) GetPackageInfo(ctx context.Context, name string) (PackageInfo, bool) {
	if info, ok, found := n.cache.get("npm", name); found {
		return info, ok
	}

	info, ok := n.fetchPackageInfo(ctx, name)
	n.cache.put("npm", name, info, ok)
	return info, ok
}

func (n *NPM) fetchPackageInfo(ctx context.Context, name string) (PackageInfo, bool) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	url := fmt.Sprintf("%s/%s", n.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		n.log.Warn("npm: failed to build request", slog.String("package", name), slog.Any("error", err))
		return PackageInfo{}, false
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("npm: registry request failed", slog.String("package", name), slog.Any("error", err))
		return PackageInfo{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PackageInfo{}, false
	}

	var doc registryPackument
	if err := decodeJSON(resp.Body, &doc); err != nil {
		n.log.Warn("npm: failed to decode packument", slog.String("package", name), slog.Any("error", err))
		return PackageInfo{}, false
	}

	info := PackageInfo{Name: name, Dependencies: map[string]string{}}
	var versions []version.Version
	for raw := range doc.Versions {
		v, err := version.Parse(raw)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return version.Less(versions[i], versions[j]) })
	info.Versions = versions

	if latest, ok := doc.DistTags["latest"]; ok {
		if v, err := version.Parse(latest); err == nil {
			info.Latest = v
			if doc := doc.Versions[latest]; doc.Version != "" {
				info.Dependencies = doc.Dependencies
			}
		}
	} else if len(versions) > 0 {
		info.Latest = versions[len(versions)-1]
	}

	return info, true
}

func (n *NPM) GetAvailableVersions(ctx context.Context, name string) []version.Version {
	info, ok := n.GetPackageInfo(ctx, name)
	if !ok {
		return nil
	}
	return info.Versions
}

// FindCompatibleVersion picks the highest available version matching every
// constraint, using Masterminds/semver for the range check.
func (n *NPM) FindCompatibleVersion(ctx context.Context, name string, constraints []version.Constraint) (version.Version, bool) {
	versions := n.GetAvailableVersions(ctx, name)
	if len(versions) == 0 {
		return version.Version{}, false
	}

	semConstraints, err := toSemverConstraints(constraints)
	if err != nil {
		n.log.Warn("npm: unsupported constraint set, falling back to own engine", slog.String("package", name), slog.Any("error", err))
		found := version.FindCompatible(versions, constraints)
		if len(found) == 0 {
			return version.Version{}, false
		}
		return found[0].Version, true
	}

	var best *version.Version
	for i := range versions {
		sv, err := semver.NewVersion(versions[i].String())
		if err != nil {
			continue
		}
		if !semConstraints.Check(sv) {
			continue
		}
		if best == nil || version.Greater(versions[i], *best) {
			best = &versions[i]
		}
	}
	if best == nil {
		return version.Version{}, false
	}
	return *best, true
}

func (n *NPM) ResolveDependencies(ctx context.Context, name string, constraints []version.Constraint) ResolvedTree {
	tree := ResolvedTree{Root: name, Versions: map[string]version.Version{}}

	v, ok := n.FindCompatibleVersion(ctx, name, constraints)
	if !ok {
		tree.Missing = append(tree.Missing, name)
		return tree
	}
	tree.Versions[name] = v

	info, ok := n.GetPackageInfo(ctx, name)
	if !ok {
		return tree
	}
	for dep := range info.Dependencies {
		depInfo, ok := n.GetPackageInfo(ctx, dep)
		if !ok {
			tree.Missing = append(tree.Missing, dep)
			continue
		}
		tree.Versions[dep] = depInfo.Latest
	}
	return tree
}

func (n *NPM) CheckDependencyConflicts(ctx context.Context, declared map[string]string) []Conflict {
	// npm's own semver ranges can declare multiple disjoint requirements for
	// the same name only when a caller merges two subtrees; that merge
	// happens in the resolver, not here, so this backend reports none.
	return nil
}

// toSemverConstraints translates this module's constraint values into a
// single Masterminds/semver/v3 constraint string, since npm ranges are
// expressed and checked using that library rather than this module's own
// version.Satisfies engine.
func toSemverConstraints(constraints []version.Constraint) (*semver.Constraints, error) {
	if len(constraints) == 0 {
		return semver.NewConstraint("*")
	}
	parts := make([]string, 0, len(constraints))
	for _, c := range constraints {
		s, err := constraintToSemverString(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	joined := parts[0]
	for _, p := range parts[1:] {
		joined += ", " + p
	}
	return semver.NewConstraint(joined)
}

func constraintToSemverString(c version.Constraint) (string, error) {
	switch c.Kind {
	case version.KindExact:
		return "= " + c.Lo.String(), nil
	case version.KindGreaterThan:
		return "> " + c.Lo.String(), nil
	case version.KindGreaterEqual:
		return ">= " + c.Lo.String(), nil
	case version.KindLessThan:
		return "< " + c.Lo.String(), nil
	case version.KindLessEqual:
		return "<= " + c.Lo.String(), nil
	case version.KindCaret:
		return "^" + c.Lo.String(), nil
	case version.KindTilde:
		return "~" + c.Lo.String(), nil
	case version.KindRange:
		return fmt.Sprintf(">= %s, <= %s", c.Lo.String(), c.Hi.String()), nil
	case version.KindWildcard:
		return fmt.Sprintf("%d.%d.x", c.Lo.Major, c.Lo.Minor), nil
	default:
		return "", fmt.Errorf("pkgmanager: unsupported constraint kind %q", c.Kind)
	}
}
