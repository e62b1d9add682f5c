package pkgmanager

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	pep440 "github.com/aquasecurity/go-pep440-version"

	"github.com/a-h/provision/version"
)

// Pip is a PackageManager backend for the Python/pip ecosystem. It shells
// out to `pip index versions <name>` rather than scraping PyPI's JSON API
// directly, matching the original tool's behaviour, and is tolerant of the
// command's human-oriented output format changing between pip releases (see
// parsePipIndexOutput).
type Pip struct {
	log   *slog.Logger
	cache *cache
	run   func(ctx context.Context, name string) ([]byte, error)
}

// NewPip constructs a pip-backed PackageManager that invokes the real pip
// binary on the host.
func NewPip(log *slog.Logger) *Pip {
	p := &Pip{log: log, cache: newCache(time.Hour)}
	p.run = p.runPipIndex
	return p
}

func (p *Pip) runPipIndex(ctx context.Context, name string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pip", "index", "versions", name)
	return cmd.Output()
}

func (p *Pip) IsAvailable(ctx context.Context) bool {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	_, err := exec.CommandContext(ctx, "pip", "--version").Output()
	return err == nil
}

func (p *Pip) GetPackageInfo(ctx context.Context, name string) (PackageInfo, bool) {
	if info, ok, found := p.cache.get("pip", name); found {
		return info, ok
	}
	info, ok := p.fetchPackageInfo(ctx, name)
	p.cache.put("pip", name, info, ok)
	return info, ok
}

func (p *Pip) fetchPackageInfo(ctx context.Context, name string) (PackageInfo, bool) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	out, err := p.run(ctx, name)
	if err != nil {
		p.log.Warn("pip: index query failed", slog.String("package", name), slog.Any("error", err))
		return PackageInfo{}, false
	}

	versions, latest, ok := parsePipIndexOutput(string(out))
	if !ok {
		return PackageInfo{}, false
	}

	return PackageInfo{Name: name, Versions: versions, Latest: latest, Dependencies: map[string]string{}}, true
}

// parsePipIndexOutput tolerates the two output shapes pip has used across
// releases:
//
//	Available versions: 2.31.0, 2.30.0, 2.29.0
//	  INSTALLED: 2.28.0
//	  LATEST:    2.31.0
//
// and an older single-line "(from versions: ...)" form. Unparseable version
// tokens are skipped rather than failing the whole call, per spec §9's note
// that pip's own output format is not contractually stable.
func parsePipIndexOutput(out string) ([]version.Version, version.Version, bool) {
	var tokens []string

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "Available versions:"):
			tokens = append(tokens, splitVersionList(strings.TrimPrefix(line, "Available versions:"))...)
		case strings.Contains(line, "from versions:"):
			idx := strings.Index(line, "from versions:")
			rest := line[idx+len("from versions:"):]
			rest = strings.TrimSuffix(strings.TrimSpace(rest), ")")
			tokens = append(tokens, splitVersionList(rest)...)
		}
	}

	if len(tokens) == 0 {
		return nil, version.Version{}, false
	}

	var versions []version.Version
	for _, tok := range tokens {
		pv, err := pep440.Parse(tok)
		if err != nil {
			continue
		}
		v, err := version.Parse(pv.String())
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return nil, version.Version{}, false
	}

	sort.Slice(versions, func(i, j int) bool { return version.Less(versions[i], versions[j]) })
	latest := versions[len(versions)-1]
	return versions, latest, true
}

func splitVersionList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (p *Pip) GetAvailableVersions(ctx context.Context, name string) []version.Version {
	info, ok := p.GetPackageInfo(ctx, name)
	if !ok {
		return nil
	}
	return info.Versions
}

// FindCompatibleVersion uses go-pep440-version's specifier set so that pip's
// own `>=,<,!=,~=` PEP 440 semantics are honoured rather than this module's
// own caret/tilde rules.
func (p *Pip) FindCompatibleVersion(ctx context.Context, name string, constraints []version.Constraint) (version.Version, bool) {
	versions := p.GetAvailableVersions(ctx, name)
	if len(versions) == 0 {
		return version.Version{}, false
	}

	spec, err := toPep440Specifiers(constraints)
	if err != nil {
		p.log.Warn("pip: unsupported constraint set, falling back to own engine", slog.String("package", name), slog.Any("error", err))
		found := version.FindCompatible(versions, constraints)
		if len(found) == 0 {
			return version.Version{}, false
		}
		return found[0].Version, true
	}

	var best *version.Version
	for i := range versions {
		pv, err := pep440.Parse(versions[i].String())
		if err != nil {
			continue
		}
		if !spec.Check(pv) {
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

func (p *Pip) ResolveDependencies(ctx context.Context, name string, constraints []version.Constraint) ResolvedTree {
	tree := ResolvedTree{Root: name, Versions: map[string]version.Version{}}
	v, ok := p.FindCompatibleVersion(ctx, name, constraints)
	if !ok {
		tree.Missing = append(tree.Missing, name)
		return tree
	}
	tree.Versions[name] = v
	// pip's CLI surface exposes no dependency graph without downloading the
	// sdist/wheel, which the Package-Manager Port does not do; this backend
	// reports only the root package's resolved version.
	return tree
}

func (p *Pip) CheckDependencyConflicts(ctx context.Context, declared map[string]string) []Conflict {
	return nil
}

func toPep440Specifiers(constraints []version.Constraint) (pep440.Specifiers, error) {
	parts := make([]string, 0, len(constraints))
	for _, c := range constraints {
		s, err := constraintToPep440String(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	joined := strings.Join(parts, ",")
	if joined == "" {
		joined = ">=0"
	}
	return pep440.NewSpecifiers(joined)
}

func constraintToPep440String(c version.Constraint) (string, error) {
	switch c.Kind {
	case version.KindExact:
		return "==" + c.Lo.String(), nil
	case version.KindGreaterThan:
		return ">" + c.Lo.String(), nil
	case version.KindGreaterEqual:
		return ">=" + c.Lo.String(), nil
	case version.KindLessThan:
		return "<" + c.Lo.String(), nil
	case version.KindLessEqual:
		return "<=" + c.Lo.String(), nil
	case version.KindCaret, version.KindTilde:
		return "~=" + c.Lo.String(), nil
	case version.KindRange:
		return fmt.Sprintf(">=%s,<=%s", c.Lo.String(), c.Hi.String()), nil
	case version.KindWildcard:
		return fmt.Sprintf("==%d.%d.*", c.Lo.Major, c.Lo.Minor), nil
	default:
		return "", fmt.Errorf("pkgmanager: unsupported constraint kind %q", c.Kind)
	}
}
