// Package pkgmanager implements the Package-Manager Port: the abstract
// capability to query available versions, fetch package metadata, and
// resolve constraints against an external catalogue (npm, pip, and similar
// ecosystems). Concrete backends live in npm.go and pip.go.
package pkgmanager

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/a-h/provision/version"
)

// decodeJSON is a small shared helper so backends don't each re-import
// encoding/json for the same one-shot decode.
func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

// DefaultDeadline is the per-operation timeout applied when a context has no
// earlier deadline of its own.
const DefaultDeadline = 30 * time.Second

// PackageInfo is the metadata returned for a single package name.
type PackageInfo struct {
	Name         string
	Latest       version.Version
	Versions     []version.Version
	Dependencies map[string]string // name -> constraint expression
}

// ResolvedTree is the flattened result of resolving a package against a
// catalogue. Dependencies are not walked recursively: the npm backend adds
// the root's direct dependencies at their latest versions, and the pip
// backend reports only the root.
type ResolvedTree struct {
	Root     string
	Versions map[string]version.Version
	Missing  []string // dependencies the catalogue had no metadata for
}

// Conflict describes two or more constraints on the same package name that
// cannot be jointly satisfied, as reported by CheckDependencyConflicts.
type Conflict struct {
	Name        string
	Constraints []string
}

// PackageManager is the port consumed by the resolver. Every method must
// return within DefaultDeadline (or the context's own deadline, if shorter)
// and degrade to a zero value rather than blocking indefinitely; the spec's
// "tolerates missing metadata" rule means callers treat a zero PackageInfo
// or empty version list as "unknown", not as an error.
type PackageManager interface {
	IsAvailable(ctx context.Context) bool
	GetPackageInfo(ctx context.Context, name string) (PackageInfo, bool)
	GetAvailableVersions(ctx context.Context, name string) []version.Version
	FindCompatibleVersion(ctx context.Context, name string, constraints []version.Constraint) (version.Version, bool)
	ResolveDependencies(ctx context.Context, name string, constraints []version.Constraint) ResolvedTree
	CheckDependencyConflicts(ctx context.Context, declared map[string]string) []Conflict
}

// withDeadline bounds ctx by DefaultDeadline unless the caller already set a
// tighter deadline.
func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < DefaultDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultDeadline)
}

// cacheEntry is a single (manager, name) -> PackageInfo cache slot.
type cacheEntry struct {
	info    PackageInfo
	ok      bool
	expires time.Time
}

// cache is the short-lived (one-hour TTL) package-info cache shared by every
// backend, keyed by (manager, name) to bound external traffic per spec §4.2.
type cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newCache(ttl time.Duration) *cache {
	return &cache{entries: map[string]cacheEntry{}, ttl: ttl, now: time.Now}
}

func (c *cache) get(manager, name string) (PackageInfo, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[manager+"|"+name]
	if !found || c.now().After(e.expires) {
		return PackageInfo{}, false, false
	}
	return e.info, e.ok, true
}

func (c *cache) put(manager, name string, info PackageInfo, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[manager+"|"+name] = cacheEntry{info: info, ok: ok, expires: c.now().Add(c.ttl)}
}
