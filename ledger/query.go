package ledger

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/a-h/kv"
)

// Filters narrows a history query or export by status and/or component.
type Filters struct {
	Status    Status
	Component string
	Since     time.Time
	Until     time.Time
}

func (f Filters) matches(r *Record) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Component != "" && r.ComponentName != f.Component {
		return false
	}
	if !f.Since.IsZero() && r.StartTime.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.StartTime.Before(f.Until) {
		return false
	}
	return true
}

// allRecordsLocked returns every in-memory record sorted by StartTime
// descending (most recent first), matching the teacher's GetPrefix/sort
// idiom in accesslog.Get.
func (l *Ledger) allRecordsLocked() []*Record {
	out := make([]*Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// GetHistory returns up to limit records (after skipping offset), most
// recent first, satisfying Filters. limit<0 means unbounded, matching
// testable property 10's `getHistory(limit=∞)`.
func (l *Ledger) GetHistory(ctx context.Context, limit, offset int, filters Filters) []Record {
	l.mu.Lock()
	all := l.allRecordsLocked()
	l.mu.Unlock()

	var matched []Record
	for _, r := range all {
		if filters.matches(r) {
			matched = append(matched, *r)
		}
	}

	if offset > 0 {
		if offset >= len(matched) {
			return nil
		}
		matched = matched[offset:]
	}
	if limit >= 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

// recordSearchableText lists the record fields §4.8 requires case-insensitive
// substring search to cover.
func recordSearchableText(r *Record) []string {
	return append([]string{r.Title, r.Description, r.ComponentName, r.CurrentStep},
		append(append([]string{}, r.Details...), append(r.Warnings, r.Errors...)...)...)
}

// SearchOperations performs a case-insensitive substring match of query
// across title, description, componentName, currentStep, details, warnings
// and errors, per spec.md §4.8.
func (l *Ledger) SearchOperations(ctx context.Context, query string) []Record {
	needle := strings.ToLower(query)

	l.mu.Lock()
	all := l.allRecordsLocked()
	l.mu.Unlock()

	var out []Record
	for _, r := range all {
		for _, field := range recordSearchableText(r) {
			if strings.Contains(strings.ToLower(field), needle) {
				out = append(out, *r)
				break
			}
		}
	}
	return out
}

// GetByID loads one record, checking the in-memory cache first and falling
// back to the durable store, matching the teacher's cache-then-store
// pattern used by the package-manager TTL cache.
func (l *Ledger) GetByID(ctx context.Context, id string) (Record, bool, error) {
	l.mu.Lock()
	if r, ok := l.records[id]; ok {
		rec := *r
		l.mu.Unlock()
		return rec, true, nil
	}
	l.mu.Unlock()

	var rec Record
	_, ok, err := l.store.Get(ctx, recordKey(id), &rec)
	if err != nil || !ok {
		return Record{}, false, err
	}
	return rec, true, nil
}

// IDsByStatus returns operation ids indexed under the given status in the
// durable store, using the status secondary index written by persist.
func (l *Ledger) IDsByStatus(ctx context.Context, status Status) ([]string, error) {
	rows, err := l.store.GetPrefix(ctx, path.Join("/ledger/bystatus", string(status))+"/", 0, -1)
	if err != nil {
		return nil, err
	}
	return kv.ValuesOf[string](rows)
}

// IDsByComponent returns operation ids indexed under the given component
// name in the durable store.
func (l *Ledger) IDsByComponent(ctx context.Context, component string) ([]string, error) {
	rows, err := l.store.GetPrefix(ctx, path.Join("/ledger/bycomponent", url.PathEscape(component))+"/", 0, -1)
	if err != nil {
		return nil, err
	}
	return kv.ValuesOf[string](rows)
}
