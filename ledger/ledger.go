// Package ledger implements the Operation History Ledger: a bounded
// in-memory index over a durable key/value store, timeline event emission,
// summary caching, multi-format export, and retention cleanup.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/a-h/kv"
)

// Kind is the category of tracked operation.
type Kind string

const (
	KindResolve  Kind = "resolve"
	KindDownload Kind = "download"
	KindInstall  Kind = "install"
	KindCompress Kind = "compress"
	KindVerify   Kind = "verify"
	KindCleanup  Kind = "cleanup"
)

// Status is the lifecycle state of a tracked operation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record is one operation history row, matching spec.md §4.8's schema.
type Record struct {
	ID              string
	Kind            Kind
	Status          Status
	ComponentName   string
	Title           string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds float64
	ProgressPercent float64
	CurrentStep     string
	TotalSteps      int
	StepNumber      int
	Details         []string
	Warnings        []string
	Errors          []string
	Result          string
	Metadata        map[string]string
	UserID          string
	SessionID       string
	SystemInfo      map[string]string
	CreatedAt       time.Time
}

// Progress is the input to Track; it describes the current state of an
// in-flight or just-finished operation.
type Progress struct {
	ID              string
	Kind            Kind
	ComponentName   string
	Title           string
	Description     string
	ProgressPercent float64
	CurrentStep     string
	TotalSteps      int
	StepNumber      int
	Details         []string
	Warnings        []string
	Errors          []string
	Result          string
	Metadata        map[string]string
	UserID          string
	SessionID       string
	Cancelled       bool
}

const defaultMaxHistoryRecords = 10_000

// Ledger is the Operation History Ledger: bounded in-memory records guarded
// by a mutex, backed by a durable kv.Store, with an in-memory slice of
// timeline events appended to on every Track call.
type Ledger struct {
	log   *slog.Logger
	store kv.Store
	now   func() time.Time

	mu              sync.Mutex
	records         map[string]*Record
	active          map[string]bool
	maxHistory      int
	timelineEvents  []TimelineEvent
	summaryCache    map[summaryCacheKey]cachedSummary
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxHistoryRecords overrides the default bound of 10,000 in-memory
// records.
func WithMaxHistoryRecords(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxHistory = n
		}
	}
}

// New constructs a Ledger over the given durable store and hydrates its
// in-memory index from it, so that a freshly started process (e.g. a new
// CLI invocation opening the same store) observes records written by a
// prior process, per spec.md §4.8's durability contract. The in-memory
// index is a cache over the durable store, not a replacement for it --
// matching the teacher's own cache-then-store pattern in
// pkgmanager's TTL cache.
func New(ctx context.Context, log *slog.Logger, store kv.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		log:          log,
		store:        store,
		now:          time.Now,
		records:      make(map[string]*Record),
		active:       make(map[string]bool),
		maxHistory:   defaultMaxHistoryRecords,
		summaryCache: make(map[summaryCacheKey]cachedSummary),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.hydrate(ctx); err != nil {
		return nil, fmt.Errorf("ledger: hydrating from durable store: %w", err)
	}
	return l, nil
}

// hydrate loads every record under the durable store's record prefix into
// the in-memory index and active set, restoring state across process
// restarts.
func (l *Ledger) hydrate(ctx context.Context) error {
	rows, err := l.store.GetPrefix(ctx, recordKeyPrefix, 0, -1)
	if err != nil {
		return err
	}
	records, err := kv.ValuesOf[Record](rows)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range records {
		rec := records[i]
		l.records[rec.ID] = &rec
		if !isTerminal(rec.Status) {
			l.active[rec.ID] = true
		}
	}
	for len(l.records) > l.maxHistory {
		l.evictOldestLocked()
	}
	return nil
}

const recordKeyPrefix = "/ledger/record/"

func recordKey(id string) string { return recordKeyPrefix + url.PathEscape(id) }
func statusIndexKey(status Status, id string) string {
	return path.Join("/ledger/bystatus", string(status), url.PathEscape(id))
}
func componentIndexKey(component, id string) string {
	return path.Join("/ledger/bycomponent", url.PathEscape(component), url.PathEscape(id))
}

// timeIndexKey zero-pads the Unix nanosecond timestamp so lexicographic key
// order matches chronological order, enabling range queries by startTime via
// GetPrefix over this prefix.
func timeIndexKey(t time.Time, id string) string {
	return path.Join("/ledger/bytime", fmt.Sprintf("%020d", t.UnixNano()), url.PathEscape(id))
}

func (l *Ledger) evictOldestLocked() {
	if len(l.records) <= l.maxHistory {
		return
	}
	var oldestID string
	var oldestStart time.Time
	for id, r := range l.records {
		if oldestID == "" || r.StartTime.Before(oldestStart) {
			oldestID = id
			oldestStart = r.StartTime
		}
	}
	if oldestID != "" {
		delete(l.records, oldestID)
	}
}
