// Package mirror implements the Mirror Health Registry: per-mirror
// latency/success/failure tracking, rate-limited HEAD-probe health checks,
// and best-mirror selection.
package mirror

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the derived health state of a mirror.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusSlow        Status = "slow"
	StatusUnreachable Status = "unreachable"
	StatusFailed      Status = "failed"
)

// Info is a MirrorInfo: the tracked state of a single mirror URL.
type Info struct {
	URL             string
	Status          Status
	ResponseTime    time.Duration
	SuccessCount    int
	FailureCount    int
	LastUsed        time.Time
	LastHealthCheck time.Time
}

func (i Info) successRate() float64 {
	total := i.SuccessCount + i.FailureCount
	if total == 0 {
		return 1.0
	}
	return float64(i.SuccessCount) / float64(total)
}

const healthCheckInterval = 5 * time.Minute
const probeTimeout = 10 * time.Second

// Registry tracks MirrorInfo per URL under a single mutex, per spec §4.4.
type Registry struct {
	mu      sync.Mutex
	mirrors map[string]*Info
	client  *http.Client
	now     func() time.Time
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		mirrors: map[string]*Info{},
		client:  &http.Client{Timeout: probeTimeout},
		now:     time.Now,
	}
}

func (r *Registry) entry(url string) *Info {
	e, ok := r.mirrors[url]
	if !ok {
		e = &Info{URL: url, Status: StatusHealthy}
		r.mirrors[url] = e
	}
	return e
}

// RecordSuccess updates the mirror's counters and response time after a
// successful transfer.
func (r *Registry) RecordSuccess(url string, responseTime time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(url)
	e.SuccessCount++
	e.ResponseTime = responseTime
	e.LastUsed = r.now()
	e.Status = statusFromResponseTime(responseTime)
	if e.FailureCount > e.SuccessCount {
		e.Status = StatusFailed
	}
}

// RecordFailure updates the mirror's counters after a failed transfer.
func (r *Registry) RecordFailure(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(url)
	e.FailureCount++
	e.LastUsed = r.now()
	if e.FailureCount > e.SuccessCount {
		e.Status = StatusFailed
	}
}

func statusFromResponseTime(d time.Duration) Status {
	switch {
	case d < 2*time.Second:
		return StatusHealthy
	case d < 5*time.Second:
		return StatusSlow
	default:
		return StatusUnreachable
	}
}

// Probe issues a rate-limited HEAD request against url, updating its status
// and response time. If the last probe happened within healthCheckInterval,
// Probe is a no-op and returns the cached Info.
func (r *Registry) Probe(ctx context.Context, url string) Info {
	r.mu.Lock()
	e := r.entry(url)
	if r.now().Sub(e.LastHealthCheck) < healthCheckInterval && !e.LastHealthCheck.IsZero() {
		snapshot := *e
		r.mu.Unlock()
		return snapshot
	}
	r.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := r.now()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, url, nil)
	var status Status
	var elapsed time.Duration
	if err == nil {
		resp, doErr := r.client.Do(req)
		elapsed = r.now().Sub(start)
		if doErr != nil {
			status = StatusUnreachable
		} else {
			resp.Body.Close()
			status = statusFromResponseTime(elapsed)
		}
	} else {
		status = StatusUnreachable
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e = r.entry(url)
	e.Status = status
	e.ResponseTime = elapsed
	e.LastHealthCheck = r.now()
	return *e
}

// Get returns a snapshot of the tracked Info for url, if any.
func (r *Registry) Get(url string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.mirrors[url]
	if !ok {
		return Info{}, false
	}
	return *e, true
}

// Select ranks mirrors with status healthy or slow by
// successRate - 0.1*responseTimeSeconds and returns the best one. Ties break
// by a stable sort on URL. If no mirror is acceptable, the first of
// candidates is returned.
func (r *Registry) Select(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	r.mu.Lock()
	type scored struct {
		url   string
		score float64
	}
	var acceptable []scored
	for _, url := range candidates {
		e, ok := r.mirrors[url]
		if !ok || (e.Status != StatusHealthy && e.Status != StatusSlow) {
			continue
		}
		score := e.successRate() - 0.1*e.ResponseTime.Seconds()
		acceptable = append(acceptable, scored{url: url, score: score})
	}
	r.mu.Unlock()

	if len(acceptable) == 0 {
		return candidates[0]
	}

	sort.SliceStable(acceptable, func(i, j int) bool {
		if acceptable[i].score != acceptable[j].score {
			return acceptable[i].score > acceptable[j].score
		}
		return acceptable[i].url < acceptable[j].url
	})
	return acceptable[0].url
}
