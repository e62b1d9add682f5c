package ledger

import (
	"context"
	"time"
)

// Period is a named lookback window for GetOperationSummary.
type Period string

const (
	Period1Hour  Period = "1h"
	Period24Hour Period = "24h"
	Period7Day   Period = "7d"
	Period30Day  Period = "30d"
)

func (p Period) duration() time.Duration {
	switch p {
	case Period1Hour:
		return time.Hour
	case Period7Day:
		return 7 * 24 * time.Hour
	case Period30Day:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Summary is the aggregate produced by GetOperationSummary.
type Summary struct {
	Period          Period
	TotalOperations int
	SuccessCount    int
	FailureCount    int
	SuccessRate     float64
	AverageDuration time.Duration
	ByKind          map[Kind]int
	ByComponent     map[string]int
	ByStatus        map[Status]int
}

type summaryCacheKey struct {
	period    Period
	component string
}

type cachedSummary struct {
	summary   Summary
	expiresAt time.Time
}

const summaryCacheTTL = 5 * time.Minute

func (l *Ledger) invalidateSummaryCacheLocked() {
	l.summaryCache = make(map[summaryCacheKey]cachedSummary)
}

// GetOperationSummary aggregates records from now-period.duration() to now,
// optionally filtered by component, caching the result for 5 minutes keyed
// by (period, component) per spec.md §4.8.
func (l *Ledger) GetOperationSummary(ctx context.Context, period Period, component string) Summary {
	key := summaryCacheKey{period: period, component: component}
	now := l.now()

	l.mu.Lock()
	if cached, ok := l.summaryCache[key]; ok && now.Before(cached.expiresAt) {
		l.mu.Unlock()
		return cached.summary
	}
	all := l.allRecordsLocked()
	l.mu.Unlock()

	since := now.Add(-period.duration())
	summary := Summary{
		Period:      period,
		ByKind:      make(map[Kind]int),
		ByComponent: make(map[string]int),
		ByStatus:    make(map[Status]int),
	}

	var totalDuration time.Duration
	var terminalCount int
	for _, r := range all {
		if r.StartTime.Before(since) {
			continue
		}
		if component != "" && r.ComponentName != component {
			continue
		}
		summary.TotalOperations++
		summary.ByKind[r.Kind]++
		summary.ByComponent[r.ComponentName]++
		summary.ByStatus[r.Status]++
		switch r.Status {
		case StatusCompleted:
			summary.SuccessCount++
		case StatusFailed, StatusCancelled:
			summary.FailureCount++
		}
		if isTerminal(r.Status) {
			totalDuration += time.Duration(r.DurationSeconds * float64(time.Second))
			terminalCount++
		}
	}
	if terminalCount > 0 {
		summary.AverageDuration = totalDuration / time.Duration(terminalCount)
	}
	if summary.SuccessCount+summary.FailureCount > 0 {
		summary.SuccessRate = float64(summary.SuccessCount) / float64(summary.SuccessCount+summary.FailureCount)
	}

	l.mu.Lock()
	l.summaryCache[key] = cachedSummary{summary: summary, expiresAt: now.Add(summaryCacheTTL)}
	l.mu.Unlock()

	return summary
}
