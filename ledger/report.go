package ledger

import "context"

// SystemReport is an aggregate snapshot intended for a single dashboard-style
// call: what's currently active, the rolling 24-hour summary, and the most
// recent handful of completed operations. Mirrors the original's
// get_system_report aggregate, which spec.md's distillation dropped in favour
// of the individual query methods this file composes.
type SystemReport struct {
	ActiveOperations []Record
	Recent24Hour     Summary
	LatestCompleted  []Record
}

const latestCompletedLimit = 10

// GetSystemReport composes GetHistory/GetOperationSummary into the single
// snapshot a dashboard would poll, per SPEC_FULL.md's supplemented "System
// report / dashboard snapshot" feature.
func (l *Ledger) GetSystemReport(ctx context.Context) SystemReport {
	l.mu.Lock()
	var active []Record
	for id := range l.active {
		if r, ok := l.records[id]; ok {
			active = append(active, *r)
		}
	}
	l.mu.Unlock()

	completed := l.GetHistory(ctx, latestCompletedLimit, 0, Filters{Status: StatusCompleted})

	return SystemReport{
		ActiveOperations: active,
		Recent24Hour:     l.GetOperationSummary(ctx, Period24Hour, ""),
		LatestCompleted:  completed,
	}
}
