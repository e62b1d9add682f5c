package ledger

import (
	"context"
	"fmt"
)

const defaultRetentionDays = 90

// CleanupOldRecords deletes records older than daysToKeep from both the
// in-memory index and the durable store, prunes the timeline event log, and
// invalidates cached summaries, per spec.md §4.8's retention contract and
// testable property 10.
func (l *Ledger) CleanupOldRecords(ctx context.Context, daysToKeep int) (removed int, err error) {
	if daysToKeep <= 0 {
		daysToKeep = defaultRetentionDays
	}
	cutoff := l.now().AddDate(0, 0, -daysToKeep)

	l.mu.Lock()
	var toDelete []*Record
	for id, r := range l.records {
		if r.StartTime.Before(cutoff) {
			toDelete = append(toDelete, r)
			delete(l.records, id)
			delete(l.active, id)
		}
	}
	kept := l.timelineEvents[:0:0]
	for _, evt := range l.timelineEvents {
		if !evt.Timestamp.Before(cutoff) {
			kept = append(kept, evt)
		}
	}
	l.timelineEvents = kept
	l.invalidateSummaryCacheLocked()
	l.mu.Unlock()

	for _, r := range toDelete {
		if derr := l.deleteDurable(ctx, r); derr != nil {
			err = fmt.Errorf("ledger: deleting durable record %s: %w", r.ID, derr)
			l.log.Error("ledger: retention delete failed", "id", r.ID, "error", derr)
			continue
		}
		removed++
	}
	return removed, err
}

func (l *Ledger) deleteDurable(ctx context.Context, r *Record) error {
	if _, err := l.store.Delete(ctx, recordKey(r.ID)); err != nil {
		return err
	}
	if _, err := l.store.Delete(ctx, statusIndexKey(r.Status, r.ID)); err != nil {
		return err
	}
	if _, err := l.store.Delete(ctx, componentIndexKey(r.ComponentName, r.ID)); err != nil {
		return err
	}
	if _, err := l.store.Delete(ctx, timeIndexKey(r.StartTime, r.ID)); err != nil {
		return err
	}
	return nil
}
