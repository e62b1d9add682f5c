package ledger

import (
	"context"
	"fmt"
)

// deriveStatus implements spec.md §4.8's status-derivation rule: cancelled
// if so flagged; completed at 100% progress; failed on errors; running on
// progress >0; else pending. Progress has no separate completion flag, so a
// record becomes completed only by reaching 100%.
func deriveStatus(p Progress) Status {
	switch {
	case p.Cancelled:
		return StatusCancelled
	case p.ProgressPercent >= 100:
		return StatusCompleted
	case len(p.Errors) > 0:
		return StatusFailed
	case p.ProgressPercent > 0:
		return StatusRunning
	default:
		return StatusPending
	}
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// eventTypeFor maps a status transition to the TimelineEvent type emitted
// for it.
func eventTypeFor(prevExists bool, status Status) TimelineEventType {
	switch {
	case !prevExists:
		return TimelineEventStart
	case status == StatusFailed:
		return TimelineEventError
	case isTerminal(status):
		return TimelineEventComplete
	default:
		return TimelineEventProgress
	}
}

// Track records one progress update for an operation, deriving its status,
// updating the active-operations index, persisting to the durable store,
// and emitting a TimelineEvent. Duration is computed only once the record
// becomes terminal.
func (l *Ledger) Track(ctx context.Context, p Progress) (Record, error) {
	if p.ID == "" {
		return Record{}, fmt.Errorf("ledger: progress requires an id")
	}

	now := l.now()
	status := deriveStatus(p)

	l.mu.Lock()
	existing, had := l.records[p.ID]
	evt := eventTypeFor(had, status)

	var rec Record
	if had {
		rec = *existing
	} else {
		rec = Record{ID: p.ID, StartTime: now, CreatedAt: now}
	}

	rec.Kind = p.Kind
	rec.Status = status
	rec.ComponentName = p.ComponentName
	rec.Title = p.Title
	rec.Description = p.Description
	rec.ProgressPercent = p.ProgressPercent
	rec.CurrentStep = p.CurrentStep
	rec.TotalSteps = p.TotalSteps
	rec.StepNumber = p.StepNumber
	rec.Details = p.Details
	rec.Warnings = p.Warnings
	rec.Errors = p.Errors
	rec.Result = p.Result
	rec.Metadata = p.Metadata
	rec.UserID = p.UserID
	rec.SessionID = p.SessionID

	if isTerminal(status) {
		rec.EndTime = now
		rec.DurationSeconds = now.Sub(rec.StartTime).Seconds()
		delete(l.active, p.ID)
	} else {
		l.active[p.ID] = true
	}

	recCopy := rec
	l.records[p.ID] = &recCopy
	l.evictOldestLocked()
	l.timelineEvents = append(l.timelineEvents, TimelineEvent{
		Type:      evt,
		Record:    recCopy,
		Timestamp: now,
	})
	l.mu.Unlock()

	if err := l.persist(ctx, recCopy); err != nil {
		l.log.Error("ledger: persisting record failed", "id", p.ID, "error", err)
		return recCopy, fmt.Errorf("ledger: persisting record %s: %w", p.ID, err)
	}

	return recCopy, nil
}

// persist writes the record and its secondary index entries to the durable
// store, replacing any prior version (version -1 in kv.Store's Put means
// "don't check", matching the teacher's own accesslog/downloadcounter
// upsert usage).
func (l *Ledger) persist(ctx context.Context, r Record) error {
	if err := l.store.Put(ctx, recordKey(r.ID), -1, r); err != nil {
		return err
	}
	if err := l.store.Put(ctx, statusIndexKey(r.Status, r.ID), -1, r.ID); err != nil {
		return err
	}
	if err := l.store.Put(ctx, componentIndexKey(r.ComponentName, r.ID), -1, r.ID); err != nil {
		return err
	}
	if err := l.store.Put(ctx, timeIndexKey(r.StartTime, r.ID), -1, r.ID); err != nil {
		return err
	}
	return nil
}
