package ledger

import (
	"context"
	"sort"
	"time"
)

// TimelineEventType classifies a TimelineEvent.
type TimelineEventType string

const (
	TimelineEventStart    TimelineEventType = "start"
	TimelineEventProgress TimelineEventType = "progress"
	TimelineEventComplete TimelineEventType = "complete"
	TimelineEventError    TimelineEventType = "error"
)

// TimelineEvent is emitted once per Track call, per spec.md §4.8.
type TimelineEvent struct {
	Type      TimelineEventType
	Record    Record
	Timestamp time.Time
}

// Granularity is the bucket width for Timeline.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
	GranularityWeek   Granularity = "week"
	GranularityMonth  Granularity = "month"
)

func (g Granularity) duration() time.Duration {
	switch g {
	case GranularityMinute:
		return time.Minute
	case GranularityHour:
		return time.Hour
	case GranularityWeek:
		return 7 * 24 * time.Hour
	case GranularityMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// TimelineBucket aggregates events falling within [StartTime, EndTime).
type TimelineBucket struct {
	StartTime         time.Time
	EndTime           time.Time
	EventCounts       map[TimelineEventType]int
	RepresentativeEvents []TimelineEvent
}

const maxRepresentativeEvents = 5

// TimelineOptions narrows Timeline's range, granularity and component.
type TimelineOptions struct {
	From        time.Time
	To          time.Time
	Granularity Granularity
	Component   string
}

func (o TimelineOptions) withDefaults(now time.Time) TimelineOptions {
	if o.Granularity == "" {
		o.Granularity = GranularityDay
	}
	if o.To.IsZero() {
		o.To = now
	}
	if o.From.IsZero() {
		o.From = o.To.Add(-7 * 24 * time.Hour)
	}
	return o
}

// Timeline buckets the in-memory event log by granularity, defaulting to
// the last 7 days, matching spec.md §4.8's visualisation contract and
// testable property 11 (bucket.StartTime <= event.Timestamp < bucket.EndTime).
func (l *Ledger) Timeline(ctx context.Context, opts TimelineOptions) []TimelineBucket {
	opts = opts.withDefaults(l.now())
	step := opts.Granularity.duration()

	l.mu.Lock()
	events := make([]TimelineEvent, len(l.timelineEvents))
	copy(events, l.timelineEvents)
	l.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	var buckets []TimelineBucket
	for start := truncateTo(opts.From, step); start.Before(opts.To); start = start.Add(step) {
		buckets = append(buckets, TimelineBucket{
			StartTime:   start,
			EndTime:     start.Add(step),
			EventCounts: make(map[TimelineEventType]int),
		})
	}
	if len(buckets) == 0 {
		return buckets
	}

	for _, evt := range events {
		if evt.Timestamp.Before(opts.From) || !evt.Timestamp.Before(opts.To) {
			continue
		}
		if opts.Component != "" && evt.Record.ComponentName != opts.Component {
			continue
		}
		idx := int(evt.Timestamp.Sub(buckets[0].StartTime) / step)
		if idx < 0 || idx >= len(buckets) {
			continue
		}
		b := &buckets[idx]
		b.EventCounts[evt.Type]++
		if len(b.RepresentativeEvents) < maxRepresentativeEvents {
			b.RepresentativeEvents = append(b.RepresentativeEvents, evt)
		}
	}
	return buckets
}

func truncateTo(t time.Time, step time.Duration) time.Time {
	if step <= 0 {
		return t
	}
	return t.Truncate(step)
}
