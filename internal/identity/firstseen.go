package identity

import "time"

// Event is one sighting of a patient. An empty Key or a zero OccurredAt
// means the event cannot contribute to first-seen resolution.
type Event struct {
	Key        string
	OccurredAt time.Time
}

// FirstSeenIndex maps an identity key to its earliest sighting.
type FirstSeenIndex map[string]time.Time

// BuildFirstSeen folds events from all sources into the earliest timestamp per key.
// Only a strictly earlier timestamp replaces an entry, so on equal instants the
// event that came first in input order is kept.
func BuildFirstSeen(events []Event) FirstSeenIndex {
	idx := make(FirstSeenIndex, len(events))
	for _, ev := range events {
		if ev.Key == "" || ev.OccurredAt.IsZero() {
			continue
		}
		if cur, ok := idx[ev.Key]; !ok || ev.OccurredAt.Before(cur) {
			idx[ev.Key] = ev.OccurredAt
		}
	}
	return idx
}

// Lookup returns the first-seen time for key.
func (idx FirstSeenIndex) Lookup(key string) (time.Time, bool) {
	if key == "" {
		return time.Time{}, false
	}
	t, ok := idx[key]
	return t, ok
}

// IsFirstDay reports whether t falls on the same calendar date, in loc, as key's first sighting.
func (idx FirstSeenIndex) IsFirstDay(key string, t time.Time, loc *time.Location) bool {
	first, ok := idx.Lookup(key)
	if !ok || t.IsZero() {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	fy, fm, fd := first.In(loc).Date()
	ty, tm, td := t.In(loc).Date()
	return fy == ty && fm == tm && fd == td
}
