package records

import (
	"sort"
	"time"
)

// SnapshotVersion is bumped when the persisted layout changes.
const SnapshotVersion = 1

// Batch holds the records parsed from one source file.
type Batch struct {
	ID           string            `json:"id"`
	Kind         Kind              `json:"kind"`
	AddedAt      time.Time         `json:"added_at"`
	Reservations []Reservation     `json:"reservations,omitempty"`
	Karte        []KarteRecord     `json:"karte,omitempty"`
	Listing      []ListingCategory `json:"listing,omitempty"`
	Surveys      []SurveyEntry     `json:"surveys,omitempty"`
}

// Len returns the number of records in the batch, whatever its kind.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	n := len(b.Reservations) + len(b.Karte) + len(b.Surveys)
	for _, c := range b.Listing {
		n += len(c.Days)
	}
	return n
}

// Snapshot is the full in-memory state of a workspace: every batch ever added.
type Snapshot struct {
	Version int               `json:"version"`
	Batches map[string]*Batch `json:"batches"`
}

// NewSnapshot returns an empty snapshot at the current version.
func NewSnapshot() *Snapshot {
	return &Snapshot{Version: SnapshotVersion, Batches: make(map[string]*Batch)}
}

// Put stores or replaces a batch.
func (s *Snapshot) Put(b *Batch) {
	if s.Batches == nil {
		s.Batches = make(map[string]*Batch)
	}
	s.Batches[b.ID] = b
}

// Remove deletes a batch and reports whether it existed.
func (s *Snapshot) Remove(id string) bool {
	if _, ok := s.Batches[id]; !ok {
		return false
	}
	delete(s.Batches, id)
	return true
}

// Set is every record of a snapshot, grouped by kind.
type Set struct {
	Reservations []Reservation
	Karte        []KarteRecord
	Listing      []ListingCategory
	Surveys      []SurveyEntry
}

// Flatten concatenates all batches ordered by (AddedAt, ID) so repeated runs see the same input order.
func (s *Snapshot) Flatten() Set {
	var out Set
	if s == nil {
		return out
	}
	batches := make([]*Batch, 0, len(s.Batches))
	for _, b := range s.Batches {
		if b != nil {
			batches = append(batches, b)
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		if batches[i].AddedAt.Equal(batches[j].AddedAt) {
			return batches[i].ID < batches[j].ID
		}
		return batches[i].AddedAt.Before(batches[j].AddedAt)
	})
	for _, b := range batches {
		out.Reservations = append(out.Reservations, b.Reservations...)
		out.Karte = append(out.Karte, b.Karte...)
		out.Listing = append(out.Listing, b.Listing...)
		out.Surveys = append(out.Surveys, b.Surveys...)
	}
	return out
}
