package schedule

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

// Entry is one reservation on a resource timeline.
type Entry struct {
	ID       uuid.UUID
	Interval timemodel.Interval
	Origin   Origin
	Status   AppointmentStatus
}

// Timeline is the ordered set of active reservations of one resource on one day.
// Entries are kept sorted by (start, id). It is not safe for concurrent use;
// the engine serializes access per resource.
type Timeline struct {
	entries []Entry
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

func entryLess(a, b Entry) bool {
	if a.Interval.Start != b.Interval.Start {
		return a.Interval.Start < b.Interval.Start
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// blocks decides whether an existing entry prevents a candidate with the given
// origin from reaching status want. Confirmed entries always block. An agent
// hold blocks other agent proposals and agent confirms but only advises
// against manual ones; a manual hold never blocks a confirm.
func blocks(existing Entry, candidate Origin, want AppointmentStatus) bool {
	if existing.Status == StatusConfirmed {
		return true
	}
	if want == StatusProposed {
		return candidate == OriginAgent
	}
	return existing.Origin == OriginAgent && candidate == OriginAgent
}

// Overlapping returns the entries overlapping iv in start order.
func (t *Timeline) Overlapping(iv timemodel.Interval) []Entry {
	var out []Entry
	end := iv.End()
	for _, e := range t.entries {
		if e.Interval.Start >= end {
			break
		}
		if timemodel.Overlaps(e.Interval, iv) {
			out = append(out, e)
		}
	}
	return out
}

// Query returns the ids of the entries overlapping iv.
func (t *Timeline) Query(iv timemodel.Interval) []uuid.UUID {
	overlapping := t.Overlapping(iv)
	ids := make([]uuid.UUID, 0, len(overlapping))
	for _, e := range overlapping {
		ids = append(ids, e.ID)
	}
	return ids
}

// Check returns a *ConflictError for the first entry other than self that
// blocks a candidate on iv.
func (t *Timeline) Check(self uuid.UUID, iv timemodel.Interval, candidate Origin, want AppointmentStatus) error {
	for _, e := range t.Overlapping(iv) {
		if e.ID == self {
			continue
		}
		if blocks(e, candidate, want) {
			return &ConflictError{WithID: e.ID}
		}
	}
	return nil
}

// Insert adds e after checking it against the blocking policy.
func (t *Timeline) Insert(e Entry) error {
	if err := t.Check(e.ID, e.Interval, e.Origin, e.Status); err != nil {
		return err
	}
	t.put(e)
	return nil
}

func (t *Timeline) put(e Entry) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return !entryLess(t.entries[i], e)
	})
	t.entries = append(t.entries, Entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
}

func (t *Timeline) index(id uuid.UUID) int {
	for i := range t.entries {
		if t.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Promote turns the proposed entry id into a confirmed one on behalf of actor.
// It returns ErrNotFound when id is not on the timeline.
func (t *Timeline) Promote(id uuid.UUID, actor Origin) error {
	i := t.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if err := t.Check(id, t.entries[i].Interval, actor, StatusConfirmed); err != nil {
		return err
	}
	t.entries[i].Status = StatusConfirmed
	return nil
}

// Remove deletes id. Removing an absent id is a no-op.
func (t *Timeline) Remove(id uuid.UUID) {
	i := t.index(id)
	if i < 0 {
		return
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
}
