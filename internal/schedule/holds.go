package schedule

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultHoldTTL is how long the booking agent may keep a slot while it
// negotiates with the client.
const DefaultHoldTTL = 5 * time.Minute

// HoldManager tracks soft-lock expiries. It never changes appointment status;
// SweepExpired only reports which holds lapsed.
type HoldManager struct {
	now   func() time.Time
	holds map[uuid.UUID]time.Time
}

func NewHoldManager(now func() time.Time) *HoldManager {
	if now == nil {
		now = time.Now
	}
	return &HoldManager{
		now:   now,
		holds: make(map[uuid.UUID]time.Time),
	}
}

// CreateHold records a hold expiring ttl from now and returns the expiry.
func (h *HoldManager) CreateHold(id uuid.UUID, ttl time.Duration) time.Time {
	exp := h.now().Add(ttl)
	h.holds[id] = exp
	return exp
}

// restore re-registers a hold loaded from storage with its original expiry.
func (h *HoldManager) restore(id uuid.UUID, exp time.Time) {
	h.holds[id] = exp
}

// Touch moves the expiry of an existing hold to ttl from now.
func (h *HoldManager) Touch(id uuid.UUID, ttl time.Duration) (time.Time, error) {
	if _, ok := h.holds[id]; !ok {
		return time.Time{}, ErrHoldNotFound
	}
	exp := h.now().Add(ttl)
	h.holds[id] = exp
	return exp, nil
}

func (h *HoldManager) Release(id uuid.UUID) {
	delete(h.holds, id)
}

func (h *HoldManager) ExpiresAt(id uuid.UUID) (time.Time, bool) {
	exp, ok := h.holds[id]
	return exp, ok
}

func (h *HoldManager) Len() int { return len(h.holds) }

// SweepExpired returns the holds whose expiry is at or before now, oldest first.
func (h *HoldManager) SweepExpired(now time.Time) []uuid.UUID {
	var due []uuid.UUID
	for id, exp := range h.holds {
		if !exp.After(now) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		ei, ej := h.holds[due[i]], h.holds[due[j]]
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return bytes.Compare(due[i][:], due[j][:]) < 0
	})
	return due
}
