package schedule

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

// Store is the persistence collaborator. Save must apply all of its
// appointments or none of them.
type Store interface {
	Load(ctx context.Context, resourceID string, date timemodel.Date) ([]Appointment, error)
	Find(ctx context.Context, id uuid.UUID) (Appointment, error)
	ListProposed(ctx context.Context) ([]Appointment, error)
	Save(ctx context.Context, appts ...Appointment) error
}

// Notifier receives appointments that changed without their owner asking:
// holds cancelled by a manual override and holds that expired.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type EventType string

const (
	EventHoldOverridden EventType = "APPOINTMENT_OVERRIDDEN"
	EventHoldExpired    EventType = "APPOINTMENT_EXPIRED"
)

type Event struct {
	Type         EventType
	Appointments []Appointment
	OccurredAt   time.Time
}

// Locker guards a resource timeline across processes. Implementations wait a
// bounded time for the lock and then fail with an error wrapping
// ErrResourceBusy. Configuring one marks the store as shared: the engine
// reloads the timeline inside every lock it takes.
type Locker interface {
	WithResourceLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Recorder observes engine outcomes; the metrics package implements it.
type Recorder interface {
	ProposeResult(origin Origin, err error)
	Transition(from, to AppointmentStatus, origin Origin)
	Swept(expired int, elapsed time.Duration)
}

type nopLocker struct{}

func (nopLocker) WithResourceLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }

type nopRecorder struct{}

func (nopRecorder) ProposeResult(Origin, error)                             {}
func (nopRecorder) Transition(AppointmentStatus, AppointmentStatus, Origin) {}
func (nopRecorder) Swept(int, time.Duration)                                {}

// MemoryStore keeps appointments in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	appts map[uuid.UUID]Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{appts: make(map[uuid.UUID]Appointment)}
}

func (s *MemoryStore) Load(_ context.Context, resourceID string, date timemodel.Date) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, a := range s.appts {
		if a.ResourceID == resourceID && a.Date == date {
			out = append(out, a.clone())
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *MemoryStore) Find(_ context.Context, id uuid.UUID) (Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appts[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a.clone(), nil
}

func (s *MemoryStore) ListProposed(_ context.Context) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, a := range s.appts {
		if a.Status == StatusProposed {
			out = append(out, a.clone())
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, appts ...Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range appts {
		s.appts[a.ID] = a.clone()
	}
	return nil
}

func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		a, b := appts[i], appts[j]
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Interval.Start != b.Interval.Start {
			return a.Interval.Start < b.Interval.Start
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}
