package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

const testDate = timemodel.Date("2026-10-20")

var testStart = time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

// flakyStore fails every Save while failSave is set.
type flakyStore struct {
	*MemoryStore
	mu       sync.Mutex
	failSave bool
}

func (s *flakyStore) setFail(v bool) {
	s.mu.Lock()
	s.failSave = v
	s.mu.Unlock()
}

func (s *flakyStore) Save(ctx context.Context, appts ...Appointment) error {
	s.mu.Lock()
	fail := s.failSave
	s.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return s.MemoryStore.Save(ctx, appts...)
}

// keyedLocker serializes callers per key in process, standing in for the
// Redis locker shared by several engines.
type keyedLocker struct {
	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{keys: make(map[string]*sync.Mutex)}
}

func (l *keyedLocker) WithResourceLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.keys[key]
	if !ok {
		m = &sync.Mutex{}
		l.keys[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// busyLocker never grants the lock.
type busyLocker struct{}

func (busyLocker) WithResourceLock(context.Context, string, func(context.Context) error) error {
	return fmt.Errorf("lock held elsewhere: %w", ErrResourceBusy)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock(testStart)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewEngine(opts...), clock
}

func propose(t *testing.T, e *Engine, resource, start string, minutes uint, origin Origin) Appointment {
	t.Helper()
	appt, err := e.Propose(context.Background(), ProposeRequest{
		ResourceID: resource,
		Date:       testDate,
		Interval:   iv(t, start, minutes),
		Origin:     origin,
	})
	require.NoError(t, err)
	return appt
}

func assertConfirmedDisjoint(t *testing.T, e *Engine, resources []string) {
	t.Helper()
	snap, err := e.Snapshot(context.Background(), resources, testDate)
	require.NoError(t, err)

	byResource := make(map[string][]Appointment)
	for _, a := range snap {
		if a.Status == StatusConfirmed {
			byResource[a.ResourceID] = append(byResource[a.ResourceID], a)
		}
	}
	for rid, appts := range byResource {
		for i := range appts {
			for j := i + 1; j < len(appts); j++ {
				require.False(t, timemodel.Overlaps(appts[i].Interval, appts[j].Interval),
					"resource %s: %s overlaps %s", rid, appts[i].Interval, appts[j].Interval)
			}
		}
	}
}

func TestEngine_JulianaScenario(t *testing.T) {
	ctx := context.Background()
	e, clock := newTestEngine(t)

	first := propose(t, e, "Juliana", "14:00", 45, OriginAgent)
	assert.Equal(t, StatusProposed, first.Status)
	require.NotNil(t, first.HoldExpiresAt)
	assert.Equal(t, testStart.Add(5*time.Minute), *first.HoldExpiresAt)

	second := propose(t, e, "Juliana", "16:00", 30, OriginAgent)

	clock.Advance(2 * time.Minute)
	confirmed, err := e.Confirm(ctx, first.ID, OriginAgent)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.Nil(t, confirmed.HoldExpiresAt)

	expired, err := e.ExpireSweep(ctx, testStart.Add(6*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, second.ID, expired[0].ID)
	assert.Equal(t, StatusExpired, expired[0].Status)

	got, err := e.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	ids, err := e.Query(ctx, "Juliana", testDate, iv(t, "08:00", 600))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID}, ids)
}

func TestEngine_ManualOverridesAgentHold(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	e, _ := newTestEngine(t, WithNotifier(notifier))

	agent := propose(t, e, "R", "14:00", 45, OriginAgent)

	// another agent cannot grab the same slot
	_, err := e.Propose(ctx, ProposeRequest{ResourceID: "R", Date: testDate, Interval: iv(t, "14:00", 30), Origin: OriginAgent})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, agent.ID, conflict.WithID)

	manual := propose(t, e, "R", "14:00", 30, OriginManual)
	confirmed, err := e.Confirm(ctx, manual.ID, OriginManual)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	victim, err := e.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, victim.Status)
	assert.Equal(t, ReasonOverriddenByManual, victim.CancelReason)
	assert.Nil(t, victim.HoldExpiresAt)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, EventHoldOverridden, notifier.events[0].Type)
	require.Len(t, notifier.events[0].Appointments, 1)
	assert.Equal(t, agent.ID, notifier.events[0].Appointments[0].ID)

	// the override leaves nothing to expire
	expired, err := e.ExpireSweep(ctx, testStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestEngine_AgentConfirmDoesNotOverride(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	agent := propose(t, e, "R", "14:00", 45, OriginAgent)
	manual := propose(t, e, "R", "14:00", 30, OriginManual)

	_, err := e.Confirm(ctx, manual.ID, OriginAgent)
	assert.ErrorIs(t, err, ErrConflict)

	// the agent hold itself can still be confirmed; the manual hold is advisory
	_, err = e.Confirm(ctx, agent.ID, OriginAgent)
	require.NoError(t, err)

	// now the confirmed booking blocks the manual one
	_, err = e.Confirm(ctx, manual.ID, OriginManual)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestEngine_CancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	appt := propose(t, e, "R", "10:00", 60, OriginManual)
	_, err := e.Confirm(ctx, appt.ID, OriginManual)
	require.NoError(t, err)

	first, err := e.Cancel(ctx, appt.ID, "client called")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, first.Status)

	again, err := e.Cancel(ctx, appt.ID, "duplicate click")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// the slot is free again
	propose(t, e, "R", "10:00", 60, OriginAgent)
}

func TestEngine_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	e, clock := newTestEngine(t)

	_, err := e.Confirm(ctx, uuid.New(), OriginManual)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.Cancel(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, ErrNotFound)

	appt := propose(t, e, "R", "10:00", 30, OriginAgent)
	_, err = e.Confirm(ctx, appt.ID, OriginAgent)
	require.NoError(t, err)
	_, err = e.Confirm(ctx, appt.ID, OriginAgent)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NotErrorIs(t, err, ErrHoldExpired)

	lapsed := propose(t, e, "R", "11:00", 30, OriginAgent)
	clock.Advance(DefaultHoldTTL)
	_, err = e.Confirm(ctx, lapsed.ID, OriginAgent)
	assert.ErrorIs(t, err, ErrHoldExpired)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = e.Confirm(ctx, lapsed.ID, OriginAgent)
	assert.ErrorIs(t, err, ErrHoldExpired, "confirming an expired appointment again")

	got, err := e.Get(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)

	_, err = e.Cancel(ctx, lapsed.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = e.Touch(ctx, lapsed.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEngine_ProposeValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	cases := []struct {
		name string
		req  ProposeRequest
		want error
	}{
		{"zero length", ProposeRequest{ResourceID: "R", Date: testDate, Interval: timemodel.Interval{Start: 600}, Origin: OriginAgent}, timemodel.ErrInvalidInterval},
		{"past midnight", ProposeRequest{ResourceID: "R", Date: testDate, Interval: timemodel.Interval{Start: 1430, DurationMinutes: 30}, Origin: OriginAgent}, timemodel.ErrInvalidInterval},
		{"in the past", ProposeRequest{ResourceID: "R", Date: testDate, Interval: iv(t, "08:00", 30), Origin: OriginAgent}, timemodel.ErrInvalidInterval},
		{"past day", ProposeRequest{ResourceID: "R", Date: "2026-10-19", Interval: iv(t, "14:00", 30), Origin: OriginAgent}, timemodel.ErrInvalidInterval},
		{"bad date", ProposeRequest{ResourceID: "R", Date: "tomorrow", Interval: iv(t, "14:00", 30), Origin: OriginAgent}, timemodel.ErrInvalidInterval},
		{"no resource", ProposeRequest{Date: testDate, Interval: iv(t, "14:00", 30), Origin: OriginAgent}, ErrInvalidResource},
		{"bad origin", ProposeRequest{ResourceID: "R", Date: testDate, Interval: iv(t, "14:00", 30), Origin: "robot"}, ErrInvalidOrigin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Propose(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEngine_TouchExtendsHold(t *testing.T) {
	ctx := context.Background()
	e, clock := newTestEngine(t)

	appt := propose(t, e, "R", "15:00", 30, OriginAgent)
	clock.Advance(4 * time.Minute)

	touched, err := e.Touch(ctx, appt.ID, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, testStart.Add(14*time.Minute), *touched.HoldExpiresAt)

	expired, err := e.ExpireSweep(ctx, testStart.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = e.ExpireSweep(ctx, testStart.Add(14*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, appt.ID, expired[0].ID)
}

func TestEngine_ConfirmRacesExpireSweep(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		e, _ := newTestEngine(t)
		appt := propose(t, e, "R", "14:00", 45, OriginAgent)

		var (
			wg         sync.WaitGroup
			confirmErr error
			swept      []Appointment
			start      = make(chan struct{})
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, confirmErr = e.Confirm(ctx, appt.ID, OriginAgent)
		}()
		go func() {
			defer wg.Done()
			<-start
			swept, _ = e.ExpireSweep(ctx, *appt.HoldExpiresAt)
		}()
		close(start)
		wg.Wait()

		got, err := e.Get(ctx, appt.ID)
		require.NoError(t, err)

		if confirmErr == nil {
			assert.Empty(t, swept)
			assert.Equal(t, StatusConfirmed, got.Status)
		} else {
			assert.ErrorIs(t, confirmErr, ErrInvalidState)
			require.Len(t, swept, 1)
			assert.Equal(t, StatusExpired, got.Status)
		}
	}
}

func TestEngine_ConcurrentConfirmsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	appt := propose(t, e, "R", "14:00", 45, OriginManual)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Confirm(ctx, appt.ID, OriginManual); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrInvalidState)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestEngine_WriteThrough(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	e, _ := newTestEngine(t, WithStore(store))

	store.setFail(true)
	_, err := e.Propose(ctx, ProposeRequest{ResourceID: "R", Date: testDate, Interval: iv(t, "14:00", 30), Origin: OriginAgent})
	assert.ErrorIs(t, err, ErrStorage)

	ids, err := e.Query(ctx, "R", testDate, iv(t, "14:00", 30))
	require.NoError(t, err)
	assert.Empty(t, ids, "failed proposal must not reserve the slot")

	store.setFail(false)
	agent := propose(t, e, "R", "14:00", 45, OriginAgent)
	manual := propose(t, e, "R", "14:00", 30, OriginManual)

	store.setFail(true)
	_, err = e.Confirm(ctx, manual.ID, OriginManual)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)

	got, err := e.Get(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProposed, got.Status, "override must not be half-applied")

	expired, err := e.ExpireSweep(ctx, testStart.Add(time.Hour))
	assert.ErrorIs(t, err, ErrStorage)
	assert.Empty(t, expired)

	store.setFail(false)
	expired, err = e.ExpireSweep(ctx, testStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, expired, 2)
}

func TestEngine_RestoreFromStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, _ := newTestEngine(t, WithStore(store))
	hold := propose(t, first, "R", "14:00", 45, OriginAgent)
	booked := propose(t, first, "R", "16:00", 30, OriginManual)
	_, err := first.Confirm(ctx, booked.ID, OriginManual)
	require.NoError(t, err)

	second, _ := newTestEngine(t, WithStore(store))
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = second.Propose(ctx, ProposeRequest{ResourceID: "R", Date: testDate, Interval: iv(t, "16:15", 30), Origin: OriginManual})
	assert.ErrorIs(t, err, ErrConflict)

	expired, err := second.ExpireSweep(ctx, *hold.HoldExpiresAt)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, hold.ID, expired[0].ID)

	// ids unknown to the index are found through the store
	third, _ := newTestEngine(t, WithStore(store))
	got, err := third.Get(ctx, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}

// Random propose/confirm/cancel/sweep sequences never leave two confirmed
// appointments overlapping on one resource.
func TestEngine_ConfirmedNeverOverlap(t *testing.T) {
	ctx := context.Background()
	faker := gofakeit.New(20261020)
	resources := []string{"Juliana", "Marcos", "Paula"}

	e, clock := newTestEngine(t)
	var ids []uuid.UUID

	for step := 0; step < 400; step++ {
		switch op := faker.IntRange(0, 9); {
		case op < 5:
			origin := OriginAgent
			if faker.Bool() {
				origin = OriginManual
			}
			start := timemodel.TimeOfDay(faker.IntRange(12*4, 19*4) * 15)
			req := ProposeRequest{
				ResourceID: resources[faker.IntRange(0, len(resources)-1)],
				Date:       testDate,
				Interval:   timemodel.Interval{Start: start, DurationMinutes: uint(faker.IntRange(1, 6) * 15)},
				Origin:     origin,
			}
			if appt, err := e.Propose(ctx, req); err == nil {
				ids = append(ids, appt.ID)
			} else {
				require.ErrorIs(t, err, ErrConflict)
			}
		case op < 8 && len(ids) > 0:
			actor := OriginAgent
			if faker.Bool() {
				actor = OriginManual
			}
			_, err := e.Confirm(ctx, ids[faker.IntRange(0, len(ids)-1)], actor)
			if err != nil {
				require.True(t, errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidState), err)
			}
		case op == 8 && len(ids) > 0:
			_, err := e.Cancel(ctx, ids[faker.IntRange(0, len(ids)-1)], "random")
			if err != nil {
				require.ErrorIs(t, err, ErrInvalidState)
			}
		default:
			clock.Advance(time.Minute)
			_, err := e.ExpireSweep(ctx, clock.Now())
			require.NoError(t, err)
		}
		assertConfirmedDisjoint(t, e, resources)
	}
}

func TestEngine_SharedStoreSeesPeerWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	locker := newKeyedLocker()
	a, clock := newTestEngine(t, WithStore(store), WithLocker(locker))
	b := NewEngine(WithClock(clock.Now), WithStore(store), WithLocker(locker))

	// both engines have the timeline cached before either writes to it
	propose(t, a, "Juliana", "09:30", 15, OriginManual)
	propose(t, b, "Juliana", "10:00", 15, OriginManual)

	x := propose(t, a, "Juliana", "14:00", 45, OriginManual)
	y := propose(t, b, "Juliana", "14:15", 30, OriginManual)

	got, err := b.Get(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProposed, got.Status)

	_, err = a.Confirm(ctx, x.ID, OriginManual)
	require.NoError(t, err)

	_, err = b.Confirm(ctx, y.ID, OriginManual)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, x.ID, conflict.WithID)

	// an agent hold taken through b blocks agent proposals through a
	propose(t, b, "Juliana", "16:00", 30, OriginAgent)
	_, err = a.Propose(ctx, ProposeRequest{ResourceID: "Juliana", Date: testDate, Interval: iv(t, "16:15", 30), Origin: OriginAgent})
	assert.ErrorIs(t, err, ErrConflict)

	ids, err := a.Query(ctx, "Juliana", testDate, iv(t, "16:00", 60))
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	assertConfirmedDisjoint(t, a, []string{"Juliana"})
}

func TestEngine_SharedStoreConcurrentConfirms(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	locker := newKeyedLocker()
	a, clock := newTestEngine(t, WithStore(store), WithLocker(locker))
	b := NewEngine(WithClock(clock.Now), WithStore(store), WithLocker(locker))
	engines := []*Engine{a, b}

	var appts []Appointment
	for i := 0; i < 8; i++ {
		appts = append(appts, propose(t, engines[i%2], "R", fmt.Sprintf("10:%02d", i*3), 30, OriginManual))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i, appt := range appts {
		wg.Add(1)
		go func(e *Engine, id uuid.UUID) {
			defer wg.Done()
			_, err := e.Confirm(ctx, id, OriginManual)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrConflict)
		}(engines[(i+1)%2], appt.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assertConfirmedDisjoint(t, a, []string{"R"})
	assertConfirmedDisjoint(t, b, []string{"R"})
}

func TestEngine_ConfirmAfterPeerSweepReportsExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	locker := newKeyedLocker()
	a, clock := newTestEngine(t, WithStore(store), WithLocker(locker))
	b := NewEngine(WithClock(clock.Now), WithStore(store), WithLocker(locker))

	held := propose(t, a, "R", "10:00", 30, OriginAgent)
	clock.Advance(DefaultHoldTTL + time.Second)

	// b never touched this timeline; its sweep finds the hold in the store
	expired, err := b.ExpireSweep(ctx, clock.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, held.ID, expired[0].ID)

	_, err = a.Confirm(ctx, held.ID, OriginAgent)
	assert.ErrorIs(t, err, ErrHoldExpired)

	got, err := a.Get(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestEngine_ReadsSkipResourceLock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	writer, _ := newTestEngine(t, WithStore(store))
	appt := propose(t, writer, "R", "10:00", 30, OriginAgent)

	reader, _ := newTestEngine(t, WithStore(store), WithLocker(busyLocker{}))

	got, err := reader.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)

	ids, err := reader.Query(ctx, "R", testDate, iv(t, "10:00", 60))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{appt.ID}, ids)

	snap, err := reader.Snapshot(ctx, []string{"R"}, testDate)
	require.NoError(t, err)
	assert.Len(t, snap, 1)

	_, err = reader.Confirm(ctx, appt.ID, OriginAgent)
	assert.ErrorIs(t, err, ErrResourceBusy)
}

func TestEngine_ReadsOfUnknownResourcesLeaveNoState(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	for i := 0; i < 10000; i++ {
		snap, err := e.Snapshot(ctx, []string{fmt.Sprintf("ghost-%d", i)}, testDate)
		require.NoError(t, err)
		require.Empty(t, snap)
	}
	_, err := e.Query(ctx, "ghost", testDate, iv(t, "10:00", 30))
	require.NoError(t, err)

	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Empty(t, e.resources)
}

func TestEngine_SweepEvictsPastDays(t *testing.T) {
	ctx := context.Background()
	e, clock := newTestEngine(t)

	booked := propose(t, e, "R", "10:00", 30, OriginAgent)
	_, err := e.Confirm(ctx, booked.ID, OriginAgent)
	require.NoError(t, err)
	held := propose(t, e, "R", "11:00", 30, OriginAgent)
	cancelled := propose(t, e, "S", "11:00", 30, OriginAgent)
	_, err = e.Cancel(ctx, cancelled.ID, "")
	require.NoError(t, err)

	// same day: idle timelines stay cached
	_, err = e.ExpireSweep(ctx, clock.Now())
	require.NoError(t, err)
	e.mu.RLock()
	assert.Len(t, e.resources, 2)
	e.mu.RUnlock()

	clock.Advance(24 * time.Hour)
	expired, err := e.ExpireSweep(ctx, clock.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, held.ID, expired[0].ID)

	e.mu.RLock()
	assert.Empty(t, e.resources)
	assert.Empty(t, e.index)
	e.mu.RUnlock()

	got, err := e.Get(ctx, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}
