package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

var ErrInvalidResource = errors.New("resource id is required")

type resourceState struct {
	mu       sync.Mutex
	loaded   bool
	evicted  bool
	timeline *Timeline
	holds    *HoldManager
	appts    map[uuid.UUID]*Appointment
}

// Engine owns every resource timeline and its holds. Callers only reach them
// through its methods; mutations of one resource/day are serialized.
type Engine struct {
	store    Store
	notifier Notifier
	locker   Locker
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	holdTTL  time.Duration
	loc      *time.Location
	// shared is set when other processes write the same store; every access
	// then reloads the timeline instead of trusting the cached copy.
	shared bool

	mu        sync.RWMutex
	resources map[resourceKey]*resourceState
	index     map[uuid.UUID]resourceKey
}

type Option func(*Engine)

func WithStore(s Store) Option         { return func(e *Engine) { e.store = s } }
func WithNotifier(n Notifier) Option   { return func(e *Engine) { e.notifier = n } }
func WithLocker(l Locker) Option       { return func(e *Engine) { e.locker = l; e.shared = true } }
func WithRecorder(r Recorder) Option   { return func(e *Engine) { e.recorder = r } }
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}
func WithHoldTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.holdTTL = ttl }
}
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		store:     NewMemoryStore(),
		notifier:  nopNotifier{},
		locker:    nopLocker{},
		recorder:  nopRecorder{},
		logger:    slog.Default(),
		now:       time.Now,
		holdTTL:   DefaultHoldTTL,
		loc:       time.UTC,
		resources: make(map[resourceKey]*resourceState),
		index:     make(map[uuid.UUID]resourceKey),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HoldTTL returns the default hold duration.
func (e *Engine) HoldTTL() time.Duration { return e.holdTTL }

func (e *Engine) newResourceState() *resourceState {
	return &resourceState{
		timeline: NewTimeline(),
		holds:    NewHoldManager(e.now),
		appts:    make(map[uuid.UUID]*Appointment),
	}
}

// resource returns the registered state of key. A missing one is created
// only when create is set; otherwise nil is returned.
func (e *Engine) resource(key resourceKey, create bool) *resourceState {
	e.mu.RLock()
	rs, ok := e.resources[key]
	e.mu.RUnlock()
	if ok || !create {
		return rs
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if rs, ok = e.resources[key]; ok {
		return rs
	}
	rs = e.newResourceState()
	e.resources[key] = rs
	return rs
}

// withResource runs a mutation holding the cross-process lock and the
// resource lock, with the timeline freshly loaded when the store is shared.
func (e *Engine) withResource(ctx context.Context, key resourceKey, fn func(ctx context.Context, rs *resourceState) error) error {
	lockKey := key.resourceID + ":" + string(key.date)

	return e.locker.WithResourceLock(ctx, lockKey, func(ctx context.Context) error {
		for {
			rs := e.resource(key, true)
			rs.mu.Lock()
			if rs.evicted {
				rs.mu.Unlock()
				continue
			}
			err := e.refresh(ctx, key, rs)
			if err == nil {
				err = fn(ctx, rs)
			}
			rs.mu.Unlock()
			return err
		}
	})
}

// readResource runs a read without the cross-process lock. A key with no
// registered state is read from the store into a throwaway copy so lookups
// of unknown resources leave nothing behind.
func (e *Engine) readResource(ctx context.Context, key resourceKey, fn func(rs *resourceState) error) error {
	for {
		rs := e.resource(key, false)
		if rs == nil {
			tmp := e.newResourceState()
			if err := e.load(ctx, key, tmp, false); err != nil {
				return err
			}
			return fn(tmp)
		}

		rs.mu.Lock()
		if rs.evicted {
			rs.mu.Unlock()
			continue
		}
		err := e.refresh(ctx, key, rs)
		if err == nil {
			err = fn(rs)
		}
		rs.mu.Unlock()
		return err
	}
}

// refresh loads rs on first use, and on every use when the store is shared.
// The caller holds rs.mu.
func (e *Engine) refresh(ctx context.Context, key resourceKey, rs *resourceState) error {
	if rs.loaded && !e.shared {
		return nil
	}
	fresh := e.newResourceState()
	if err := e.load(ctx, key, fresh, true); err != nil {
		return err
	}
	rs.timeline, rs.holds, rs.appts, rs.loaded = fresh.timeline, fresh.holds, fresh.appts, true
	return nil
}

func (e *Engine) load(ctx context.Context, key resourceKey, rs *resourceState, register bool) error {
	appts, err := e.store.Load(ctx, key.resourceID, key.date)
	if err != nil {
		return &StorageError{Op: "load", Err: err}
	}

	for _, a := range appts {
		a := a.clone()
		rs.appts[a.ID] = &a
		if a.Active() {
			rs.timeline.put(Entry{ID: a.ID, Interval: a.Interval, Origin: a.Origin, Status: a.Status})
		}
		if a.Status == StatusProposed && a.HoldExpiresAt != nil {
			rs.holds.restore(a.ID, *a.HoldExpiresAt)
		}
	}
	rs.loaded = true

	if register {
		e.mu.Lock()
		for _, a := range appts {
			e.index[a.ID] = key
		}
		e.mu.Unlock()
	}

	e.logger.Debug("timeline loaded", "resource_id", key.resourceID, "date", key.date, "appointments", len(appts))
	return nil
}

// evictIdle drops the state of a timeline with no live hold when its day is
// over, or always when the store is shared since it is reloaded anyway. The
// caller holds rs.mu.
func (e *Engine) evictIdle(key resourceKey, rs *resourceState, now time.Time) {
	if rs.holds.Len() > 0 {
		return
	}
	if !e.shared && key.date >= timemodel.DateOf(now.In(e.loc)) {
		return
	}

	rs.evicted = true
	e.mu.Lock()
	if e.resources[key] == rs {
		delete(e.resources, key)
	}
	for id := range rs.appts {
		if e.index[id] == key {
			delete(e.index, id)
		}
	}
	e.mu.Unlock()
}

func (e *Engine) locate(ctx context.Context, id uuid.UUID) (resourceKey, error) {
	e.mu.RLock()
	key, ok := e.index[id]
	e.mu.RUnlock()
	if ok {
		return key, nil
	}

	a, err := e.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return resourceKey{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return resourceKey{}, &StorageError{Op: "find", Err: err}
	}
	return resourceKey{resourceID: a.ResourceID, date: a.Date}, nil
}

// Propose reserves a slot with a hold. Agent proposals conflict with any
// overlapping active reservation; manual proposals only with confirmed ones.
func (e *Engine) Propose(ctx context.Context, req ProposeRequest) (Appointment, error) {
	appt, err := e.propose(ctx, req)
	e.recorder.ProposeResult(req.Origin, err)
	return appt, err
}

func (e *Engine) propose(ctx context.Context, req ProposeRequest) (Appointment, error) {
	if req.ResourceID == "" {
		return Appointment{}, ErrInvalidResource
	}
	if !req.Origin.Valid() {
		return Appointment{}, fmt.Errorf("%w: %q", ErrInvalidOrigin, req.Origin)
	}
	if err := req.Interval.Validate(); err != nil {
		return Appointment{}, err
	}
	startsAt, err := req.Date.At(req.Interval.Start, e.loc)
	if err != nil {
		return Appointment{}, fmt.Errorf("%w: %v", timemodel.ErrInvalidInterval, err)
	}
	now := e.now()
	if startsAt.Before(now) {
		return Appointment{}, fmt.Errorf("%w: %s %s is in the past", timemodel.ErrInvalidInterval, req.Date, req.Interval.Start)
	}

	key := resourceKey{resourceID: req.ResourceID, date: req.Date}
	var created Appointment

	err = e.withResource(ctx, key, func(ctx context.Context, rs *resourceState) error {
		id := uuid.New()
		entry := Entry{ID: id, Interval: req.Interval, Origin: req.Origin, Status: StatusProposed}
		if err := rs.timeline.Insert(entry); err != nil {
			return err
		}

		exp := rs.holds.CreateHold(id, e.holdTTL)
		appt := Appointment{
			ID:            id,
			ResourceID:    req.ResourceID,
			Date:          req.Date,
			Interval:      req.Interval,
			Status:        StatusProposed,
			Origin:        req.Origin,
			CreatedAt:     now,
			UpdatedAt:     now,
			HoldExpiresAt: &exp,
		}

		if err := e.store.Save(ctx, appt); err != nil {
			rs.holds.Release(id)
			rs.timeline.Remove(id)
			return &StorageError{Op: "save", Err: err}
		}

		rs.appts[id] = &appt
		e.mu.Lock()
		e.index[id] = key
		e.mu.Unlock()

		created = appt.clone()
		return nil
	})
	if err != nil {
		return Appointment{}, err
	}

	e.logger.Info("appointment proposed",
		"appointment_id", created.ID, "resource_id", created.ResourceID, "date", created.Date,
		"interval", created.Interval.String(), "origin", created.Origin, "hold_expires_at", *created.HoldExpiresAt)
	return created, nil
}

// Confirm promotes a proposed appointment. A manual confirm first cancels
// every overlapping agent hold on the same resource.
func (e *Engine) Confirm(ctx context.Context, id uuid.UUID, actor Origin) (Appointment, error) {
	if !actor.Valid() {
		return Appointment{}, fmt.Errorf("%w: %q", ErrInvalidOrigin, actor)
	}
	key, err := e.locate(ctx, id)
	if err != nil {
		return Appointment{}, err
	}

	var (
		confirmed Appointment
		victims   []Appointment
		lapsed    *Appointment
	)

	err = e.withResource(ctx, key, func(ctx context.Context, rs *resourceState) error {
		cur, ok := rs.appts[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		switch cur.Status {
		case StatusProposed:
		case StatusExpired:
			return fmt.Errorf("%w: appointment %s", ErrHoldExpired, id)
		default:
			return invalidState(id, cur.Status, "confirm")
		}

		now := e.now()
		if exp, ok := rs.holds.ExpiresAt(id); ok && !exp.After(now) {
			if err := e.commitExpired(ctx, rs, []uuid.UUID{id}, now); err != nil {
				return err
			}
			a := rs.appts[id].clone()
			lapsed = &a
			return fmt.Errorf("%w: appointment %s at %s", ErrHoldExpired, id, exp.Format(time.RFC3339))
		}

		if err := rs.timeline.Check(id, cur.Interval, actor, StatusConfirmed); err != nil {
			return err
		}

		var batch []Appointment
		if actor == OriginManual {
			for _, ent := range rs.timeline.Overlapping(cur.Interval) {
				if ent.ID == id || ent.Status != StatusProposed || ent.Origin != OriginAgent {
					continue
				}
				v := rs.appts[ent.ID].clone()
				v.Status = StatusCancelled
				v.CancelReason = ReasonOverriddenByManual
				v.HoldExpiresAt = nil
				v.UpdatedAt = now
				batch = append(batch, v)
			}
		}

		next := cur.clone()
		next.Status = StatusConfirmed
		next.HoldExpiresAt = nil
		next.UpdatedAt = now
		batch = append(batch, next)

		if err := e.store.Save(ctx, batch...); err != nil {
			return &StorageError{Op: "save", Err: err}
		}

		victims = batch[:len(batch)-1]
		for _, v := range victims {
			v := v
			rs.holds.Release(v.ID)
			rs.timeline.Remove(v.ID)
			rs.appts[v.ID] = &v
		}
		rs.holds.Release(id)
		if err := rs.timeline.Promote(id, actor); err != nil {
			return err
		}
		rs.appts[id] = &next
		confirmed = next.clone()
		return nil
	})
	if err != nil {
		if lapsed != nil {
			e.recorder.Transition(StatusProposed, StatusExpired, lapsed.Origin)
			e.notify(ctx, Event{Type: EventHoldExpired, Appointments: []Appointment{*lapsed}, OccurredAt: lapsed.UpdatedAt})
		}
		return Appointment{}, err
	}

	for _, v := range victims {
		e.recorder.Transition(StatusProposed, StatusCancelled, v.Origin)
		e.logger.Info("agent hold overridden", "appointment_id", v.ID, "by", id, "resource_id", v.ResourceID)
	}
	e.recorder.Transition(StatusProposed, StatusConfirmed, confirmed.Origin)
	e.logger.Info("appointment confirmed", "appointment_id", id, "actor", actor, "overridden", len(victims))

	if len(victims) > 0 {
		e.notify(ctx, Event{Type: EventHoldOverridden, Appointments: victims, OccurredAt: confirmed.UpdatedAt})
	}
	return confirmed, nil
}

// Cancel moves a proposed or confirmed appointment to cancelled. Cancelling an
// already cancelled appointment returns it unchanged.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, reason string) (Appointment, error) {
	key, err := e.locate(ctx, id)
	if err != nil {
		return Appointment{}, err
	}

	var (
		cancelled Appointment
		from      AppointmentStatus
	)
	err = e.withResource(ctx, key, func(ctx context.Context, rs *resourceState) error {
		cur, ok := rs.appts[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		from = cur.Status
		switch cur.Status {
		case StatusCancelled:
			cancelled = cur.clone()
			return nil
		case StatusExpired:
			return invalidState(id, cur.Status, "cancel")
		}

		next := cur.clone()
		next.Status = StatusCancelled
		next.CancelReason = reason
		next.HoldExpiresAt = nil
		next.UpdatedAt = e.now()

		if err := e.store.Save(ctx, next); err != nil {
			return &StorageError{Op: "save", Err: err}
		}

		rs.holds.Release(id)
		rs.timeline.Remove(id)
		rs.appts[id] = &next
		cancelled = next.clone()
		return nil
	})
	if err != nil {
		return Appointment{}, err
	}

	if from != StatusCancelled {
		e.recorder.Transition(from, StatusCancelled, cancelled.Origin)
		e.logger.Info("appointment cancelled", "appointment_id", id, "from", from, "reason", reason)
	}
	return cancelled, nil
}

// Touch extends the hold of a proposed appointment to ttl from now. A ttl of
// zero uses the engine default.
func (e *Engine) Touch(ctx context.Context, id uuid.UUID, ttl time.Duration) (Appointment, error) {
	if ttl <= 0 {
		ttl = e.holdTTL
	}
	key, err := e.locate(ctx, id)
	if err != nil {
		return Appointment{}, err
	}

	var touched Appointment
	err = e.withResource(ctx, key, func(ctx context.Context, rs *resourceState) error {
		cur, ok := rs.appts[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if cur.Status != StatusProposed {
			return invalidState(id, cur.Status, "extend hold of")
		}
		prev, ok := rs.holds.ExpiresAt(id)
		if !ok || !prev.After(e.now()) {
			return fmt.Errorf("%w: appointment %s", ErrHoldExpired, id)
		}

		exp, err := rs.holds.Touch(id, ttl)
		if err != nil {
			return err
		}
		next := cur.clone()
		next.HoldExpiresAt = &exp
		next.UpdatedAt = e.now()

		if err := e.store.Save(ctx, next); err != nil {
			rs.holds.restore(id, prev)
			return &StorageError{Op: "save", Err: err}
		}
		rs.appts[id] = &next
		touched = next.clone()
		return nil
	})
	if err != nil {
		return Appointment{}, err
	}
	return touched, nil
}

// ExpireSweep expires every hold due at now on every loaded timeline and
// returns the appointments it expired. A resource that fails to persist is
// skipped and reported in the returned error; the rest still expire.
func (e *Engine) ExpireSweep(ctx context.Context, now time.Time) ([]Appointment, error) {
	start := time.Now()

	var errs []error
	keys, err := e.sweepKeys(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}

	var expired []Appointment
	for _, key := range keys {
		var batch []Appointment
		err := e.withResource(ctx, key, func(ctx context.Context, rs *resourceState) error {
			due := rs.holds.SweepExpired(now)
			if len(due) > 0 {
				if err := e.commitExpired(ctx, rs, due, now); err != nil {
					return err
				}
				for _, id := range due {
					if a, ok := rs.appts[id]; ok && a.Status == StatusExpired {
						batch = append(batch, a.clone())
					}
				}
			}
			e.evictIdle(key, rs, now)
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s on %s: %w", key.resourceID, key.date, err))
			continue
		}
		for _, a := range batch {
			e.recorder.Transition(StatusProposed, StatusExpired, a.Origin)
		}
		expired = append(expired, batch...)
	}

	sortAppointments(expired)
	e.recorder.Swept(len(expired), time.Since(start))
	return expired, errors.Join(errs...)
}

// sweepKeys lists the timelines to visit: every cached one, plus those with
// a lapsed hold in the store when other processes share it.
func (e *Engine) sweepKeys(ctx context.Context, now time.Time) ([]resourceKey, error) {
	seen := make(map[resourceKey]struct{})
	e.mu.RLock()
	keys := make([]resourceKey, 0, len(e.resources))
	for k := range e.resources {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	e.mu.RUnlock()

	if !e.shared {
		return keys, nil
	}

	proposed, err := e.store.ListProposed(ctx)
	if err != nil {
		return keys, &StorageError{Op: "list proposed", Err: err}
	}
	for _, a := range proposed {
		if a.HoldExpiresAt == nil || a.HoldExpiresAt.After(now) {
			continue
		}
		k := resourceKey{resourceID: a.ResourceID, date: a.Date}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// commitExpired CAS-transitions the given holds from proposed to expired.
// Holds whose appointment already left proposed are just released.
func (e *Engine) commitExpired(ctx context.Context, rs *resourceState, ids []uuid.UUID, now time.Time) error {
	var batch []Appointment
	for _, id := range ids {
		cur, ok := rs.appts[id]
		if !ok || cur.Status != StatusProposed {
			rs.holds.Release(id)
			continue
		}
		next := cur.clone()
		next.Status = StatusExpired
		next.CancelReason = ReasonHoldExpired
		next.HoldExpiresAt = nil
		next.UpdatedAt = now
		batch = append(batch, next)
	}
	if len(batch) == 0 {
		return nil
	}

	if err := e.store.Save(ctx, batch...); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	for _, a := range batch {
		a := a
		rs.holds.Release(a.ID)
		rs.timeline.Remove(a.ID)
		rs.appts[a.ID] = &a
	}
	return nil
}

// Get returns the current state of an appointment.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	key, err := e.locate(ctx, id)
	if err != nil {
		return Appointment{}, err
	}

	var out Appointment
	err = e.readResource(ctx, key, func(rs *resourceState) error {
		cur, ok := rs.appts[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		out = cur.clone()
		return nil
	})
	return out, err
}

// Query returns the ids of active reservations on a resource overlapping iv.
func (e *Engine) Query(ctx context.Context, resourceID string, date timemodel.Date, iv timemodel.Interval) ([]uuid.UUID, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	err := e.readResource(ctx, resourceKey{resourceID: resourceID, date: date}, func(rs *resourceState) error {
		ids = rs.timeline.Query(iv)
		return nil
	})
	return ids, err
}

// Snapshot returns every appointment of the given resources on date, terminal
// ones included. Each resource is copied under its own lock.
func (e *Engine) Snapshot(ctx context.Context, resourceIDs []string, date timemodel.Date) ([]Appointment, error) {
	var out []Appointment
	for _, rid := range resourceIDs {
		err := e.readResource(ctx, resourceKey{resourceID: rid, date: date}, func(rs *resourceState) error {
			for _, a := range rs.appts {
				out = append(out, a.clone())
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sortAppointments(out)
	return out, nil
}

// Restore loads every timeline that still holds a proposed appointment so the
// sweep sees holds created before a restart.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	pending, err := e.store.ListProposed(ctx)
	if err != nil {
		return 0, &StorageError{Op: "list proposed", Err: err}
	}

	seen := make(map[resourceKey]struct{})
	for _, a := range pending {
		key := resourceKey{resourceID: a.ResourceID, date: a.Date}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if err := e.withResource(ctx, key, func(context.Context, *resourceState) error { return nil }); err != nil {
			return len(seen), err
		}
	}
	return len(seen), nil
}

func (e *Engine) notify(ctx context.Context, ev Event) {
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.Error("notify failed", "event", ev.Type, "appointments", len(ev.Appointments), "err", err)
	}
}
