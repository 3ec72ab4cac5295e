package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

// PgStore persists appointments in Postgres and appends one event_logs row per
// saved state.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const appointmentColumns = `id, resource_id, day::text, start_minute, duration_minutes, status, origin,
	cancel_reason, created_at, updated_at, hold_expires_at`

func scanAppointment(row pgx.Row) (Appointment, error) {
	var (
		a         Appointment
		day       string
		start     int32
		duration  int32
		expiresAt *time.Time
	)

	err := row.Scan(
		&a.ID,
		&a.ResourceID,
		&day,
		&start,
		&duration,
		&a.Status,
		&a.Origin,
		&a.CancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, err
	}

	a.Date = timemodel.Date(day)
	a.Interval = timemodel.Interval{Start: timemodel.TimeOfDay(start), DurationMinutes: uint(duration)}
	a.HoldExpiresAt = expiresAt
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) Load(ctx context.Context, resourceID string, date timemodel.Date) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE resource_id = $1 AND day = $2::text::date
		ORDER BY start_minute, id
	`, resourceID, string(date))
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (s *PgStore) Find(ctx context.Context, id uuid.UUID) (Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) ListProposed(ctx context.Context) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'proposed'
		ORDER BY resource_id, day, start_minute, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list proposed appointments: %w", err)
	}
	return collectAppointments(rows)
}

// Save upserts every appointment and logs its new state in one transaction.
func (s *PgStore) Save(ctx context.Context, appts ...Appointment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, a := range appts {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, resource_id, day, start_minute, duration_minutes, status, origin,
				cancel_reason, created_at, updated_at, hold_expires_at)
			VALUES ($1, $2, $3::text::date, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status,
			    cancel_reason = EXCLUDED.cancel_reason,
			    updated_at = EXCLUDED.updated_at,
			    hold_expires_at = EXCLUDED.hold_expires_at
		`, a.ID, a.ResourceID, string(a.Date), int32(a.Interval.Start), int32(a.Interval.DurationMinutes),
			string(a.Status), string(a.Origin), a.CancelReason, a.CreatedAt, a.UpdatedAt, a.HoldExpiresAt)
		if err != nil {
			return fmt.Errorf("upsert appointment %s: %w", a.ID, err)
		}

		if err := insertEvent(ctx, tx, a); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, a Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"resource_id":     a.ResourceID,
		"date":            a.Date,
		"start":           a.Interval.Start.String(),
		"end":             a.Interval.End().String(),
		"origin":          a.Origin,
		"reason":          a.CancelReason,
		"hold_expires_at": a.HoldExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, "APPOINTMENT_"+strings.ToUpper(string(a.Status)), a.ID, payload, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
