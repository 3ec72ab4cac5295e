// Package notify delivers engine events to staff and the booking agent.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/salon-scheduling/internal/schedule"
)

// Message is the wire form of one affected appointment.
type Message struct {
	EventID       string     `json:"event_id"`
	EventType     string     `json:"event_type"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	ResourceID    string     `json:"resource_id"`
	Date          string     `json:"date"`
	Start         string     `json:"start"`
	End           string     `json:"end"`
	Origin        string     `json:"origin"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
}

func Messages(ev schedule.Event) []Message {
	out := make([]Message, 0, len(ev.Appointments))
	for _, a := range ev.Appointments {
		out = append(out, Message{
			EventID:       uuid.NewString(),
			EventType:     string(ev.Type),
			AppointmentID: a.ID,
			ResourceID:    a.ResourceID,
			Date:          string(a.Date),
			Start:         a.Interval.Start.String(),
			End:           a.Interval.End().String(),
			Origin:        string(a.Origin),
			Status:        string(a.Status),
			Reason:        a.CancelReason,
			OccurredAt:    ev.OccurredAt,
			HoldExpiresAt: a.HoldExpiresAt,
		})
	}
	return out
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// LogNotifier writes every affected appointment to the log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, ev schedule.Event) error {
	for _, m := range Messages(ev) {
		n.logger.Info("appointment notification",
			"event_type", m.EventType, "appointment_id", m.AppointmentID, "resource_id", m.ResourceID,
			"date", m.Date, "start", m.Start, "origin", m.Origin, "status", m.Status, "reason", m.Reason)
	}
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []schedule.Notifier

func (f Fanout) Notify(ctx context.Context, ev schedule.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
