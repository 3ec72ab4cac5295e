package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

type AppointmentStatus string

const (
	StatusProposed  AppointmentStatus = "proposed"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusExpired   AppointmentStatus = "expired"
)

// Terminal reports whether no further transition is possible from s.
// Confirmed is only terminal with respect to holds; it can still be cancelled.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusConfirmed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Origin records who created an appointment and drives conflict precedence.
type Origin string

const (
	OriginAgent  Origin = "agent"
	OriginManual Origin = "manual"
)

func (o Origin) Valid() bool {
	return o == OriginAgent || o == OriginManual
}

const (
	ReasonOverriddenByManual = "overridden_by_manual"
	ReasonHoldExpired        = "hold_expired"
)

type Appointment struct {
	ID            uuid.UUID
	ResourceID    string
	Date          timemodel.Date
	Interval      timemodel.Interval
	Status        AppointmentStatus
	Origin        Origin
	CancelReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	HoldExpiresAt *time.Time
}

// Active reports whether the appointment still occupies its resource.
func (a Appointment) Active() bool {
	return a.Status == StatusProposed || a.Status == StatusConfirmed
}

func (a Appointment) clone() Appointment {
	if a.HoldExpiresAt != nil {
		exp := *a.HoldExpiresAt
		a.HoldExpiresAt = &exp
	}
	return a
}

// ProposeRequest carries the input of Engine.Propose.
type ProposeRequest struct {
	ResourceID string
	Date       timemodel.Date
	Interval   timemodel.Interval
	Origin     Origin
}

type resourceKey struct {
	resourceID string
	date       timemodel.Date
}
