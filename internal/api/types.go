package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/salon-scheduling/internal/layout"
	"github.com/hackgods/salon-scheduling/internal/schedule"
)

type CreateAppointmentRequest struct {
	ResourceID      string `json:"resource_id"`
	Date            string `json:"date"`
	Start           string `json:"start"`
	DurationMinutes uint   `json:"duration_minutes"`
	Origin          string `json:"origin"`
}

type ConfirmAppointmentRequest struct {
	Actor string `json:"actor"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type TouchAppointmentRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	ResourceID      string     `json:"resource_id"`
	Date            string     `json:"date"`
	Start           string     `json:"start"`
	End             string     `json:"end"`
	DurationMinutes uint       `json:"duration_minutes"`
	Status          string     `json:"status"`
	Origin          string     `json:"origin"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	HoldExpiresAt   *time.Time `json:"hold_expires_at,omitempty"`
}

func toAppointmentResponse(a schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		ResourceID:      a.ResourceID,
		Date:            a.Date.String(),
		Start:           a.Interval.Start.String(),
		End:             a.Interval.End().String(),
		DurationMinutes: a.Interval.DurationMinutes,
		Status:          string(a.Status),
		Origin:          string(a.Origin),
		CancelReason:    a.CancelReason,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		HoldExpiresAt:   a.HoldExpiresAt,
	}
}

type QueryResponse struct {
	ResourceID     string      `json:"resource_id"`
	Date           string      `json:"date"`
	Start          string      `json:"start"`
	End            string      `json:"end"`
	AppointmentIDs []uuid.UUID `json:"appointment_ids"`
}

type CalendarResponse struct {
	Date      string            `json:"date"`
	Start     string            `json:"start"`
	End       string            `json:"end"`
	Resources []string          `json:"resources"`
	Boxes     []layout.EventBox `json:"boxes"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}
