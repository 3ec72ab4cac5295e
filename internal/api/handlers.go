package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/salon-scheduling/internal/ics"
	"github.com/hackgods/salon-scheduling/internal/layout"
	"github.com/hackgods/salon-scheduling/internal/schedule"
	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

// Scheduler is the engine surface the HTTP layer needs.
type Scheduler interface {
	Propose(ctx context.Context, req schedule.ProposeRequest) (schedule.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID, actor schedule.Origin) (schedule.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (schedule.Appointment, error)
	Touch(ctx context.Context, id uuid.UUID, ttl time.Duration) (schedule.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (schedule.Appointment, error)
	Query(ctx context.Context, resourceID string, date timemodel.Date, iv timemodel.Interval) ([]uuid.UUID, error)
	Snapshot(ctx context.Context, resourceIDs []string, date timemodel.Date) ([]schedule.Appointment, error)
}

func createAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "", "could not parse JSON")
			return
		}

		date, err := timemodel.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "", "date must be YYYY-MM-DD")
			return
		}
		start, err := timemodel.ParseTimeOfDay(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "", "start must be HH:MM")
			return
		}

		appt, err := svc.Propose(r.Context(), schedule.ProposeRequest{
			ResourceID: req.ResourceID,
			Date:       date,
			Interval:   timemodel.Interval{Start: start, DurationMinutes: req.DurationMinutes},
			Origin:     schedule.Origin(req.Origin),
		})
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req ConfirmAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "", "could not parse JSON")
			return
		}

		appt, err := svc.Confirm(r.Context(), id, schedule.Origin(req.Actor))
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "", "could not parse JSON")
				return
			}
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func touchAppointmentHandler(svc Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req TouchAppointmentRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "", "could not parse JSON")
				return
			}
		}
		if req.TTLSeconds < 0 {
			writeError(w, http.StatusBadRequest, "invalid_ttl", "", "ttl_seconds must not be negative")
			return
		}

		appt, err := svc.Touch(r.Context(), id, time.Duration(req.TTLSeconds)*time.Second)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func queryResourceHandler(svc Scheduler, window timemodel.Interval) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := chi.URLParam(r, "id")
		q := r.URL.Query()

		date, err := timemodel.ParseDate(q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "", "date must be YYYY-MM-DD")
			return
		}

		iv := window
		if s := q.Get("start"); s != "" {
			start, err := timemodel.ParseTimeOfDay(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start", "", "start must be HH:MM")
				return
			}
			iv = timemodel.Interval{Start: start}
			if window.End() > start {
				iv.DurationMinutes = uint(window.End() - start)
			}
			if d := q.Get("duration_minutes"); d != "" {
				n, err := strconv.ParseUint(d, 10, 32)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_duration", "", "duration_minutes must be a positive integer")
					return
				}
				iv.DurationMinutes = uint(n)
			}
		}

		ids, err := svc.Query(r.Context(), resourceID, date, iv)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}

		writeJSON(w, http.StatusOK, QueryResponse{
			ResourceID:     resourceID,
			Date:           date.String(),
			Start:          iv.Start.String(),
			End:            iv.End().String(),
			AppointmentIDs: ids,
		})
	}
}

func calendarHandler(svc Scheduler, window timemodel.Interval) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date, err := timemodel.ParseDate(q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "", "date must be YYYY-MM-DD")
			return
		}

		var resources []string
		for _, rid := range strings.Split(q.Get("resources"), ",") {
			if rid = strings.TrimSpace(rid); rid != "" {
				resources = append(resources, rid)
			}
		}
		if len(resources) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_resources", "", "resources must list at least one resource id")
			return
		}

		view := window
		if q.Get("start") != "" || q.Get("end") != "" {
			start, end := window.Start, window.End()
			if s := q.Get("start"); s != "" {
				if start, err = timemodel.ParseTimeOfDay(s); err != nil {
					writeError(w, http.StatusBadRequest, "invalid_start", "", "start must be HH:MM")
					return
				}
			}
			if s := q.Get("end"); s != "" {
				if end, err = timemodel.ParseTimeOfDay(s); err != nil {
					writeError(w, http.StatusBadRequest, "invalid_end", "", "end must be HH:MM")
					return
				}
			}
			if view, err = timemodel.Span(start, end); err != nil {
				handleScheduleError(w, err)
				return
			}
		}

		appts, err := svc.Snapshot(r.Context(), resources, date)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		boxes := layout.Project(appts, resources, view)
		if boxes == nil {
			boxes = []layout.EventBox{}
		}

		writeJSON(w, http.StatusOK, CalendarResponse{
			Date:      date.String(),
			Start:     view.Start.String(),
			End:       view.End().String(),
			Resources: resources,
			Boxes:     boxes,
		})
	}
}

func exportResourceHandler(svc Scheduler, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := chi.URLParam(r, "id")

		date, err := timemodel.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "", "date must be YYYY-MM-DD")
			return
		}

		appts, err := svc.Snapshot(r.Context(), []string{resourceID}, date)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		body, err := ics.Export(appts, loc)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
