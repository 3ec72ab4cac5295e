package api

import (
	"errors"
	"net/http"

	"github.com/hackgods/salon-scheduling/internal/schedule"
	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

const (
	msgSlotUnavailable = "horário indisponível"
	msgHoldExpired     = "esse horário expirou, escolha outro"
)

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrConflict):
		writeError(w, http.StatusConflict, "slot_unavailable", msgSlotUnavailable, err.Error())
	case errors.Is(err, schedule.ErrHoldExpired):
		writeError(w, http.StatusConflict, "hold_expired", msgHoldExpired, err.Error())
	case errors.Is(err, schedule.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_status_transition", "", err.Error())
	case errors.Is(err, schedule.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "", err.Error())
	case errors.Is(err, timemodel.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid_interval", "", err.Error())
	case errors.Is(err, schedule.ErrInvalidOrigin),
		errors.Is(err, schedule.ErrInvalidResource):
		writeError(w, http.StatusBadRequest, "invalid_request", "", err.Error())
	case errors.Is(err, schedule.ErrResourceBusy):
		writeError(w, http.StatusConflict, "resource_busy", "", err.Error())
	case errors.Is(err, schedule.ErrStorage):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "", err.Error())
	}
}
