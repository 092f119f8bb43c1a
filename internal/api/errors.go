package api

import (
	"errors"
	"net/http"

	"github.com/clinicore/scheduling-engine/internal/interval"
	"github.com/clinicore/scheduling-engine/internal/scheduling"
)

func handleSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interval.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid_interval", err.Error())
	case errors.Is(err, scheduling.ErrPastSlot):
		writeError(w, http.StatusBadRequest, "interval_in_past", err.Error())
	case errors.Is(err, scheduling.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, scheduling.ErrSchedulingConflict):
		writeError(w, http.StatusConflict, "scheduling_conflict", err.Error())
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrSchedulingTimeout):
		writeError(w, http.StatusServiceUnavailable, "scheduling_timeout", "calendar is busy, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// isBookingConflict reports whether a refusal is worth decorating with
// alternative open slots.
func isBookingConflict(err error) bool {
	return errors.Is(err, scheduling.ErrSchedulingConflict) || errors.Is(err, scheduling.ErrSlotUnavailable)
}

func errorsIsSlotUnavailable(err error) bool {
	return errors.Is(err, scheduling.ErrSlotUnavailable)
}
