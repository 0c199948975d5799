package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/medibook/clinic-scheduling/internal/scheduling"
	"github.com/medibook/clinic-scheduling/internal/verification"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeSchedulingError maps the engine's sentinel errors onto the HTTP
// taxonomy: NotFound for missing entities, BadRequest for caller input
// errors, Conflict for legitimate concurrent-state outcomes.
func writeSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())

	case errors.Is(err, scheduling.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, scheduling.ErrSlotRequired):
		writeError(w, http.StatusBadRequest, "slot_required", err.Error())
	case errors.Is(err, scheduling.ErrSlotNotAvailable):
		writeError(w, http.StatusBadRequest, "slot_not_available", err.Error())
	case errors.Is(err, scheduling.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "missing_fields", err.Error())
	case errors.Is(err, scheduling.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
	case errors.Is(err, scheduling.ErrInvalidCancelActor):
		writeError(w, http.StatusBadRequest, "invalid_cancel_actor", err.Error())

	case errors.Is(err, scheduling.ErrSlotCapacityFull):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, scheduling.ErrDayCapacityFull):
		writeError(w, http.StatusConflict, "day_capacity_full", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, scheduling.ErrAvailabilityExists):
		writeError(w, http.StatusConflict, "availability_exists", err.Error())
	case errors.Is(err, scheduling.ErrNoAvailability):
		writeError(w, http.StatusConflict, "no_availability", err.Error())
	case errors.Is(err, scheduling.ErrBookingInProgress):
		writeError(w, http.StatusConflict, "slot_being_booked", err.Error())
	case errors.Is(err, scheduling.ErrDayBeingModified):
		writeError(w, http.StatusConflict, "availability_being_modified", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, verification.ErrCodeNotFound),
		errors.Is(err, verification.ErrCodeMismatch):
		writeError(w, http.StatusBadRequest, "invalid_code", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
