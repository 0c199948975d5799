package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medibook/clinic-scheduling/internal/scheduling"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func listDoctorsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListDoctors(r.Context())
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, toDoctorResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAvailableSlotsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}

		slots, err := svc.GetAvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{Time: s.Time, Available: s.Available})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func confirmAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		var slot time.Time
		if req.Slot != "" {
			slot, err = time.Parse(time.RFC3339, req.Slot)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot", "slot must be RFC 3339")
				return
			}
		}

		appt, err := svc.ConfirmAppointment(r.Context(), patientID, doctorID, slot)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func cancelAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id, scheduling.CancelActor(req.CancelledBy), req.Reason)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointmentDetails(r.Context(), id)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		resp := AppointmentDetailResponse{
			AppointmentResponse: toAppointmentResponse(detail.Appointment),
		}
		if detail.Patient != nil {
			p := toPatientResponse(*detail.Patient)
			resp.Patient = &p
		}
		if detail.Doctor != nil {
			d := toDoctorResponse(*detail.Doctor)
			resp.Doctor = &d
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listDoctorAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		var from *time.Time
		if v := r.URL.Query().Get("from"); v != "" {
			day, err := scheduling.ParseDay(v)
			if err != nil {
				writeSchedulingError(w, err)
				return
			}
			from = &day
		}

		var status *scheduling.AppointmentStatus
		if v := r.URL.Query().Get("status"); v != "" {
			s := scheduling.AppointmentStatus(v)
			if s != scheduling.StatusConfirmed && s != scheduling.StatusCancelled {
				writeError(w, http.StatusBadRequest, "invalid_status", "status must be confirmed or cancelled")
				return
			}
			status = &s
		}

		appts, err := svc.ListDoctorAppointments(r.Context(), doctorID, from, status)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp = append(resp, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listDoctorAvailabilityHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUIDParam(w, r, "doctorID", "invalid_doctor_id")
		if !ok {
			return
		}

		blocks, err := svc.ListDoctorAvailability(r.Context(), doctorID)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		resp := make([]AvailabilityResponse, 0, len(blocks))
		for _, b := range blocks {
			resp = append(resp, toAvailabilityResponse(b))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAvailabilityHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAvailabilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		block, err := svc.CreateAvailability(r.Context(), scheduling.CreateAvailabilityParams{
			DoctorID:     doctorID,
			Date:         req.Date,
			StartTime:    req.StartTime,
			EndTime:      req.EndTime,
			WaveDuration: req.WaveDuration,
			Capacity:     req.Capacity,
		})
		if err != nil {
			writeSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAvailabilityResponse(*block))
	}
}

func expandAvailabilityHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExpandAvailabilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		block, err := svc.ExpandAvailability(r.Context(), scheduling.ExpandAvailabilityParams{
			DoctorID:     doctorID,
			Date:         req.Date,
			NewEndTime:   req.NewEndTime,
			WaveDuration: req.WaveDuration,
			WaveSize:     req.WaveSize,
		})
		if err != nil {
			writeSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(*block))
	}
}

func shrinkAvailabilityHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ShrinkAvailabilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		block, err := svc.ShrinkAvailability(r.Context(), scheduling.ShrinkAvailabilityParams{
			DoctorID:     doctorID,
			Date:         req.Date,
			StartTime:    req.StartTime,
			EndTime:      req.EndTime,
			WaveDuration: req.WaveDuration,
			WaveSize:     req.WaveSize,
		})
		if err != nil {
			writeSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(*block))
	}
}

func sendCodeHandler(store VerificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendCodeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Email == "" {
			writeError(w, http.StatusBadRequest, "missing_email", "email is required")
			return
		}

		// The code goes out through the delivery channel, never in the
		// response.
		if _, err := store.Issue(r.Context(), req.Email); err != nil {
			writeVerificationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, VerificationResponse{Status: "sent", Email: req.Email})
	}
}

func confirmCodeHandler(store VerificationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmCodeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Email == "" || req.Code == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "email and code are required")
			return
		}

		if err := store.Confirm(r.Context(), req.Email, req.Code); err != nil {
			writeVerificationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, VerificationResponse{Status: "verified", Email: req.Email})
	}
}
