package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medibook/clinic-scheduling/internal/scheduling"
)

// Requests

type ConfirmAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	// Slot is RFC 3339; optional for stream-mode doctors, who get one
	// assigned.
	Slot string `json:"slot,omitempty"`
}

type CancelAppointmentRequest struct {
	CancelledBy string  `json:"cancelled_by"`
	Reason      *string `json:"reason,omitempty"`
}

type CreateAvailabilityRequest struct {
	DoctorID     string `json:"doctor_id"`
	Date         string `json:"date"`       // YYYY-MM-DD
	StartTime    string `json:"start_time"` // HH:MM
	EndTime      string `json:"end_time"`   // HH:MM
	WaveDuration int    `json:"wave_duration,omitempty"`
	Capacity     int    `json:"capacity,omitempty"`
}

type ExpandAvailabilityRequest struct {
	DoctorID     string `json:"doctor_id"`
	Date         string `json:"date"`
	NewEndTime   string `json:"new_end_time"`
	WaveDuration int    `json:"wave_duration,omitempty"`
	WaveSize     int    `json:"wave_size,omitempty"`
}

type ShrinkAvailabilityRequest struct {
	DoctorID     string `json:"doctor_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	WaveDuration int    `json:"wave_duration"`
	WaveSize     int    `json:"wave_size"`
}

type SendCodeRequest struct {
	Email string `json:"email"`
}

type ConfirmCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Responses

type SlotResponse struct {
	Time      time.Time `json:"time"`
	Available int       `json:"available"`
}

type DoctorResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Specialization  *string   `json:"specialization,omitempty"`
	ScheduleType    string    `json:"schedule_type"`
	ConsultingStart string    `json:"consulting_start,omitempty"`
	ConsultingEnd   string    `json:"consulting_end,omitempty"`
	SlotDuration    int       `json:"slot_duration"`
	CapacityPerSlot int       `json:"capacity_per_slot"`
	DailyCapacity   int       `json:"daily_capacity"`
}

type PatientResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
}

type AvailabilityResponse struct {
	ID           uuid.UUID `json:"id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	Day          string    `json:"day"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	WaveDuration int       `json:"wave_duration"`
	Capacity     int       `json:"capacity"`
	Status       string    `json:"status"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patient_id"`
	DoctorID           uuid.UUID `json:"doctor_id"`
	Slot               time.Time `json:"slot"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	Status             string    `json:"status"`
	CancelledBy        *string   `json:"cancelled_by,omitempty"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Patient *PatientResponse `json:"patient,omitempty"`
	Doctor  *DoctorResponse  `json:"doctor,omitempty"`
}

type VerificationResponse struct {
	Status string `json:"status"`
	Email  string `json:"email"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Mapping helpers

func toDoctorResponse(d scheduling.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:              d.ID,
		Name:            d.Name,
		Specialization:  d.Specialization,
		ScheduleType:    string(d.ScheduleType),
		ConsultingStart: d.ConsultingStart,
		ConsultingEnd:   d.ConsultingEnd,
		SlotDuration:    d.SlotDuration,
		CapacityPerSlot: d.CapacityPerSlot,
		DailyCapacity:   d.DailyCapacity,
	}
}

func toPatientResponse(p scheduling.Patient) PatientResponse {
	return PatientResponse{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
	}
}

func toAvailabilityResponse(a scheduling.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		ID:           a.ID,
		DoctorID:     a.DoctorID,
		Day:          a.Day.Format("2006-01-02"),
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		WaveDuration: a.WaveDuration,
		Capacity:     a.Capacity,
		Status:       string(a.Status),
	}
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		DoctorID:           a.DoctorID,
		Slot:               a.Slot,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Status:             string(a.Status),
		CancellationReason: a.CancellationReason,
	}
	if a.CancelledBy != nil {
		by := string(*a.CancelledBy)
		resp.CancelledBy = &by
	}
	return resp
}
