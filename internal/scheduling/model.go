package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type ScheduleType string

const (
	// ScheduleWave doctors see a fixed number of patients per time interval.
	ScheduleWave ScheduleType = "wave"
	// ScheduleStream doctors have one daily capacity; patients are
	// auto-sequenced into computed offsets from the consulting start.
	ScheduleStream ScheduleType = "stream"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type CancelActor string

const (
	CancelledByDoctor  CancelActor = "doctor"
	CancelledByPatient CancelActor = "patient"
)

type AvailabilityStatus string

const (
	AvailabilityFree   AvailabilityStatus = "free"
	AvailabilityBooked AvailabilityStatus = "booked"
)

// Doctor carries the static schedule parameters that double as the fallback
// window when a day has no explicit availability block. The availability
// manager keeps these fields in sync with the latest declared availability.
type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialization  *string
	ScheduleType    ScheduleType
	ConsultingStart string // "HH:MM", empty when never configured
	ConsultingEnd   string // "HH:MM"
	SlotDuration    int    // minutes
	CapacityPerSlot int
	DailyCapacity   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Availability is one declared bookable window for a doctor on one day.
// Expand and shrink replace the whole day's set atomically, so at most one
// coherent block set represents a doctor's window per day.
type Availability struct {
	ID           uuid.UUID
	DoctorID     uuid.UUID
	Day          time.Time // calendar date, UTC midnight
	StartTime    string    // "HH:MM"
	EndTime      string    // "HH:MM", exclusive
	WaveDuration int       // minutes between waves, > 0
	Capacity     int       // patients per wave, >= 1
	Status       AvailabilityStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Appointment is a committed booking. Slot is the canonical minute-normalized
// booking key; records are never physically deleted, cancellation flips the
// status and records the actor.
type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	Slot               time.Time
	StartTime          time.Time
	EndTime            time.Time
	Status             AppointmentStatus
	CancelledBy        *CancelActor
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient *Patient
	Doctor  *Doctor
}

// SlotOption is one bookable entry produced by the slot generator. For
// stream-mode doctors without explicit availability a single day-level entry
// carries the remaining daily capacity.
type SlotOption struct {
	Time      time.Time
	Available int
}
