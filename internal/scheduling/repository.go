package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// ScheduleUpdate carries the doctor fallback fields the availability manager
// keeps in sync with the latest declared availability. Nil fields are left
// untouched.
type ScheduleUpdate struct {
	ConsultingStart *string
	ConsultingEnd   *string
	SlotDuration    *int
	CapacityPerSlot *int
}

// Repository contains all store interactions needed by the engine.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	UpdateDoctorSchedule(ctx context.Context, id uuid.UUID, upd ScheduleUpdate) error

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	ListFreeAvailability(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Availability, error)
	ListAvailabilityForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Availability, error)
	ListAvailabilityByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Availability, error)
	CreateAvailability(ctx context.Context, a Availability) (*Availability, error)

	// ReplaceDayAvailability deletes every block for (doctor, day) and inserts
	// the replacement as one transaction, so concurrent readers never observe
	// the day half-applied.
	ReplaceDayAvailability(ctx context.Context, doctorID uuid.UUID, day time.Time, a Availability) (*Availability, error)

	// Capacity counter. Both the slot generator and the booking engine consult
	// these and nothing else, so their view of booked capacity cannot diverge.
	CountConfirmedAtSlot(ctx context.Context, doctorID uuid.UUID, slot time.Time) (int, error)
	CountConfirmedInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error)

	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	// MarkAppointmentCancelled flips a confirmed appointment to cancelled and
	// records the actor. Returns ErrAppointmentNotFound when no confirmed row
	// matches, which the service maps to the already-cancelled conflict.
	MarkAppointmentCancelled(ctx context.Context, id uuid.UUID, by CancelActor, reason *string) (*Appointment, error)

	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from *time.Time, status *AppointmentStatus) ([]Appointment, error)
}
