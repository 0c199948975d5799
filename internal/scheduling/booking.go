package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/medibook/clinic-scheduling/internal/redis"
)

var (
	ErrSlotRequired       = errors.New("slot is required for wave scheduling")
	ErrSlotNotAvailable   = errors.New("doctor is not available at this time")
	ErrSlotCapacityFull   = errors.New("slot already booked")
	ErrDayCapacityFull    = errors.New("no capacity left for this day")
	ErrAlreadyCancelled   = errors.New("appointment already cancelled")
	ErrInvalidCancelActor = errors.New("cancelledBy must be doctor or patient")
	ErrBookingInProgress  = errors.New("slot is currently being booked, please retry")
)

// Service is the availability and booking engine: slot generation, booking
// confirmation and cancellation, and availability window management.
type Service struct {
	repo   Repository
	locker redisclient.Locker
}

func NewService(repo Repository, locker redisclient.Locker) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
	}
}

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

// ConfirmAppointment validates a requested slot against availability and
// capacity, then commits the booking. The count-then-insert section runs
// under a distributed lock keyed by (doctor, slot) so concurrent confirms
// cannot overbook; stream-mode bookings lock the whole day instead because
// they compete for the daily capacity.
func (s *Service) ConfirmAppointment(ctx context.Context, patientID, doctorID uuid.UUID, slot time.Time) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	// Stream doctors may omit the slot; the engine assigns one. Everything
	// else keys off the minute-normalized requested instant.
	slotGiven := !slot.IsZero()
	ref := slot
	if !slotGiven {
		ref = time.Now()
	}
	ref = normalizeSlot(ref)
	day := dayOf(ref)

	blocks, err := s.repo.ListFreeAvailability(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	if len(blocks) == 0 && doctor.ScheduleType == ScheduleStream {
		return s.confirmStream(ctx, patientID, doctor, day)
	}

	if !slotGiven {
		return nil, ErrSlotRequired
	}

	windows, err := resolveWindows(doctor, day, blocks)
	if err != nil {
		return nil, err
	}
	w := matchWindow(windows, ref)
	if w == nil {
		return nil, ErrSlotNotAvailable
	}

	var created *Appointment
	err = s.locker.WithBookingLock(ctx, doctorID, ref, func(lockCtx context.Context) error {
		booked, err := s.repo.CountConfirmedAtSlot(lockCtx, doctorID, ref)
		if err != nil {
			return fmt.Errorf("count confirmed: %w", err)
		}
		if booked >= w.capacity {
			return ErrSlotCapacityFull
		}

		appt := Appointment{
			ID:        uuid.New(),
			PatientID: patientID,
			DoctorID:  doctorID,
			Slot:      ref,
			StartTime: ref,
			EndTime:   ref.Add(w.waveDuration),
			Status:    StatusConfirmed,
		}
		created, err = s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingInProgress
		}
		return nil, err
	}
	return created, nil
}

// confirmStream books against the doctor's daily capacity and auto-assigns
// the start time from the booked count, per stream scheduling.
func (s *Service) confirmStream(ctx context.Context, patientID uuid.UUID, doctor *Doctor, day time.Time) (*Appointment, error) {
	var created *Appointment
	err := s.locker.WithDayLock(ctx, doctor.ID, day, func(lockCtx context.Context) error {
		from, to := dayBounds(day)
		booked, err := s.repo.CountConfirmedInRange(lockCtx, doctor.ID, from, to)
		if err != nil {
			return fmt.Errorf("count confirmed: %w", err)
		}
		if booked >= doctor.DailyCapacity {
			return ErrDayCapacityFull
		}

		start, err := clockAt(day, doctor.ConsultingStart)
		if err != nil {
			return fmt.Errorf("doctor consulting window: %w", err)
		}
		assigned := normalizeSlot(start.Add(time.Duration(booked*doctor.SlotDuration) * time.Minute))

		appt := Appointment{
			ID:        uuid.New(),
			PatientID: patientID,
			DoctorID:  doctor.ID,
			Slot:      assigned,
			StartTime: assigned,
			EndTime:   assigned.Add(time.Duration(doctor.SlotDuration) * time.Minute),
			Status:    StatusConfirmed,
		}
		created, err = s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingInProgress
		}
		return nil, err
	}
	return created, nil
}

// CancelAppointment flips a confirmed appointment to cancelled and records
// who cancelled and why. Cancellation is deliberately not idempotent: a
// second attempt fails. The record is retained, which is what frees the
// slot's counted capacity for future confirms.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, by CancelActor, reason *string) (*Appointment, error) {
	if by != CancelledByDoctor && by != CancelledByPatient {
		return nil, ErrInvalidCancelActor
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	updated, err := s.repo.MarkAppointmentCancelled(ctx, id, by, reason)
	if err != nil {
		// The conditional update matched no confirmed row: another cancel
		// won the race between our read and the write.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrAlreadyCancelled
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	return updated, nil
}

// GetAppointmentDetails returns an appointment hydrated with its patient and
// doctor.
func (s *Service) GetAppointmentDetails(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListDoctorAppointments returns a doctor's appointments ordered by slot
// ascending, optionally from a given instant and filtered by status.
func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from *time.Time, status *AppointmentStatus) ([]Appointment, error) {
	appts, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, from, status)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}
