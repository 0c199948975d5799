package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/medibook/clinic-scheduling/internal/redis"
)

const (
	defaultWaveDuration = 30 // minutes
	defaultWaveCapacity = 1
)

var (
	ErrAvailabilityExists = errors.New("availability already exists for this day")
	ErrNoAvailability     = errors.New("no existing availability to expand")
	ErrMissingFields      = errors.New("missing required availability fields")
	ErrInvalidWindow      = errors.New("invalid availability window")
	ErrDayBeingModified   = errors.New("availability is being modified, please retry")
)

type CreateAvailabilityParams struct {
	DoctorID     uuid.UUID
	Date         string
	StartTime    string
	EndTime      string
	WaveDuration int // minutes, defaulted when <= 0
	Capacity     int // patients per wave, defaulted when <= 0
}

type ExpandAvailabilityParams struct {
	DoctorID     uuid.UUID
	Date         string
	NewEndTime   string
	WaveDuration int // optional, falls back to the first existing block
	WaveSize     int // optional, falls back to the first existing block
}

type ShrinkAvailabilityParams struct {
	DoctorID     uuid.UUID
	Date         string
	StartTime    string
	EndTime      string
	WaveDuration int
	WaveSize     int
}

// CreateAvailability declares a doctor's bookable window for a day. A day
// that already has availability must be modified through expand or shrink.
// The doctor's fallback schedule fields are updated to match so the
// generator's fallback path stays consistent.
func (s *Service) CreateAvailability(ctx context.Context, p CreateAvailabilityParams) (*Availability, error) {
	if p.Date == "" || p.StartTime == "" || p.EndTime == "" {
		return nil, ErrMissingFields
	}
	day, err := ParseDay(p.Date)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(day, p.StartTime, p.EndTime); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetDoctorByID(ctx, p.DoctorID); err != nil {
		return nil, err
	}

	waveDuration := p.WaveDuration
	if waveDuration <= 0 {
		waveDuration = defaultWaveDuration
	}
	capacity := p.Capacity
	if capacity <= 0 {
		capacity = defaultWaveCapacity
	}

	var created *Availability
	err = s.locker.WithDayLock(ctx, p.DoctorID, day, func(lockCtx context.Context) error {
		existing, err := s.repo.ListAvailabilityForDay(lockCtx, p.DoctorID, day)
		if err != nil {
			return fmt.Errorf("load availability: %w", err)
		}
		if len(existing) > 0 {
			return ErrAvailabilityExists
		}

		block := Availability{
			ID:           uuid.New(),
			DoctorID:     p.DoctorID,
			Day:          day,
			StartTime:    p.StartTime,
			EndTime:      p.EndTime,
			WaveDuration: waveDuration,
			Capacity:     capacity,
			Status:       AvailabilityFree,
		}
		created, err = s.repo.CreateAvailability(lockCtx, block)
		if err != nil {
			return fmt.Errorf("create availability: %w", err)
		}

		return s.syncDoctorSchedule(lockCtx, p.DoctorID, ScheduleUpdate{
			ConsultingStart: &block.StartTime,
			ConsultingEnd:   &block.EndTime,
			SlotDuration:    &block.WaveDuration,
			CapacityPerSlot: &block.Capacity,
		})
	})
	if err != nil {
		return nil, mapDayLockErr(err)
	}
	return created, nil
}

// ExpandAvailability merges every block the doctor has on a day into a
// single block running from the first block's start to the new end time.
// The old blocks are deleted and the merged block inserted as one unit.
func (s *Service) ExpandAvailability(ctx context.Context, p ExpandAvailabilityParams) (*Availability, error) {
	if p.Date == "" || p.NewEndTime == "" {
		return nil, ErrMissingFields
	}
	day, err := ParseDay(p.Date)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetDoctorByID(ctx, p.DoctorID); err != nil {
		return nil, err
	}

	var merged *Availability
	err = s.locker.WithDayLock(ctx, p.DoctorID, day, func(lockCtx context.Context) error {
		existing, err := s.repo.ListAvailabilityForDay(lockCtx, p.DoctorID, day)
		if err != nil {
			return fmt.Errorf("load availability: %w", err)
		}
		if len(existing) == 0 {
			return ErrNoAvailability
		}

		first := existing[0]
		waveDuration := p.WaveDuration
		if waveDuration <= 0 {
			waveDuration = first.WaveDuration
		}
		capacity := p.WaveSize
		if capacity <= 0 {
			capacity = first.Capacity
		}
		if err := validateWindow(day, first.StartTime, p.NewEndTime); err != nil {
			return err
		}

		block := Availability{
			ID:           uuid.New(),
			DoctorID:     p.DoctorID,
			Day:          day,
			StartTime:    first.StartTime,
			EndTime:      p.NewEndTime,
			WaveDuration: waveDuration,
			Capacity:     capacity,
			Status:       AvailabilityFree,
		}
		merged, err = s.repo.ReplaceDayAvailability(lockCtx, p.DoctorID, day, block)
		if err != nil {
			return fmt.Errorf("replace availability: %w", err)
		}

		return s.syncDoctorSchedule(lockCtx, p.DoctorID, ScheduleUpdate{
			ConsultingEnd:   &block.EndTime,
			SlotDuration:    &block.WaveDuration,
			CapacityPerSlot: &block.Capacity,
		})
	})
	if err != nil {
		return nil, mapDayLockErr(err)
	}
	return merged, nil
}

// ShrinkAvailability replaces the doctor's whole day with the caller's
// explicit window. All window fields are required.
func (s *Service) ShrinkAvailability(ctx context.Context, p ShrinkAvailabilityParams) (*Availability, error) {
	if p.Date == "" || p.StartTime == "" || p.EndTime == "" || p.WaveDuration <= 0 || p.WaveSize <= 0 {
		return nil, ErrMissingFields
	}
	day, err := ParseDay(p.Date)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(day, p.StartTime, p.EndTime); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetDoctorByID(ctx, p.DoctorID); err != nil {
		return nil, err
	}

	var replaced *Availability
	err = s.locker.WithDayLock(ctx, p.DoctorID, day, func(lockCtx context.Context) error {
		block := Availability{
			ID:           uuid.New(),
			DoctorID:     p.DoctorID,
			Day:          day,
			StartTime:    p.StartTime,
			EndTime:      p.EndTime,
			WaveDuration: p.WaveDuration,
			Capacity:     p.WaveSize,
			Status:       AvailabilityFree,
		}
		replaced, err = s.repo.ReplaceDayAvailability(lockCtx, p.DoctorID, day, block)
		if err != nil {
			return fmt.Errorf("replace availability: %w", err)
		}

		return s.syncDoctorSchedule(lockCtx, p.DoctorID, ScheduleUpdate{
			ConsultingStart: &block.StartTime,
			ConsultingEnd:   &block.EndTime,
			SlotDuration:    &block.WaveDuration,
			CapacityPerSlot: &block.Capacity,
		})
	})
	if err != nil {
		return nil, mapDayLockErr(err)
	}
	return replaced, nil
}

// ListDoctorAvailability returns every availability block a doctor has
// declared, across all days.
func (s *Service) ListDoctorAvailability(ctx context.Context, doctorID uuid.UUID) ([]Availability, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	blocks, err := s.repo.ListAvailabilityByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return blocks, nil
}

func (s *Service) syncDoctorSchedule(ctx context.Context, doctorID uuid.UUID, upd ScheduleUpdate) error {
	if err := s.repo.UpdateDoctorSchedule(ctx, doctorID, upd); err != nil {
		return fmt.Errorf("sync doctor schedule: %w", err)
	}
	return nil
}

// validateWindow rejects windows whose clock strings do not parse or whose
// end does not come after the start.
func validateWindow(day time.Time, start, end string) error {
	from, err := clockAt(day, start)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	to, err := clockAt(day, end)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if !to.After(from) {
		return fmt.Errorf("%w: end %q is not after start %q", ErrInvalidWindow, end, start)
	}
	return nil
}

// mapDayLockErr translates lock contention on the day key into the
// caller-facing retryable conflict.
func mapDayLockErr(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrDayBeingModified
	}
	return err
}
