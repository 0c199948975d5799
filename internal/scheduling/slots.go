package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// window is one resolved bookable span for a day: either an explicit
// availability block or the doctor's fallback consulting window. Resolving
// both through the same helper keeps the generator and the booking engine
// agreeing on containment and wave alignment.
type window struct {
	start        time.Time
	end          time.Time
	waveDuration time.Duration
	capacity     int
}

// resolveWindows maps the day's free availability blocks to windows, falling
// back to the doctor's static consulting window when none exist. A doctor
// with neither configuration nor availability resolves to no windows.
func resolveWindows(doctor *Doctor, day time.Time, blocks []Availability) ([]window, error) {
	if len(blocks) > 0 {
		windows := make([]window, 0, len(blocks))
		for _, b := range blocks {
			start, err := clockAt(day, b.StartTime)
			if err != nil {
				return nil, fmt.Errorf("availability %s: %w", b.ID, err)
			}
			end, err := clockAt(day, b.EndTime)
			if err != nil {
				return nil, fmt.Errorf("availability %s: %w", b.ID, err)
			}
			if b.WaveDuration <= 0 {
				continue
			}
			capacity := b.Capacity
			if capacity < 1 {
				capacity = 1
			}
			windows = append(windows, window{
				start:        start,
				end:          end,
				waveDuration: time.Duration(b.WaveDuration) * time.Minute,
				capacity:     capacity,
			})
		}
		return windows, nil
	}

	if doctor.ConsultingStart == "" || doctor.ConsultingEnd == "" || doctor.SlotDuration <= 0 {
		return nil, nil
	}
	start, err := clockAt(day, doctor.ConsultingStart)
	if err != nil {
		return nil, fmt.Errorf("doctor %s consulting window: %w", doctor.ID, err)
	}
	end, err := clockAt(day, doctor.ConsultingEnd)
	if err != nil {
		return nil, fmt.Errorf("doctor %s consulting window: %w", doctor.ID, err)
	}
	capacity := doctor.CapacityPerSlot
	if capacity < 1 {
		capacity = 1
	}
	return []window{{
		start:        start,
		end:          end,
		waveDuration: time.Duration(doctor.SlotDuration) * time.Minute,
		capacity:     capacity,
	}}, nil
}

// matchWindow finds the window containing slot where the offset from the
// window start is an exact multiple of the wave duration.
func matchWindow(windows []window, slot time.Time) *window {
	for i := range windows {
		w := &windows[i]
		if slot.Before(w.start) || !slot.Before(w.end) {
			continue
		}
		if slot.Sub(w.start)%w.waveDuration != 0 {
			continue
		}
		return w
	}
	return nil
}

// GetAvailableSlots walks the doctor's bookable windows for a day and reports
// every candidate slot with its remaining capacity, in ascending order.
// Stream-mode doctors without explicit availability get a single day-level
// entry carrying the remaining daily capacity instead of discrete slots.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]SlotOption, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	day, err := ParseDay(date)
	if err != nil {
		return nil, err
	}

	blocks, err := s.repo.ListFreeAvailability(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	if len(blocks) == 0 && doctor.ScheduleType == ScheduleStream {
		return s.streamDayEntry(ctx, doctor, day)
	}

	windows, err := resolveWindows(doctor, day, blocks)
	if err != nil {
		return nil, err
	}

	var slots []SlotOption
	for _, w := range windows {
		for t := w.start; t.Before(w.end); t = t.Add(w.waveDuration) {
			slot := normalizeSlot(t)
			booked, err := s.repo.CountConfirmedAtSlot(ctx, doctorID, slot)
			if err != nil {
				return nil, fmt.Errorf("count confirmed at %s: %w", slot, err)
			}
			available := w.capacity - booked
			if available < 0 {
				available = 0
			}
			slots = append(slots, SlotOption{Time: slot, Available: available})
		}
	}
	return slots, nil
}

func (s *Service) streamDayEntry(ctx context.Context, doctor *Doctor, day time.Time) ([]SlotOption, error) {
	from, to := dayBounds(day)
	booked, err := s.repo.CountConfirmedInRange(ctx, doctor.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count confirmed for day %s: %w", day.Format(dayLayout), err)
	}

	remaining := doctor.DailyCapacity - booked
	if remaining < 0 {
		remaining = 0
	}

	at := day
	if doctor.ConsultingStart != "" {
		if t, err := clockAt(day, doctor.ConsultingStart); err == nil {
			at = t
		}
	}
	return []SlotOption{{Time: at, Available: remaining}}, nil
}
