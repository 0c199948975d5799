package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository for service tests.
type memRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	availability map[uuid.UUID]Availability
	appointments map[uuid.UUID]Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		availability: make(map[uuid.UUID]Availability),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *memRepo) addDoctor(d Doctor) Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.doctors[d.ID] = d
	return d
}

func (m *memRepo) addPatient(p Patient) Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.patients[p.ID] = p
	return p
}

func (m *memRepo) addAvailability(a Availability) Availability {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = AvailabilityFree
	}
	m.availability[a.ID] = a
	return a
}

func (m *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *memRepo) ListDoctors(_ context.Context) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) UpdateDoctorSchedule(_ context.Context, id uuid.UUID, upd ScheduleUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	if upd.ConsultingStart != nil {
		d.ConsultingStart = *upd.ConsultingStart
	}
	if upd.ConsultingEnd != nil {
		d.ConsultingEnd = *upd.ConsultingEnd
	}
	if upd.SlotDuration != nil {
		d.SlotDuration = *upd.SlotDuration
	}
	if upd.CapacityPerSlot != nil {
		d.CapacityPerSlot = *upd.CapacityPerSlot
	}
	m.doctors[id] = d
	return nil
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memRepo) listAvailability(doctorID uuid.UUID, day *time.Time, onlyFree bool) []Availability {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Availability
	for _, a := range m.availability {
		if a.DoctorID != doctorID {
			continue
		}
		if day != nil && !a.Day.Equal(*day) {
			continue
		}
		if onlyFree && a.Status != AvailabilityFree {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (m *memRepo) ListFreeAvailability(_ context.Context, doctorID uuid.UUID, day time.Time) ([]Availability, error) {
	return m.listAvailability(doctorID, &day, true), nil
}

func (m *memRepo) ListAvailabilityForDay(_ context.Context, doctorID uuid.UUID, day time.Time) ([]Availability, error) {
	return m.listAvailability(doctorID, &day, false), nil
}

func (m *memRepo) ListAvailabilityByDoctor(_ context.Context, doctorID uuid.UUID) ([]Availability, error) {
	return m.listAvailability(doctorID, nil, false), nil
}

func (m *memRepo) CreateAvailability(_ context.Context, a Availability) (*Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.availability[a.ID] = a
	return &a, nil
}

func (m *memRepo) ReplaceDayAvailability(_ context.Context, doctorID uuid.UUID, day time.Time, a Availability) (*Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.availability {
		if existing.DoctorID == doctorID && existing.Day.Equal(day) {
			delete(m.availability, id)
		}
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.availability[a.ID] = a
	return &a, nil
}

func (m *memRepo) CountConfirmedAtSlot(_ context.Context, doctorID uuid.UUID, slot time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Slot.Equal(slot) && a.Status == StatusConfirmed {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) CountConfirmedInRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status == StatusConfirmed && !a.Slot.Before(from) && a.Slot.Before(to) {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appointments[a.ID] = a
	return &a, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := m.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &AppointmentDetail{Appointment: *appt}
	if p, err := m.GetPatientByID(ctx, appt.PatientID); err == nil {
		detail.Patient = p
	}
	if d, err := m.GetDoctorByID(ctx, appt.DoctorID); err == nil {
		detail.Doctor = d
	}
	return detail, nil
}

func (m *memRepo) MarkAppointmentCancelled(_ context.Context, id uuid.UUID, by CancelActor, reason *string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != StatusConfirmed {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCancelled
	a.CancelledBy = &by
	a.CancellationReason = reason
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *memRepo) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, from *time.Time, status *AppointmentStatus) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID != doctorID {
			continue
		}
		if from != nil && a.Slot.Before(*from) {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.Before(out[j].Slot) })
	return out, nil
}

// memLocker serializes critical sections with per-key mutexes, standing in
// for the Redis locker. Unlike the real one it blocks instead of rejecting,
// which keeps concurrency tests deterministic.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocker) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

func (l *memLocker) WithBookingLock(ctx context.Context, doctorID uuid.UUID, slot time.Time, fn func(ctx context.Context) error) error {
	return l.withLock(ctx, "booking:"+doctorID.String()+":"+slot.UTC().Format(time.RFC3339), fn)
}

func (l *memLocker) WithDayLock(ctx context.Context, doctorID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	return l.withLock(ctx, "day:"+doctorID.String()+":"+day.UTC().Format("2006-01-02"), fn)
}
