package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialization,
		&d.ScheduleType,
		&d.ConsultingStart,
		&d.ConsultingEnd,
		&d.SlotDuration,
		&d.CapacityPerSlot,
		&d.DailyCapacity,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.Day,
		&a.StartTime,
		&a.EndTime,
		&a.WaveDuration,
		&a.Capacity,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Slot,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.CancelledBy,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const (
	doctorColumns       = `id, name, specialization, schedule_type, consulting_start, consulting_end, slot_duration, capacity_per_slot, daily_capacity, created_at, updated_at`
	availabilityColumns = `id, doctor_id, day, start_time, end_time, wave_duration, capacity, status, created_at, updated_at`
	appointmentColumns  = `id, patient_id, doctor_id, slot, start_time, end_time, status, cancelled_by, cancellation_reason, created_at, updated_at`
)

// Doctors

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateDoctorSchedule(ctx context.Context, id uuid.UUID, upd ScheduleUpdate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE doctors
		SET consulting_start   = COALESCE($2, consulting_start),
		    consulting_end     = COALESCE($3, consulting_end),
		    slot_duration      = COALESCE($4, slot_duration),
		    capacity_per_slot  = COALESCE($5, capacity_per_slot),
		    updated_at         = now()
		WHERE id = $1
	`, id, upd.ConsultingStart, upd.ConsultingEnd, upd.SlotDuration, upd.CapacityPerSlot)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Patients

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

// Availability

func (r *PgRepository) listAvailability(ctx context.Context, query string, args ...any) ([]Availability, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListFreeAvailability(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Availability, error) {
	return r.listAvailability(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability
		WHERE doctor_id = $1 AND day = $2 AND status = 'free'
		ORDER BY start_time
	`, doctorID, day)
}

func (r *PgRepository) ListAvailabilityForDay(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Availability, error) {
	return r.listAvailability(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability
		WHERE doctor_id = $1 AND day = $2
		ORDER BY start_time
	`, doctorID, day)
}

func (r *PgRepository) ListAvailabilityByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Availability, error) {
	return r.listAvailability(ctx, `
		SELECT `+availabilityColumns+`
		FROM availability
		WHERE doctor_id = $1
		ORDER BY day, start_time
	`, doctorID)
}

func (r *PgRepository) CreateAvailability(ctx context.Context, a Availability) (*Availability, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO availability (id, doctor_id, day, start_time, end_time, wave_duration, capacity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+availabilityColumns+`
	`, a.ID, a.DoctorID, a.Day, a.StartTime, a.EndTime, a.WaveDuration, a.Capacity, a.Status)
	return scanAvailability(row)
}

func (r *PgRepository) ReplaceDayAvailability(ctx context.Context, doctorID uuid.UUID, day time.Time, a Availability) (*Availability, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin replace availability: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM availability
		WHERE doctor_id = $1 AND day = $2
	`, doctorID, day); err != nil {
		return nil, fmt.Errorf("delete old availability: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO availability (id, doctor_id, day, start_time, end_time, wave_duration, capacity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+availabilityColumns+`
	`, a.ID, a.DoctorID, a.Day, a.StartTime, a.EndTime, a.WaveDuration, a.Capacity, a.Status)

	replaced, err := scanAvailability(row)
	if err != nil {
		return nil, fmt.Errorf("insert merged availability: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit replace availability: %w", err)
	}
	return replaced, nil
}

// Capacity counter

func (r *PgRepository) CountConfirmedAtSlot(ctx context.Context, doctorID uuid.UUID, slot time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM appointment
		WHERE doctor_id = $1 AND slot = $2 AND status = 'confirmed'
	`, doctorID, slot).Scan(&count)
	return count, err
}

func (r *PgRepository) CountConfirmedInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM appointment
		WHERE doctor_id = $1 AND slot >= $2 AND slot < $3 AND status = 'confirmed'
	`, doctorID, from, to).Scan(&count)
	return count, err
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, slot, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.DoctorID, a.Slot, a.StartTime, a.EndTime, a.Status)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointment
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patient, err := r.GetPatientByID(ctx, appt.PatientID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}
	doctor, err := r.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil && !errors.Is(err, ErrDoctorNotFound) {
		return nil, err
	}

	return &AppointmentDetail{
		Appointment: *appt,
		Patient:     patient,
		Doctor:      doctor,
	}, nil
}

func (r *PgRepository) MarkAppointmentCancelled(ctx context.Context, id uuid.UUID, by CancelActor, reason *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointment
		SET status = 'cancelled',
		    cancelled_by = $2,
		    cancellation_reason = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+appointmentColumns+`
	`, id, by, reason)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from *time.Time, status *AppointmentStatus) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointment
		WHERE doctor_id = $1`
	args := []any{doctorID}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND slot >= $%d", len(args))
	}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY slot ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}
