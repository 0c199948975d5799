package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medibook/clinic-scheduling/internal/scheduling"
)

// SchedulingService is what the handlers need from the engine.
type SchedulingService interface {
	ListDoctors(ctx context.Context) ([]scheduling.Doctor, error)
	GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]scheduling.SlotOption, error)
	ConfirmAppointment(ctx context.Context, patientID, doctorID uuid.UUID, slot time.Time) (*scheduling.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, by scheduling.CancelActor, reason *string) (*scheduling.Appointment, error)
	GetAppointmentDetails(ctx context.Context, id uuid.UUID) (*scheduling.AppointmentDetail, error)
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from *time.Time, status *scheduling.AppointmentStatus) ([]scheduling.Appointment, error)
	ListDoctorAvailability(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Availability, error)
	CreateAvailability(ctx context.Context, p scheduling.CreateAvailabilityParams) (*scheduling.Availability, error)
	ExpandAvailability(ctx context.Context, p scheduling.ExpandAvailabilityParams) (*scheduling.Availability, error)
	ShrinkAvailability(ctx context.Context, p scheduling.ShrinkAvailabilityParams) (*scheduling.Availability, error)
}

// VerificationStore issues and confirms one-time codes.
type VerificationStore interface {
	Issue(ctx context.Context, email string) (string, error)
	Confirm(ctx context.Context, email, code string) error
}

type RouterConfig struct {
	Scheduling   SchedulingService
	Verification VerificationStore
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecovererMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/doctors", listDoctorsHandler(cfg.Scheduling))
		r.Get("/doctors/{doctorID}/slots", getAvailableSlotsHandler(cfg.Scheduling))
		r.Get("/doctors/{doctorID}/appointments", listDoctorAppointmentsHandler(cfg.Scheduling))
		r.Get("/doctors/{doctorID}/availability", listDoctorAvailabilityHandler(cfg.Scheduling))

		r.Post("/appointments/confirm", confirmAppointmentHandler(cfg.Scheduling))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Scheduling))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Scheduling))

		r.Post("/availability", createAvailabilityHandler(cfg.Scheduling))
		r.Post("/availability/expand", expandAvailabilityHandler(cfg.Scheduling))
		r.Post("/availability/shrink", shrinkAvailabilityHandler(cfg.Scheduling))

		if cfg.Verification != nil {
			r.Post("/verification/send", sendCodeHandler(cfg.Verification))
			r.Post("/verification/confirm", confirmCodeHandler(cfg.Verification))
		}
	})

	return r
}
