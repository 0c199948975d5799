package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/clinic-scheduling/internal/scheduling"
)

// stubService lets each test plug in just the behavior it exercises.
type stubService struct {
	listDoctors            func(ctx context.Context) ([]scheduling.Doctor, error)
	getAvailableSlots      func(ctx context.Context, doctorID uuid.UUID, date string) ([]scheduling.SlotOption, error)
	confirmAppointment     func(ctx context.Context, patientID, doctorID uuid.UUID, slot time.Time) (*scheduling.Appointment, error)
	cancelAppointment      func(ctx context.Context, id uuid.UUID, by scheduling.CancelActor, reason *string) (*scheduling.Appointment, error)
	getAppointmentDetails  func(ctx context.Context, id uuid.UUID) (*scheduling.AppointmentDetail, error)
	listDoctorAppointments func(ctx context.Context, doctorID uuid.UUID, from *time.Time, status *scheduling.AppointmentStatus) ([]scheduling.Appointment, error)
	listDoctorAvailability func(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Availability, error)
	createAvailability     func(ctx context.Context, p scheduling.CreateAvailabilityParams) (*scheduling.Availability, error)
	expandAvailability     func(ctx context.Context, p scheduling.ExpandAvailabilityParams) (*scheduling.Availability, error)
	shrinkAvailability     func(ctx context.Context, p scheduling.ShrinkAvailabilityParams) (*scheduling.Availability, error)
}

func (s *stubService) ListDoctors(ctx context.Context) ([]scheduling.Doctor, error) {
	return s.listDoctors(ctx)
}

func (s *stubService) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]scheduling.SlotOption, error) {
	return s.getAvailableSlots(ctx, doctorID, date)
}

func (s *stubService) ConfirmAppointment(ctx context.Context, patientID, doctorID uuid.UUID, slot time.Time) (*scheduling.Appointment, error) {
	return s.confirmAppointment(ctx, patientID, doctorID, slot)
}

func (s *stubService) CancelAppointment(ctx context.Context, id uuid.UUID, by scheduling.CancelActor, reason *string) (*scheduling.Appointment, error) {
	return s.cancelAppointment(ctx, id, by, reason)
}

func (s *stubService) GetAppointmentDetails(ctx context.Context, id uuid.UUID) (*scheduling.AppointmentDetail, error) {
	return s.getAppointmentDetails(ctx, id)
}

func (s *stubService) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, from *time.Time, status *scheduling.AppointmentStatus) ([]scheduling.Appointment, error) {
	return s.listDoctorAppointments(ctx, doctorID, from, status)
}

func (s *stubService) ListDoctorAvailability(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Availability, error) {
	return s.listDoctorAvailability(ctx, doctorID)
}

func (s *stubService) CreateAvailability(ctx context.Context, p scheduling.CreateAvailabilityParams) (*scheduling.Availability, error) {
	return s.createAvailability(ctx, p)
}

func (s *stubService) ExpandAvailability(ctx context.Context, p scheduling.ExpandAvailabilityParams) (*scheduling.Availability, error) {
	return s.expandAvailability(ctx, p)
}

func (s *stubService) ShrinkAvailability(ctx context.Context, p scheduling.ShrinkAvailabilityParams) (*scheduling.Availability, error) {
	return s.shrinkAvailability(ctx, p)
}

type stubVerification struct {
	issue   func(ctx context.Context, email string) (string, error)
	confirm func(ctx context.Context, email, code string) error
}

func (s *stubVerification) Issue(ctx context.Context, email string) (string, error) {
	return s.issue(ctx, email)
}

func (s *stubVerification) Confirm(ctx context.Context, email, code string) error {
	return s.confirm(ctx, email, code)
}

func newTestRouter(svc SchedulingService, store VerificationStore) http.Handler {
	return NewRouter(RouterConfig{
		Scheduling:   svc,
		Verification: store,
		Env:          "test",
		Version:      "test",
	})
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestGetAvailableSlotsEndpoint(t *testing.T) {
	doctorID := uuid.New()
	slot := time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC)
	svc := &stubService{
		getAvailableSlots: func(_ context.Context, id uuid.UUID, date string) ([]scheduling.SlotOption, error) {
			assert.Equal(t, doctorID, id)
			assert.Equal(t, "2025-10-06", date)
			return []scheduling.SlotOption{{Time: slot, Available: 2}}, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/doctors/"+doctorID.String()+"/slots?date=2025-10-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []SlotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.True(t, slot.Equal(resp[0].Time))
	assert.Equal(t, 2, resp[0].Available)
}

func TestGetAvailableSlotsEndpointValidation(t *testing.T) {
	svc := &stubService{
		getAvailableSlots: func(_ context.Context, _ uuid.UUID, _ string) ([]scheduling.SlotOption, error) {
			return nil, scheduling.ErrInvalidDate
		},
	}
	router := newTestRouter(svc, nil)
	doctorID := uuid.New()

	rec := doRequest(t, router, http.MethodGet, "/api/v1/doctors/not-a-uuid/slots?date=2025-10-06", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_doctor_id", errorCode(t, rec))

	rec = doRequest(t, router, http.MethodGet, "/api/v1/doctors/"+doctorID.String()+"/slots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_date", errorCode(t, rec))

	rec = doRequest(t, router, http.MethodGet, "/api/v1/doctors/"+doctorID.String()+"/slots?date=bad", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date", errorCode(t, rec))
}

func TestConfirmAppointmentEndpoint(t *testing.T) {
	patientID := uuid.New()
	doctorID := uuid.New()
	slot := time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC)
	svc := &stubService{
		confirmAppointment: func(_ context.Context, pid, did uuid.UUID, s time.Time) (*scheduling.Appointment, error) {
			assert.Equal(t, patientID, pid)
			assert.Equal(t, doctorID, did)
			assert.True(t, slot.Equal(s))
			return &scheduling.Appointment{
				ID: uuid.New(), PatientID: pid, DoctorID: did,
				Slot: s, StartTime: s, EndTime: s.Add(15 * time.Minute),
				Status: scheduling.StatusConfirmed,
			}, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/appointments/confirm", ConfirmAppointmentRequest{
		PatientID: patientID.String(),
		DoctorID:  doctorID.String(),
		Slot:      slot.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", resp.Status)
	assert.True(t, slot.Equal(resp.Slot))
}

func TestConfirmAppointmentEndpointErrors(t *testing.T) {
	cases := []struct {
		name     string
		svcErr   error
		wantCode int
		wantBody string
	}{
		{"slot full", scheduling.ErrSlotCapacityFull, http.StatusConflict, "slot_already_booked"},
		{"day full", scheduling.ErrDayCapacityFull, http.StatusConflict, "day_capacity_full"},
		{"lock contention", scheduling.ErrBookingInProgress, http.StatusConflict, "slot_being_booked"},
		{"not in window", scheduling.ErrSlotNotAvailable, http.StatusBadRequest, "slot_not_available"},
		{"slot required", scheduling.ErrSlotRequired, http.StatusBadRequest, "slot_required"},
		{"patient missing", scheduling.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{"doctor missing", scheduling.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{
				confirmAppointment: func(_ context.Context, _, _ uuid.UUID, _ time.Time) (*scheduling.Appointment, error) {
					return nil, tc.svcErr
				},
			}
			router := newTestRouter(svc, nil)

			rec := doRequest(t, router, http.MethodPost, "/api/v1/appointments/confirm", ConfirmAppointmentRequest{
				PatientID: uuid.NewString(),
				DoctorID:  uuid.NewString(),
				Slot:      "2025-10-06T09:00:00Z",
			})
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Equal(t, tc.wantBody, errorCode(t, rec))
		})
	}
}

func TestConfirmAppointmentEndpointBadInput(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/appointments/confirm", ConfirmAppointmentRequest{
		PatientID: "nope",
		DoctorID:  uuid.NewString(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_patient_id", errorCode(t, rec))

	rec = doRequest(t, router, http.MethodPost, "/api/v1/appointments/confirm", ConfirmAppointmentRequest{
		PatientID: uuid.NewString(),
		DoctorID:  uuid.NewString(),
		Slot:      "today at nine",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_slot", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/confirm", bytes.NewReader([]byte("{not json")))
	recRaw := httptest.NewRecorder()
	router.ServeHTTP(recRaw, req)
	assert.Equal(t, http.StatusBadRequest, recRaw.Code)
	assert.Equal(t, "invalid_request_body", errorCode(t, recRaw))
}

func TestCancelAppointmentEndpoint(t *testing.T) {
	apptID := uuid.New()
	svc := &stubService{
		cancelAppointment: func(_ context.Context, id uuid.UUID, by scheduling.CancelActor, reason *string) (*scheduling.Appointment, error) {
			assert.Equal(t, apptID, id)
			assert.Equal(t, scheduling.CancelledByPatient, by)
			require.NotNil(t, reason)
			assert.Equal(t, "conflict", *reason)
			actor := scheduling.CancelledByPatient
			return &scheduling.Appointment{
				ID: id, Status: scheduling.StatusCancelled,
				CancelledBy: &actor, CancellationReason: reason,
			}, nil
		},
	}
	router := newTestRouter(svc, nil)

	reason := "conflict"
	rec := doRequest(t, router, http.MethodPost, "/api/v1/appointments/"+apptID.String()+"/cancel", CancelAppointmentRequest{
		CancelledBy: "patient",
		Reason:      &reason,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp.Status)
	require.NotNil(t, resp.CancelledBy)
	assert.Equal(t, "patient", *resp.CancelledBy)
}

func TestCancelAppointmentEndpointConflicts(t *testing.T) {
	svc := &stubService{
		cancelAppointment: func(_ context.Context, _ uuid.UUID, _ scheduling.CancelActor, _ *string) (*scheduling.Appointment, error) {
			return nil, scheduling.ErrAlreadyCancelled
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/appointments/"+uuid.NewString()+"/cancel", CancelAppointmentRequest{
		CancelledBy: "doctor",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_cancelled", errorCode(t, rec))
}

func TestGetAppointmentEndpoint(t *testing.T) {
	apptID := uuid.New()
	patient := scheduling.Patient{ID: uuid.New(), Name: "Pat"}
	doctor := scheduling.Doctor{ID: uuid.New(), Name: "Dr. Who", ScheduleType: scheduling.ScheduleWave}
	svc := &stubService{
		getAppointmentDetails: func(_ context.Context, id uuid.UUID) (*scheduling.AppointmentDetail, error) {
			return &scheduling.AppointmentDetail{
				Appointment: scheduling.Appointment{ID: id, PatientID: patient.ID, DoctorID: doctor.ID, Status: scheduling.StatusConfirmed},
				Patient:     &patient,
				Doctor:      &doctor,
			}, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/appointments/"+apptID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apptID, resp.ID)
	require.NotNil(t, resp.Patient)
	assert.Equal(t, "Pat", resp.Patient.Name)
	require.NotNil(t, resp.Doctor)
	assert.Equal(t, "Dr. Who", resp.Doctor.Name)
}

func TestListDoctorAppointmentsEndpointFilters(t *testing.T) {
	doctorID := uuid.New()
	svc := &stubService{
		listDoctorAppointments: func(_ context.Context, id uuid.UUID, from *time.Time, status *scheduling.AppointmentStatus) ([]scheduling.Appointment, error) {
			assert.Equal(t, doctorID, id)
			require.NotNil(t, from)
			assert.Equal(t, time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC), *from)
			require.NotNil(t, status)
			assert.Equal(t, scheduling.StatusConfirmed, *status)
			return nil, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/doctors/"+doctorID.String()+"/appointments?from=2025-10-06&status=confirmed", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/doctors/"+doctorID.String()+"/appointments?status=pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", errorCode(t, rec))
}

func TestCreateAvailabilityEndpoint(t *testing.T) {
	doctorID := uuid.New()
	day := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	svc := &stubService{
		createAvailability: func(_ context.Context, p scheduling.CreateAvailabilityParams) (*scheduling.Availability, error) {
			assert.Equal(t, doctorID, p.DoctorID)
			assert.Equal(t, "2025-10-06", p.Date)
			return &scheduling.Availability{
				ID: uuid.New(), DoctorID: p.DoctorID, Day: day,
				StartTime: p.StartTime, EndTime: p.EndTime,
				WaveDuration: 20, Capacity: 3, Status: scheduling.AvailabilityFree,
			}, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/availability", CreateAvailabilityRequest{
		DoctorID:     doctorID.String(),
		Date:         "2025-10-06",
		StartTime:    "10:00",
		EndTime:      "12:00",
		WaveDuration: 20,
		Capacity:     3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-10-06", resp.Day)
	assert.Equal(t, "free", resp.Status)
}

func TestCreateAvailabilityEndpointConflict(t *testing.T) {
	svc := &stubService{
		createAvailability: func(_ context.Context, _ scheduling.CreateAvailabilityParams) (*scheduling.Availability, error) {
			return nil, scheduling.ErrAvailabilityExists
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/availability", CreateAvailabilityRequest{
		DoctorID:  uuid.NewString(),
		Date:      "2025-10-06",
		StartTime: "10:00",
		EndTime:   "12:00",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "availability_exists", errorCode(t, rec))
}

func TestExpandAvailabilityEndpoint(t *testing.T) {
	doctorID := uuid.New()
	svc := &stubService{
		expandAvailability: func(_ context.Context, p scheduling.ExpandAvailabilityParams) (*scheduling.Availability, error) {
			assert.Equal(t, "17:00", p.NewEndTime)
			return &scheduling.Availability{
				ID: uuid.New(), DoctorID: p.DoctorID,
				Day:       time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC),
				StartTime: "09:00", EndTime: p.NewEndTime,
				WaveDuration: 15, Capacity: 2, Status: scheduling.AvailabilityFree,
			}, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/availability/expand", ExpandAvailabilityRequest{
		DoctorID:   doctorID.String(),
		Date:       "2025-10-06",
		NewEndTime: "17:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "17:00", resp.EndTime)
}

func TestExpandAvailabilityEndpointNoExisting(t *testing.T) {
	svc := &stubService{
		expandAvailability: func(_ context.Context, _ scheduling.ExpandAvailabilityParams) (*scheduling.Availability, error) {
			return nil, scheduling.ErrNoAvailability
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/availability/expand", ExpandAvailabilityRequest{
		DoctorID:   uuid.NewString(),
		Date:       "2025-10-06",
		NewEndTime: "17:00",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_availability", errorCode(t, rec))
}

func TestShrinkAvailabilityEndpoint(t *testing.T) {
	svc := &stubService{
		shrinkAvailability: func(_ context.Context, p scheduling.ShrinkAvailabilityParams) (*scheduling.Availability, error) {
			return nil, scheduling.ErrMissingFields
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/availability/shrink", ShrinkAvailabilityRequest{
		DoctorID: uuid.NewString(),
		Date:     "2025-10-06",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_fields", errorCode(t, rec))
}

func TestListDoctorsEndpoint(t *testing.T) {
	spec := "Cardiology"
	svc := &stubService{
		listDoctors: func(_ context.Context) ([]scheduling.Doctor, error) {
			return []scheduling.Doctor{{
				ID: uuid.New(), Name: "Dr. A", Specialization: &spec,
				ScheduleType: scheduling.ScheduleWave, SlotDuration: 15, CapacityPerSlot: 2,
			}}, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/doctors", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []DoctorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "wave", resp[0].ScheduleType)
	require.NotNil(t, resp[0].Specialization)
	assert.Equal(t, spec, *resp[0].Specialization)
}

func TestVerificationEndpoints(t *testing.T) {
	store := &stubVerification{
		issue: func(_ context.Context, email string) (string, error) {
			assert.Equal(t, "pat@example.com", email)
			return "123456", nil
		},
		confirm: func(_ context.Context, email, code string) error {
			assert.Equal(t, "123456", code)
			return nil
		},
	}
	router := newTestRouter(&stubService{}, store)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/verification/send", SendCodeRequest{Email: "pat@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	// The code itself must never leak into the response.
	assert.NotContains(t, rec.Body.String(), "123456")

	rec = doRequest(t, router, http.MethodPost, "/api/v1/verification/confirm", ConfirmCodeRequest{
		Email: "pat@example.com",
		Code:  "123456",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/verification/send", SendCodeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_email", errorCode(t, rec))
}

func TestVerificationRoutesAbsentWithoutStore(t *testing.T) {
	router := newTestRouter(&stubService{}, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/verification/send", SendCodeRequest{Email: "pat@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	svc := &stubService{
		listDoctors: func(_ context.Context) ([]scheduling.Doctor, error) { return nil, nil },
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
