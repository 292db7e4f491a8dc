package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/LoickBck/MediciNet/internal/appointment"
	"github.com/LoickBck/MediciNet/internal/patient"
	"github.com/LoickBck/MediciNet/internal/roster"
)

type AppointmentService interface {
	CreateAppointment(ctx context.Context, in appointment.CreateAppointmentInput) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, userID string, fields appointment.TransitionFields) (*appointment.Appointment, error)
	Dashboard(ctx context.Context) (*appointment.Dashboard, error)
}

type PatientService interface {
	Register(ctx context.Context, in patient.Registration) (*patient.Patient, bool, error)
	GetByUserID(ctx context.Context, userID string) (*patient.Patient, error)
	List(ctx context.Context) ([]patient.Patient, error)
	Update(ctx context.Context, userID string, u patient.Update) (*patient.Patient, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

type PhysicianLister interface {
	All() []roster.Physician
}

type RouterConfig struct {
	Appointments AppointmentService
	Patients     PatientService // nil disables the patient routes
	Physicians   PhysicianLister
	Admin        *AdminAuth // nil disables the admin routes
	Health       *HealthHandler
	Logger       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	r.Get("/physicians", listPhysiciansHandler(cfg.Physicians))

	if cfg.Patients != nil {
		r.Post("/patients", registerPatientHandler(cfg.Patients))
		r.Get("/patients/{userId}", getPatientHandler(cfg.Patients))
		r.Patch("/patients/{userId}", updatePatientHandler(cfg.Patients))
	} else {
		r.HandleFunc("/patients", patientsDisabled)
		r.HandleFunc("/patients/*", patientsDisabled)
	}

	r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))

	r.Route("/admin", func(r chi.Router) {
		if cfg.Admin == nil {
			r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "admin_disabled", "admin access is not configured")
			})
			return
		}

		r.Post("/session", adminSessionHandler(cfg.Admin))

		r.Group(func(r chi.Router) {
			r.Use(cfg.Admin.Middleware)

			r.Get("/appointments", dashboardHandler(cfg.Appointments))
			r.Post("/appointments/{id}/schedule", scheduleAppointmentHandler(cfg.Appointments))
			r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
			if cfg.Patients != nil {
				r.Get("/patients", listPatientsHandler(cfg.Patients))
				r.Delete("/patients/{userId}", deletePatientHandler(cfg.Patients))
			} else {
				r.HandleFunc("/patients", patientsDisabled)
				r.HandleFunc("/patients/*", patientsDisabled)
			}
		})
	})

	return r
}

func patientsDisabled(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusServiceUnavailable, "patients_disabled", "patient records need the postgres store")
}
