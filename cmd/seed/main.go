package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/LoickBck/MediciNet/internal/appointment"
	"github.com/LoickBck/MediciNet/internal/config"
	"github.com/LoickBck/MediciNet/internal/db"
	"github.com/LoickBck/MediciNet/internal/logging"
	"github.com/LoickBck/MediciNet/internal/patient"
	"github.com/LoickBck/MediciNet/internal/roster"
)

var reasons = []string{
	"Annual check-up",
	"Persistent headache",
	"Follow-up on blood test",
	"Back pain",
	"Vaccination",
	"Skin rash",
	"Prescription renewal",
	"Sleep problems",
}

var cancelReasons = []string{
	"Patient unavailable",
	"Physician on leave",
	"Rescheduled by phone",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("prod", "info")
		l.Fatal().Err(err).Msg("config load")
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	if cfg.StoreDriver != config.DriverPostgres {
		log.Fatal().Str("store", cfg.StoreDriver).Msg("seed needs STORE_DRIVER=postgres")
	}

	patients := getInt("SEED_PATIENTS", 200)
	perPatient := getInt("SEED_APPOINTMENTS_PER_PATIENT", 3)
	log.Info().Int("patients", patients).Int("max_appointments_per_patient", perPatient).Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	physicians, err := roster.Load(cfg.RosterFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load roster")
	}

	store := appointment.NewPgStore(pool)
	s := &seeder{
		patients: patient.NewService(patient.NewPgRepository(pool),
			patient.WithPhysicians(physicians),
			patient.WithLogger(zerolog.Nop()),
		),
		appointments: appointment.NewService(store, nil,
			appointment.WithPhysicians(physicians),
			appointment.WithEventRecorder(store),
			appointment.WithLogger(zerolog.Nop()),
		),
		physicians: physicians.Names(),
		log:        log,
	}

	if err := s.run(ctx, patients, perPatient); err != nil {
		log.Fatal().Err(err).Msg("seed failed")
	}
	log.Info().Msg("seed complete")
}

type seeder struct {
	patients     *patient.Service
	appointments *appointment.Service
	physicians   []string
	log          zerolog.Logger
}

func (s *seeder) run(ctx context.Context, patients, perPatient int) error {
	var created, booked int

	for i := 0; i < patients; i++ {
		p, isNew, err := s.patients.Register(ctx, s.fakeRegistration())
		if err != nil {
			return fmt.Errorf("register patient %d: %w", i, err)
		}
		if isNew {
			created++
		}

		n := gofakeit.Number(0, perPatient)
		for j := 0; j < n; j++ {
			if err := s.book(ctx, p); err != nil {
				return fmt.Errorf("book for %s: %w", p.UserID, err)
			}
			booked++
		}

		if (i+1)%50 == 0 {
			s.log.Info().Int("patients", i+1).Int("appointments", booked).Msg("progress")
		}
	}

	s.log.Info().Int("patients_created", created).Int("appointments", booked).Msg("seeded")
	return nil
}

// book creates one appointment and moves roughly two thirds of them on to
// scheduled or cancelled, so the dashboard shows every status.
func (s *seeder) book(ctx context.Context, p *patient.Patient) error {
	now := time.Now()
	appt, err := s.appointments.CreateAppointment(ctx, appointment.CreateAppointmentInput{
		UserID:           p.UserID,
		PatientID:        p.ID.String(),
		PatientName:      p.Name,
		PrimaryPhysician: p.PrimaryPhysician,
		Schedule:         gofakeit.DateRange(now.Add(time.Hour), now.AddDate(0, 2, 0)).Truncate(15 * time.Minute),
		Reason:           gofakeit.RandomString(reasons),
	})
	if err != nil {
		return err
	}

	var fields appointment.TransitionFields
	switch gofakeit.Number(0, 2) {
	case 0:
		return nil
	case 1:
		fields = appointment.ScheduleFields{
			PrimaryPhysician: gofakeit.RandomString(s.physicians),
			Schedule:         appt.Schedule.Add(time.Duration(gofakeit.Number(0, 48)) * time.Hour),
		}
	default:
		fields = appointment.CancelFields{CancellationReason: gofakeit.RandomString(cancelReasons)}
	}

	_, err = s.appointments.Transition(ctx, appt.ID, p.UserID, fields)
	return err
}

func (s *seeder) fakeRegistration() patient.Registration {
	birth := gofakeit.DateRange(time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC), time.Now().AddDate(-1, 0, 0))

	return patient.Registration{
		UserID:                 uuid.NewString(),
		Name:                   gofakeit.Name(),
		Email:                  gofakeit.Email(),
		Phone:                  fakePhone(),
		BirthDate:              &birth,
		Gender:                 patient.Gender(gofakeit.RandomString([]string{"male", "female", "other"})),
		Address:                gofakeit.Address().Address,
		Occupation:             gofakeit.Job().Title,
		EmergencyContactName:   gofakeit.Name(),
		EmergencyContactNumber: fakePhone(),
		PrimaryPhysician:       gofakeit.RandomString(s.physicians),
		InsuranceProvider:      gofakeit.Company(),
		InsurancePolicyNumber:  strconv.Itoa(gofakeit.Number(10000000, 99999999)),
		PrivacyConsent:         true,
	}
}

func fakePhone() string {
	return fmt.Sprintf("+336%08d", gofakeit.Number(0, 99999999))
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
