package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentScheduled = "APPOINTMENT_SCHEDULED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

// Notification is the status message for one committed transition.
type Notification struct {
	RecipientUserID string
	Text            string
	// Key names the stored state the message reports. A transition that
	// changes nothing reuses the key of the one before it.
	Key string
}

// Notifier delivers a text message to the contact channel registered for a
// user. The returned string is a delivery receipt.
type Notifier interface {
	Send(ctx context.Context, n Notification) (string, error)
}

type CreateAppointmentInput struct {
	UserID           string
	PatientID        string
	PatientName      string
	PrimaryPhysician string
	Schedule         time.Time
	Reason           string
	Note             string
}

// Service applies appointment business rules on top of a Store. It holds no
// state of its own between calls.
type Service struct {
	store      Store
	notifier   Notifier
	events     EventRecorder
	physicians PhysicianDirectory
	location   *time.Location
	now        func() time.Time
	log        zerolog.Logger
}

type ServiceOption func(*Service)

func WithEventRecorder(events EventRecorder) ServiceOption {
	return func(s *Service) { s.events = events }
}

func WithPhysicians(physicians PhysicianDirectory) ServiceOption {
	return func(s *Service) { s.physicians = physicians }
}

// WithLocation sets the timezone used to render dates in notifications.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

func NewService(store Store, notifier Notifier, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		location: time.UTC,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAppointment records a new pending appointment. No notification is
// sent on creation.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	appt, err := s.store.Create(ctx, NewAppointment{
		UserID:           strings.TrimSpace(in.UserID),
		PatientID:        strings.TrimSpace(in.PatientID),
		PatientName:      strings.TrimSpace(in.PatientName),
		PrimaryPhysician: strings.TrimSpace(in.PrimaryPhysician),
		Schedule:         in.Schedule,
		Reason:           strings.TrimSpace(in.Reason),
		Note:             strings.TrimSpace(in.Note),
		Status:           StatusPending,
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"user_id":           appt.UserID,
		"patient_id":        appt.PatientID,
		"primary_physician": appt.PrimaryPhysician,
		"schedule":          appt.Schedule,
	})

	return appt, nil
}

func (s *Service) validateCreate(in CreateAppointmentInput) error {
	v := &ValidationError{}
	if strings.TrimSpace(in.UserID) == "" {
		v.add("user_id", "is required")
	}
	if strings.TrimSpace(in.PatientID) == "" {
		v.add("patient_id", "is required")
	}
	validatePhysician(v, s.physicians, in.PrimaryPhysician)
	switch {
	case in.Schedule.IsZero():
		v.add("schedule", "is required")
	case in.Schedule.Before(s.now().Truncate(time.Minute)):
		v.add("schedule", "must not be in the past")
	}
	if strings.TrimSpace(in.Reason) == "" {
		v.add("reason", "is required")
	}
	return v.errOrNil()
}

// Transition applies a schedule or cancel action. Every status accepts both
// actions. The notification is attempted only after the store commit
// succeeded and its failure never fails the call.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, userID string, fields TransitionFields) (*Appointment, error) {
	if fields == nil {
		return nil, &ValidationError{FieldErrors: map[string]string{"kind": "must be schedule or cancel"}}
	}
	if err := fields.validate(s.physicians); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{FieldErrors: map[string]string{"user_id": "is required"}}
	}

	updated, err := s.store.Update(ctx, id, fields.patch())
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("appointment_id", id.String()).
			Str("kind", string(fields.Kind())).
			Str("error_kind", ErrorKind(err)).
			Msg("transition not applied")
		return nil, err
	}

	eventType := EventAppointmentScheduled
	if fields.Kind() == KindCancel {
		eventType = EventAppointmentCancelled
	}
	s.logEvent(ctx, updated.ID, eventType, map[string]any{
		"user_id":             userID,
		"primary_physician":   updated.PrimaryPhysician,
		"schedule":            updated.Schedule,
		"cancellation_reason": updated.CancellationReason,
	})

	s.notify(ctx, *updated, userID, fields.Kind())

	return updated, nil
}

func (s *Service) notify(ctx context.Context, appt Appointment, userID string, kind TransitionKind) {
	if s.notifier == nil {
		return
	}

	receipt, err := s.notifier.Send(ctx, Notification{
		RecipientUserID: userID,
		Text:            StatusMessage(appt, kind, s.location),
		Key:             NotificationKey(appt),
	})
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("user_id", userID).
			Str("kind", string(kind)).
			Msg("notification failed; transition kept")
		return
	}

	s.log.Debug().
		Str("appointment_id", appt.ID.String()).
		Str("user_id", userID).
		Str("receipt", receipt).
		Msg("notification handed off")
}

// NotificationKey identifies the stored state of appt. Stores keep UpdatedAt
// when an update changes nothing, so only a true repeat shares a key.
func NotificationKey(appt Appointment) string {
	return appt.ID.String() + ":" + string(appt.Status) + ":" + strconv.FormatInt(appt.UpdatedAt.UnixNano(), 10)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListRecent(ctx context.Context) ([]Appointment, error) {
	return s.store.ListRecent(ctx)
}

// Dashboard reads one snapshot and derives the counts from that same slice.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	appointments, err := s.store.ListRecent(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := Aggregate(appointments)
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			s.log.Error().Err(err).Msg("appointment snapshot is corrupt")
		}
		return nil, err
	}

	return &Dashboard{Counts: counts, Appointments: appointments}, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.events.InsertEvent(ctx, ev); err != nil {
		s.log.Error().
			Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to record event")
	}
}
