package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/LoickBck/MediciNet/internal/testfixtures"
)

type sentMessage struct {
	UserID string
	Text   string
	Key    string
}

type notifierStub struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *notifierStub) Send(_ context.Context, note Notification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{UserID: note.RecipientUserID, Text: note.Text, Key: note.Key})
	if n.err != nil {
		return "", n.err
	}
	return "receipt-" + note.RecipientUserID, nil
}

func (n *notifierStub) Sent() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentMessage, len(n.sent))
	copy(out, n.sent)
	return out
}

type rosterStub map[string]bool

func (r rosterStub) Contains(name string) bool { return r[name] }

type eventRecorderStub struct {
	events []EventLog
	err    error
}

func (e *eventRecorderStub) InsertEvent(_ context.Context, ev EventLog) error {
	e.events = append(e.events, ev)
	return e.err
}

// failingStore fails every write with the configured error.
type failingStore struct {
	Store
	err error
}

func (f failingStore) Create(context.Context, NewAppointment) (*Appointment, error) {
	return nil, f.err
}

func (f failingStore) Update(context.Context, uuid.UUID, Patch) (*Appointment, error) {
	return nil, f.err
}

type serviceHarness struct {
	svc      *Service
	store    *SQLiteStore
	notifier *notifierStub
	events   *eventRecorderStub
	clock    *testfixtures.Clock
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	store := newTestSQLiteStore(t, testfixtures.NewClock(time.Time{}))
	notifier := &notifierStub{}
	events := &eventRecorderStub{}

	svc := NewService(store, notifier,
		WithPhysicians(rosterStub{"Dr. Martin": true, "Dr. Bernard": true}),
		WithEventRecorder(events),
		WithNow(clock.Now),
	)
	return &serviceHarness{svc: svc, store: store, notifier: notifier, events: events, clock: clock}
}

func validCreateInput() CreateAppointmentInput {
	return CreateAppointmentInput{
		UserID:           "u1",
		PatientID:        "p1",
		PatientName:      "Jeanne Petit",
		PrimaryPhysician: "Dr. Martin",
		Schedule:         time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC),
		Reason:           "check-up",
	}
}

func TestService_LifecycleScenario(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)

	created, err := h.svc.CreateAppointment(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusPending {
		t.Fatalf("status = %q, want pending", created.Status)
	}
	if created.CancellationReason != "" {
		t.Fatalf("cancellation reason = %q, want empty", created.CancellationReason)
	}
	if n := len(h.notifier.Sent()); n != 0 {
		t.Fatalf("creation sent %d notifications, want 0", n)
	}

	newSchedule := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)
	scheduled, err := h.svc.Transition(ctx, created.ID, "u1", ScheduleFields{PrimaryPhysician: "Dr. Martin", Schedule: newSchedule})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if scheduled.Status != StatusScheduled {
		t.Errorf("status = %q, want scheduled", scheduled.Status)
	}
	if !scheduled.Schedule.Equal(newSchedule) {
		t.Errorf("schedule = %s, want %s", scheduled.Schedule, newSchedule)
	}
	sent := h.notifier.Sent()
	if len(sent) != 1 || sent[0].UserID != "u1" {
		t.Fatalf("notifications = %+v, want one for u1", sent)
	}
	if !strings.Contains(sent[0].Text, "Mar 2, 2025 09:00") || !strings.Contains(sent[0].Text, "Dr. Martin") {
		t.Errorf("schedule message = %q", sent[0].Text)
	}

	cancelled, err := h.svc.Transition(ctx, created.ID, "u1", CancelFields{CancellationReason: "patient unavailable"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}
	if cancelled.CancellationReason != "patient unavailable" {
		t.Errorf("cancellation reason = %q", cancelled.CancellationReason)
	}
	sent = h.notifier.Sent()
	if len(sent) != 2 || !strings.Contains(sent[1].Text, "patient unavailable") {
		t.Errorf("cancel message = %+v", sent)
	}

	var types []string
	for _, ev := range h.events.events {
		types = append(types, ev.EventType)
	}
	want := []string{EventAppointmentCreated, EventAppointmentScheduled, EventAppointmentCancelled}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", types, want)
	}
}

func TestService_CancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)

	a, err := h.svc.CreateAppointment(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	fields := CancelFields{CancellationReason: "doctor away"}
	first, err := h.svc.Transition(ctx, a.ID, "u1", fields)
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	second, err := h.svc.Transition(ctx, a.ID, "u1", fields)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}

	if first.Status != second.Status || first.CancellationReason != second.CancellationReason {
		t.Errorf("second cancel changed state: %+v vs %+v", first, second)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("no-op cancel moved updated_at: %s -> %s", first.UpdatedAt, second.UpdatedAt)
	}

	// Both calls notify; the repeat carries the same key so a dedupe layer
	// can drop it.
	sent := h.notifier.Sent()
	if len(sent) != 2 {
		t.Fatalf("notifications = %d, want 2", len(sent))
	}
	if sent[0].Key == "" || sent[0].Key != sent[1].Key {
		t.Errorf("keys = %q, %q, want equal and non-empty", sent[0].Key, sent[1].Key)
	}

	got, err := h.store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCancelled || got.CancellationReason != "doctor away" {
		t.Errorf("stored = %+v", got)
	}
}

func TestService_ReopenCancelledClearsReason(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)

	a, err := h.svc.CreateAppointment(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.svc.Transition(ctx, a.ID, "u1", CancelFields{CancellationReason: "sick"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	reopened, err := h.svc.Transition(ctx, a.ID, "u1", ScheduleFields{PrimaryPhysician: "Dr. Bernard", Schedule: a.Schedule})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != StatusScheduled {
		t.Errorf("status = %q, want scheduled", reopened.Status)
	}
	if reopened.CancellationReason != "" {
		t.Errorf("cancellation reason = %q, want cleared", reopened.CancellationReason)
	}
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateAppointmentInput)
		field  string
	}{
		{"empty reason", func(in *CreateAppointmentInput) { in.Reason = "  " }, "reason"},
		{"missing physician", func(in *CreateAppointmentInput) { in.PrimaryPhysician = "" }, "primary_physician"},
		{"unknown physician", func(in *CreateAppointmentInput) { in.PrimaryPhysician = "Dr. Who" }, "primary_physician"},
		{"missing schedule", func(in *CreateAppointmentInput) { in.Schedule = time.Time{} }, "schedule"},
		{"past schedule", func(in *CreateAppointmentInput) { in.Schedule = testfixtures.ReferenceTime().Add(-time.Hour) }, "schedule"},
		{"missing user", func(in *CreateAppointmentInput) { in.UserID = "" }, "user_id"},
		{"missing patient", func(in *CreateAppointmentInput) { in.PatientID = "" }, "patient_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newServiceHarness(t)

			in := validCreateInput()
			tt.mutate(&in)

			_, err := h.svc.CreateAppointment(ctx, in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tt.field]; !ok {
				t.Errorf("field errors = %v, want %q", vErr.FieldErrors, tt.field)
			}

			list, err := h.svc.ListRecent(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 0 {
				t.Errorf("validation failure wrote %d records", len(list))
			}
		})
	}
}

func TestService_CreateAcceptsCurrentMinute(t *testing.T) {
	h := newServiceHarness(t)

	h.clock.Advance(30 * time.Second)
	in := validCreateInput()
	in.Schedule = h.clock.Now().Truncate(time.Minute)

	if _, err := h.svc.CreateAppointment(context.Background(), in); err != nil {
		t.Fatalf("create at current minute: %v", err)
	}
}

func TestService_TransitionValidation(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)

	a, err := h.svc.CreateAppointment(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name   string
		userID string
		fields TransitionFields
		field  string
	}{
		{"cancel without reason", "u1", CancelFields{CancellationReason: " "}, "cancellation_reason"},
		{"schedule without physician", "u1", ScheduleFields{Schedule: a.Schedule}, "primary_physician"},
		{"schedule without date", "u1", ScheduleFields{PrimaryPhysician: "Dr. Martin"}, "schedule"},
		{"no kind", "u1", nil, "kind"},
		{"no user", "", CancelFields{CancellationReason: "x"}, "user_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Transition(ctx, a.ID, tt.userID, tt.fields)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tt.field]; !ok {
				t.Errorf("field errors = %v, want %q", vErr.FieldErrors, tt.field)
			}
		})
	}

	got, err := h.store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q after rejected transitions", got.Status)
	}
	if n := len(h.notifier.Sent()); n != 0 {
		t.Errorf("rejected transitions sent %d notifications", n)
	}
}

func TestService_TransitionMissingAppointmentSendsNothing(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Transition(context.Background(), uuid.New(), "u1", CancelFields{CancellationReason: "x"})
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
	if n := len(h.notifier.Sent()); n != 0 {
		t.Errorf("sent %d notifications for a failed transition", n)
	}
}

func TestService_StorageFailureSurfacesUnmodified(t *testing.T) {
	storageFailure := &StorageError{Op: "update appointment", Err: errors.New("connection reset")}
	notifier := &notifierStub{}
	svc := NewService(failingStore{err: storageFailure}, notifier)

	_, err := svc.Transition(context.Background(), uuid.New(), "u1", CancelFields{CancellationReason: "x"})
	if err != storageFailure {
		t.Fatalf("err = %v, want the store error itself", err)
	}
	if n := len(notifier.Sent()); n != 0 {
		t.Errorf("sent %d notifications after failed commit", n)
	}

	_, err = svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		UserID:           "u1",
		PatientID:        "p1",
		PrimaryPhysician: "Dr. Martin",
		Schedule:         time.Now().Add(time.Hour),
		Reason:           "check-up",
	})
	if err != storageFailure {
		t.Fatalf("create err = %v, want the store error itself", err)
	}
}

func TestService_NotificationFailureKeepsTransition(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)
	h.notifier.err = errors.New("sms gateway down")

	a, err := h.svc.CreateAppointment(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := h.svc.Transition(ctx, a.ID, "u1", CancelFields{CancellationReason: "closed"})
	if err != nil {
		t.Fatalf("transition failed because of notifier: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if n := len(h.notifier.Sent()); n != 1 {
		t.Errorf("notification attempts = %d, want 1", n)
	}

	stored, err := h.store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusCancelled {
		t.Errorf("stored status = %q, want cancelled", stored.Status)
	}
}

func TestService_EventRecorderFailureIsIgnored(t *testing.T) {
	h := newServiceHarness(t)
	h.events.err = errors.New("event log unavailable")

	if _, err := h.svc.CreateAppointment(context.Background(), validCreateInput()); err != nil {
		t.Fatalf("create failed because of event recorder: %v", err)
	}
}

func TestService_DashboardCountsMatchSnapshot(t *testing.T) {
	ctx := context.Background()
	h := newServiceHarness(t)

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		a, err := h.svc.CreateAppointment(ctx, validCreateInput())
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, a.ID)
	}
	if _, err := h.svc.Transition(ctx, ids[0], "u1", ScheduleFields{PrimaryPhysician: "Dr. Martin", Schedule: time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := h.svc.Transition(ctx, ids[1], "u1", CancelFields{CancellationReason: "moved"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	d, err := h.svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	want := Counts{Total: 4, ScheduledCount: 1, PendingCount: 2, CancelledCount: 1}
	if d.Counts != want {
		t.Errorf("counts = %+v, want %+v", d.Counts, want)
	}
	if len(d.Appointments) != d.Total {
		t.Errorf("snapshot has %d appointments, total %d", len(d.Appointments), d.Total)
	}
	if d.Appointments[0].ID != ids[3] {
		t.Errorf("first appointment = %s, want newest %s", d.Appointments[0].ID, ids[3])
	}
}
