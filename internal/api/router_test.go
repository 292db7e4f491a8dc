package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/LoickBck/MediciNet/internal/appointment"
	"github.com/LoickBck/MediciNet/internal/patient"
	"github.com/LoickBck/MediciNet/internal/roster"
	"github.com/LoickBck/MediciNet/internal/testfixtures"
)

const testPasskey = "123456"

type notifierStub struct {
	mu   sync.Mutex
	sent []string
}

func (n *notifierStub) Send(_ context.Context, note appointment.Notification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note.RecipientUserID)
	return "r", nil
}

func (n *notifierStub) Recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type patientServiceStub struct {
	mu       sync.Mutex
	byUser   map[string]patient.Patient
	lastDoc  string
	failWith error
}

func (s *patientServiceStub) Register(_ context.Context, in patient.Registration) (*patient.Patient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, false, s.failWith
	}
	if p, ok := s.byUser[in.UserID]; ok {
		return &p, false, nil
	}
	if in.IdentificationDocument != nil {
		s.lastDoc = in.IdentificationDocument.Name + ":" + string(in.IdentificationDocument.Data)
	}
	p := patient.Patient{ID: uuid.New(), UserID: in.UserID, Name: in.Name, Email: in.Email, Phone: in.Phone}
	s.byUser[in.UserID] = p
	return &p, true, nil
}

func (s *patientServiceStub) GetByUserID(_ context.Context, userID string) (*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byUser[userID]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return &p, nil
}

func (s *patientServiceStub) List(context.Context) ([]patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []patient.Patient{}
	for _, p := range s.byUser {
		out = append(out, p)
	}
	return out, nil
}

func (s *patientServiceStub) Update(_ context.Context, userID string, u patient.Update) (*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byUser[userID]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	s.byUser[userID] = p
	return &p, nil
}

func (s *patientServiceStub) DeleteByUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUser[userID]; !ok {
		return patient.ErrPatientNotFound
	}
	delete(s.byUser, userID)
	return nil
}

type testServer struct {
	handler  http.Handler
	notifier *notifierStub
	patients *patientServiceStub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	conn := testfixtures.OpenSQLite(t)
	store := appointment.NewSQLiteStore(conn)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := testfixtures.NewClock(time.Time{})
	notifier := &notifierStub{}
	appointments := appointment.NewService(store, notifier,
		appointment.WithPhysicians(roster.Default()),
		appointment.WithNow(clock.Now),
	)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPasskey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash passkey: %v", err)
	}

	patients := &patientServiceStub{byUser: map[string]patient.Patient{}}
	handler := NewRouter(RouterConfig{
		Appointments: appointments,
		Patients:     patients,
		Physicians:   roster.Default(),
		Admin:        NewAdminAuth(string(hash), "test-secret", time.Hour),
		Health:       NewHealthHandler("test", "v0"),
		Logger:       zerolog.Nop(),
	})

	return &testServer{handler: handler, notifier: notifier, patients: patients}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/admin/session", "", AdminSessionRequest{Passkey: testPasskey})
	if rec.Code != http.StatusCreated {
		t.Fatalf("session status = %d body=%s", rec.Code, rec.Body)
	}
	var resp AdminSessionResponse
	decode(t, rec, &resp)
	return resp.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func createBody() CreateAppointmentRequest {
	return CreateAppointmentRequest{
		UserID:           "u1",
		PatientID:        "p1",
		PatientName:      "Jeanne Petit",
		PrimaryPhysician: "Dr. Martin",
		Schedule:         time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC),
		Reason:           "check-up",
	}
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/appointments", "", createBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	var created AppointmentResponse
	decode(t, rec, &created)
	if created.Status != "pending" {
		t.Errorf("status = %q", created.Status)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	token := s.adminToken(t)
	base := "/admin/appointments/" + created.ID.String()

	rec = s.do(t, http.MethodPost, base+"/schedule", token, ScheduleRequest{
		PrimaryPhysician: "Dr. Martin",
		Schedule:         time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule status = %d body=%s", rec.Code, rec.Body)
	}
	var scheduled AppointmentResponse
	decode(t, rec, &scheduled)
	if scheduled.Status != "scheduled" {
		t.Errorf("status = %q", scheduled.Status)
	}

	rec = s.do(t, http.MethodPost, base+"/cancel", token, CancelRequest{CancellationReason: "patient unavailable"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d body=%s", rec.Code, rec.Body)
	}
	var cancelled AppointmentResponse
	decode(t, rec, &cancelled)
	if cancelled.Status != "cancelled" || cancelled.CancellationReason != "patient unavailable" {
		t.Errorf("cancelled = %+v", cancelled)
	}

	// Without user_id in the body the appointment owner is notified.
	if got := s.notifier.Recipients(); len(got) != 2 || got[0] != "u1" || got[1] != "u1" {
		t.Errorf("recipients = %v", got)
	}

	rec = s.do(t, http.MethodGet, "/admin/appointments", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	var dash struct {
		Total     int                   `json:"total_count"`
		Cancelled int                   `json:"cancelled_count"`
		Documents []AppointmentResponse `json:"documents"`
	}
	decode(t, rec, &dash)
	if dash.Total != 1 || dash.Cancelled != 1 || len(dash.Documents) != 1 {
		t.Errorf("dashboard = %+v", dash)
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		mutate func(*CreateAppointmentRequest)
		field  string
	}{
		{"missing reason", func(r *CreateAppointmentRequest) { r.Reason = "" }, "reason"},
		{"blank reason", func(r *CreateAppointmentRequest) { r.Reason = "   " }, "reason"},
		{"past schedule", func(r *CreateAppointmentRequest) { r.Schedule = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }, "schedule"},
		{"unknown physician", func(r *CreateAppointmentRequest) { r.PrimaryPhysician = "Dr. Who" }, "primary_physician"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := createBody()
			tt.mutate(&body)

			rec := s.do(t, http.MethodPost, "/appointments", "", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
			}
			var resp ErrorResponse
			decode(t, rec, &resp)
			if resp.Fields[tt.field] == "" {
				t.Errorf("fields = %v, want %q", resp.Fields, tt.field)
			}
		})
	}
}

func TestGetAppointment_Errors(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodGet, "/appointments/not-a-uuid", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d", rec.Code)
	}
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodGet, "/admin/appointments", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/admin/appointments", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/admin/session", "", AdminSessionRequest{Passkey: "000000"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong passkey status = %d", rec.Code)
	}
}

func TestAdminAuth_ExpiredToken(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPasskey), bcrypt.MinCost)
	auth := NewAdminAuth(string(hash), "secret", time.Minute)

	clock := testfixtures.NewClock(time.Time{})
	auth.now = clock.Now

	token, expires, err := auth.Issue(testPasskey)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expires.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("expires = %s", expires)
	}
	if err := auth.Verify(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if err := auth.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}

	other := NewAdminAuth(string(hash), "other-secret", time.Minute)
	other.now = func() time.Time { return testfixtures.ReferenceTime() }
	if err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestAdminDisabled(t *testing.T) {
	handler := NewRouter(RouterConfig{
		Appointments: &failingAppointments{},
		Patients:     &patientServiceStub{byUser: map[string]patient.Patient{}},
		Physicians:   roster.Default(),
		Logger:       zerolog.Nop(),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/appointments", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

type failingAppointments struct {
	err error
}

func (f *failingAppointments) CreateAppointment(context.Context, appointment.CreateAppointmentInput) (*appointment.Appointment, error) {
	return nil, f.err
}

func (f *failingAppointments) GetAppointment(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	return nil, f.err
}

func (f *failingAppointments) Transition(context.Context, uuid.UUID, string, appointment.TransitionFields) (*appointment.Appointment, error) {
	return nil, f.err
}

func (f *failingAppointments) Dashboard(context.Context) (*appointment.Dashboard, error) {
	return nil, f.err
}

func TestHandleAppointmentError_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"storage", &appointment.StorageError{Op: "get", Err: errors.New("down")}, http.StatusServiceUnavailable},
		{"invariant", appointment.ErrInvariantViolation, http.StatusInternalServerError},
		{"not found", appointment.ErrAppointmentNotFound, http.StatusNotFound},
		{"validation", &appointment.ValidationError{FieldErrors: map[string]string{"reason": "is required"}}, http.StatusBadRequest},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleAppointmentError(rec, tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestPatientRoutes(t *testing.T) {
	s := newTestServer(t)

	reg := map[string]any{"user_id": "u1", "name": "Jeanne Petit", "email": "j@example.com", "phone": "+33612345678"}
	rec := s.do(t, http.MethodPost, "/patients", "", reg)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body=%s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodPost, "/patients", "", reg)
	if rec.Code != http.StatusOK {
		t.Errorf("repeat register status = %d, want 200", rec.Code)
	}

	if rec := s.do(t, http.MethodGet, "/patients/u1", "", nil); rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/patients/nobody", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing patient status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPatch, "/patients/u1", "", map[string]string{"name": "Jeanne Martin"})
	var updated patient.Patient
	decode(t, rec, &updated)
	if updated.Name != "Jeanne Martin" {
		t.Errorf("name = %q", updated.Name)
	}

	token := s.adminToken(t)
	if rec := s.do(t, http.MethodGet, "/admin/patients", token, nil); rec.Code != http.StatusOK {
		t.Errorf("list status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/admin/patients/u1", token, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/admin/patients/u1", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("delete without token status = %d", rec.Code)
	}
}

func TestRegisterPatient_Multipart(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("payload", `{"user_id":"u9","name":"Luc Roux","email":"l@example.com","phone":"+33600000000"}`)
	fw, err := mw.CreateFormFile("identification_document", "id.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte("png-bytes"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/patients", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if s.patients.lastDoc != "id.png:png-bytes" {
		t.Errorf("document = %q", s.patients.lastDoc)
	}
}

func TestPatientValidationErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.patients.failWith = &patient.ValidationError{FieldErrors: map[string]string{"phone": "must be + followed by 10 to 15 digits"}}

	rec := s.do(t, http.MethodPost, "/patients", "", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ErrorResponse
	decode(t, rec, &resp)
	if resp.Error != "validation_failed" || resp.Fields["phone"] == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestPhysicians(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/physicians", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []roster.Physician
	decode(t, rec, &got)
	if len(got) != len(roster.Default().All()) {
		t.Errorf("physicians = %d", len(got))
	}
}

func TestReadiness(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name       string
		deps       []Dependency
		wantCode   int
		wantStatus string
	}{
		{"all up", []Dependency{{Name: "db", Critical: true, Ping: up}, {Name: "redis", Ping: up}}, http.StatusOK, "ok"},
		{"optional down", []Dependency{{Name: "db", Critical: true, Ping: up}, {Name: "redis", Ping: down}}, http.StatusOK, "degraded"},
		{"critical down", []Dependency{{Name: "db", Critical: true, Ping: down}, {Name: "redis", Ping: up}}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("test", "v0", tt.deps...)
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp ReadinessResponse
			decode(t, rec, &resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), `"db"`) {
				t.Errorf("body = %s", rec.Body)
			}
		})
	}
}
