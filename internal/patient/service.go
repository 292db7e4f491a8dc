package patient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/LoickBck/MediciNet/internal/blob"
)

// PhysicianDirectory answers whether a physician belongs to the roster.
type PhysicianDirectory interface {
	Contains(name string) bool
}

type Service struct {
	repo       Repository
	documents  blob.Store
	physicians PhysicianDirectory
	validate   *validator.Validate
	newID      func() uuid.UUID
	log        zerolog.Logger
}

type ServiceOption func(*Service)

// WithDocuments enables identification document uploads.
func WithDocuments(store blob.Store) ServiceOption {
	return func(s *Service) { s.documents = store }
}

func WithPhysicians(physicians PhysicianDirectory) ServiceOption {
	return func(s *Service) { s.physicians = physicians }
}

func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		validate: newValidator(),
		newID:    uuid.New,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register stores a new patient. When a patient with the same email and
// phone already exists it is returned unchanged and created is false.
func (s *Service) Register(ctx context.Context, in Registration) (p *Patient, created bool, err error) {
	in = normalizeRegistration(in)
	if err := s.validateRegistration(in); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByEmailPhone(ctx, in.Email, in.Phone)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrPatientNotFound):
		return nil, false, err
	}

	patient := Patient{
		ID:                     s.newID(),
		UserID:                 in.UserID,
		Name:                   in.Name,
		Email:                  in.Email,
		Phone:                  in.Phone,
		BirthDate:              in.BirthDate,
		Gender:                 in.Gender,
		Address:                in.Address,
		Occupation:             in.Occupation,
		EmergencyContactName:   in.EmergencyContactName,
		EmergencyContactNumber: in.EmergencyContactNumber,
		PrimaryPhysician:       in.PrimaryPhysician,
		InsuranceProvider:      in.InsuranceProvider,
		InsurancePolicyNumber:  in.InsurancePolicyNumber,
		Allergies:              in.Allergies,
		CurrentMedication:      in.CurrentMedication,
		FamilyMedicalHistory:   in.FamilyMedicalHistory,
		PastMedicalHistory:     in.PastMedicalHistory,
		IdentificationType:     in.IdentificationType,
		IdentificationNumber:   in.IdentificationNumber,
		PrivacyConsent:         in.PrivacyConsent,
	}

	// The document goes first so the record never points at a missing file.
	var uploaded *blob.Stored
	if in.IdentificationDocument != nil {
		stored, err := s.documents.Put(ctx, *in.IdentificationDocument)
		if err != nil {
			return nil, false, err
		}
		uploaded = &stored
		patient.IdentificationDocumentID = stored.ID
		patient.IdentificationDocumentURL = stored.URL
	}

	saved, err := s.repo.Create(ctx, patient)
	if err != nil {
		if uploaded != nil {
			s.removeDocument(ctx, uploaded.ID)
		}
		return nil, false, err
	}

	s.log.Info().Str("patient_id", saved.ID.String()).Str("user_id", saved.UserID).Msg("patient registered")
	return saved, true, nil
}

func (s *Service) validateRegistration(in Registration) error {
	ve := &ValidationError{}
	if err := check(s.validate, in, ve); err != nil {
		return err
	}
	if !in.PrivacyConsent {
		ve.add("privacy_consent", "must be accepted")
	}
	if in.BirthDate != nil && in.BirthDate.After(time.Now()) {
		ve.add("birth_date", "must not be in the future")
	}
	s.checkPhysician(ve, in.PrimaryPhysician)
	if in.IdentificationDocument != nil && s.documents == nil {
		ve.add("identification_document", "uploads are not enabled")
	}
	return ve.errOrNil()
}

func (s *Service) checkPhysician(ve *ValidationError, name string) {
	if name != "" && s.physicians != nil && !s.physicians.Contains(name) {
		ve.add("primary_physician", "is not on the roster")
	}
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (*Patient, error) {
	return s.repo.GetByUserID(ctx, strings.TrimSpace(userID))
}

func (s *Service) List(ctx context.Context) ([]Patient, error) {
	return s.repo.List(ctx)
}

func (s *Service) Update(ctx context.Context, userID string, u Update) (*Patient, error) {
	u = normalizeUpdate(u)

	ve := &ValidationError{}
	if err := check(s.validate, u, ve); err != nil {
		return nil, err
	}
	if u.empty() {
		ve.add("body", "has no fields to update")
	}
	if u.PrimaryPhysician != nil {
		if *u.PrimaryPhysician == "" {
			ve.add("primary_physician", "is required")
		}
		s.checkPhysician(ve, *u.PrimaryPhysician)
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}

	return s.repo.Update(ctx, strings.TrimSpace(userID), u)
}

// DeleteByUserID removes the patient and, best effort, its document.
func (s *Service) DeleteByUserID(ctx context.Context, userID string) error {
	deleted, err := s.repo.DeleteByUserID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	if deleted.IdentificationDocumentID != "" {
		s.removeDocument(ctx, deleted.IdentificationDocumentID)
	}
	s.log.Info().Str("patient_id", deleted.ID.String()).Str("user_id", deleted.UserID).Msg("patient deleted")
	return nil
}

func (s *Service) removeDocument(ctx context.Context, id string) {
	if s.documents == nil {
		return
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("document_id", id).Msg("failed to remove identification document")
	}
}

func normalizeRegistration(in Registration) Registration {
	trim := strings.TrimSpace
	in.UserID = trim(in.UserID)
	in.Name = trim(in.Name)
	in.Email = strings.ToLower(trim(in.Email))
	in.Phone = trim(in.Phone)
	in.Gender = Gender(strings.ToLower(trim(string(in.Gender))))
	in.Address = trim(in.Address)
	in.Occupation = trim(in.Occupation)
	in.EmergencyContactName = trim(in.EmergencyContactName)
	in.EmergencyContactNumber = trim(in.EmergencyContactNumber)
	in.PrimaryPhysician = trim(in.PrimaryPhysician)
	in.InsuranceProvider = trim(in.InsuranceProvider)
	in.InsurancePolicyNumber = trim(in.InsurancePolicyNumber)
	in.IdentificationType = trim(in.IdentificationType)
	in.IdentificationNumber = trim(in.IdentificationNumber)
	return in
}

func normalizeUpdate(u Update) Update {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		return &v
	}
	u.Name = trim(u.Name)
	u.Email = trim(u.Email)
	if u.Email != nil {
		lower := strings.ToLower(*u.Email)
		u.Email = &lower
	}
	u.Phone = trim(u.Phone)
	u.EmergencyContactNumber = trim(u.EmergencyContactNumber)
	u.PrimaryPhysician = trim(u.PrimaryPhysician)
	return u
}
