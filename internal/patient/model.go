package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/LoickBck/MediciNet/internal/blob"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

type Patient struct {
	ID                        uuid.UUID  `json:"id"`
	UserID                    string     `json:"user_id"`
	Name                      string     `json:"name"`
	Email                     string     `json:"email"`
	Phone                     string     `json:"phone"`
	BirthDate                 *time.Time `json:"birth_date,omitempty"`
	Gender                    Gender     `json:"gender"`
	Address                   string     `json:"address"`
	Occupation                string     `json:"occupation"`
	EmergencyContactName      string     `json:"emergency_contact_name"`
	EmergencyContactNumber    string     `json:"emergency_contact_number"`
	PrimaryPhysician          string     `json:"primary_physician"`
	InsuranceProvider         string     `json:"insurance_provider"`
	InsurancePolicyNumber     string     `json:"insurance_policy_number"`
	Allergies                 string     `json:"allergies,omitempty"`
	CurrentMedication         string     `json:"current_medication,omitempty"`
	FamilyMedicalHistory      string     `json:"family_medical_history,omitempty"`
	PastMedicalHistory        string     `json:"past_medical_history,omitempty"`
	IdentificationType        string     `json:"identification_type,omitempty"`
	IdentificationNumber      string     `json:"identification_number,omitempty"`
	IdentificationDocumentID  string     `json:"identification_document_id,omitempty"`
	IdentificationDocumentURL string     `json:"identification_document_url,omitempty"`
	PrivacyConsent            bool       `json:"privacy_consent"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

// Registration is the input of Service.Register.
type Registration struct {
	UserID                 string     `json:"user_id" validate:"required"`
	Name                   string     `json:"name" validate:"required,min=2,max=50"`
	Email                  string     `json:"email" validate:"required,email"`
	Phone                  string     `json:"phone" validate:"required,phone"`
	BirthDate              *time.Time `json:"birth_date"`
	Gender                 Gender     `json:"gender" validate:"required,oneof=male female other"`
	Address                string     `json:"address" validate:"max=500"`
	Occupation             string     `json:"occupation" validate:"max=500"`
	EmergencyContactName   string     `json:"emergency_contact_name" validate:"max=50"`
	EmergencyContactNumber string     `json:"emergency_contact_number" validate:"omitempty,phone"`
	PrimaryPhysician       string     `json:"primary_physician" validate:"required"`
	InsuranceProvider      string     `json:"insurance_provider" validate:"max=500"`
	InsurancePolicyNumber  string     `json:"insurance_policy_number" validate:"max=500"`
	Allergies              string     `json:"allergies" validate:"max=1000"`
	CurrentMedication      string     `json:"current_medication" validate:"max=1000"`
	FamilyMedicalHistory   string     `json:"family_medical_history" validate:"max=1000"`
	PastMedicalHistory     string     `json:"past_medical_history" validate:"max=1000"`
	IdentificationType     string     `json:"identification_type" validate:"max=100"`
	IdentificationNumber   string     `json:"identification_number" validate:"max=100"`
	PrivacyConsent         bool       `json:"privacy_consent"`

	IdentificationDocument *blob.File `json:"-"`
}

// Update carries the fields to change; nil leaves a field untouched.
type Update struct {
	Name                   *string `json:"name" validate:"omitempty,min=2,max=50"`
	Email                  *string `json:"email" validate:"omitempty,email"`
	Phone                  *string `json:"phone" validate:"omitempty,phone"`
	Address                *string `json:"address" validate:"omitempty,max=500"`
	Occupation             *string `json:"occupation" validate:"omitempty,max=500"`
	EmergencyContactName   *string `json:"emergency_contact_name" validate:"omitempty,max=50"`
	EmergencyContactNumber *string `json:"emergency_contact_number" validate:"omitempty,phone"`
	PrimaryPhysician       *string `json:"primary_physician"`
	InsuranceProvider      *string `json:"insurance_provider" validate:"omitempty,max=500"`
	InsurancePolicyNumber  *string `json:"insurance_policy_number" validate:"omitempty,max=500"`
	Allergies              *string `json:"allergies" validate:"omitempty,max=1000"`
	CurrentMedication      *string `json:"current_medication" validate:"omitempty,max=1000"`
	FamilyMedicalHistory   *string `json:"family_medical_history" validate:"omitempty,max=1000"`
	PastMedicalHistory     *string `json:"past_medical_history" validate:"omitempty,max=1000"`
}

func (u Update) empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil && u.Address == nil &&
		u.Occupation == nil && u.EmergencyContactName == nil && u.EmergencyContactNumber == nil &&
		u.PrimaryPhysician == nil && u.InsuranceProvider == nil && u.InsurancePolicyNumber == nil &&
		u.Allergies == nil && u.CurrentMedication == nil && u.FamilyMedicalHistory == nil &&
		u.PastMedicalHistory == nil
}

func (u Update) apply(p Patient) Patient {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.Name, u.Name)
	set(&p.Email, u.Email)
	set(&p.Phone, u.Phone)
	set(&p.Address, u.Address)
	set(&p.Occupation, u.Occupation)
	set(&p.EmergencyContactName, u.EmergencyContactName)
	set(&p.EmergencyContactNumber, u.EmergencyContactNumber)
	set(&p.PrimaryPhysician, u.PrimaryPhysician)
	set(&p.InsuranceProvider, u.InsuranceProvider)
	set(&p.InsurancePolicyNumber, u.InsurancePolicyNumber)
	set(&p.Allergies, u.Allergies)
	set(&p.CurrentMedication, u.CurrentMedication)
	set(&p.FamilyMedicalHistory, u.FamilyMedicalHistory)
	set(&p.PastMedicalHistory, u.PastMedicalHistory)
	return p
}
