package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, now: time.Now}
}

const patientColumns = `
	id, user_id, name, email, phone, birth_date, gender, address, occupation,
	emergency_contact_name, emergency_contact_number, primary_physician,
	insurance_provider, insurance_policy_number, allergies, current_medication,
	family_medical_history, past_medical_history, identification_type,
	identification_number, identification_document_id, identification_document_url,
	privacy_consent, created_at, updated_at
`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p        Patient
		birth    *time.Time
		optional [8]*string
	)

	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Email, &p.Phone, &birth, &p.Gender, &p.Address, &p.Occupation,
		&p.EmergencyContactName, &p.EmergencyContactNumber, &p.PrimaryPhysician,
		&p.InsuranceProvider, &p.InsurancePolicyNumber,
		&optional[0], &optional[1], &optional[2], &optional[3],
		&optional[4], &optional[5], &optional[6], &optional[7],
		&p.PrivacyConsent, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.BirthDate = birth
	targets := []*string{
		&p.Allergies, &p.CurrentMedication, &p.FamilyMedicalHistory, &p.PastMedicalHistory,
		&p.IdentificationType, &p.IdentificationNumber, &p.IdentificationDocumentID, &p.IdentificationDocumentURL,
	}
	for i, v := range optional {
		if v != nil {
			*targets[i] = *v
		}
	}
	return &p, nil
}

func (r *PgRepository) Create(ctx context.Context, p Patient) (*Patient, error) {
	now := r.now()
	query := `
		INSERT INTO patients (
			id, user_id, name, email, phone, birth_date, gender, address, occupation,
			emergency_contact_name, emergency_contact_number, primary_physician,
			insurance_provider, insurance_policy_number, allergies, current_medication,
			family_medical_history, past_medical_history, identification_type,
			identification_number, identification_document_id, identification_document_url,
			privacy_consent, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $24)
		RETURNING ` + patientColumns

	row := r.pool.QueryRow(ctx, query,
		p.ID, p.UserID, p.Name, p.Email, p.Phone, p.BirthDate, p.Gender, p.Address, p.Occupation,
		p.EmergencyContactName, p.EmergencyContactNumber, p.PrimaryPhysician,
		p.InsuranceProvider, p.InsurancePolicyNumber,
		nullable(p.Allergies), nullable(p.CurrentMedication),
		nullable(p.FamilyMedicalHistory), nullable(p.PastMedicalHistory),
		nullable(p.IdentificationType), nullable(p.IdentificationNumber),
		nullable(p.IdentificationDocumentID), nullable(p.IdentificationDocumentURL),
		p.PrivacyConsent, now,
	)

	created, err := scanPatient(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetByUserID(ctx context.Context, userID string) (*Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE user_id = $1`
	return wrapLookup(scanPatient(r.pool.QueryRow(ctx, query, userID)))
}

func (r *PgRepository) FindByEmailPhone(ctx context.Context, email, phone string) (*Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE lower(email) = lower($1) AND phone = $2
		ORDER BY created_at
		LIMIT 1
	`
	return wrapLookup(scanPatient(r.pool.QueryRow(ctx, query, email, phone)))
}

func (r *PgRepository) List(ctx context.Context) ([]Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	patients := []Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return patients, nil
}

// Update uses COALESCE so that a NULL parameter keeps the stored value.
func (r *PgRepository) Update(ctx context.Context, userID string, u Update) (*Patient, error) {
	query := `
		UPDATE patients SET
			name                     = COALESCE($2, name),
			email                    = COALESCE($3, email),
			phone                    = COALESCE($4, phone),
			address                  = COALESCE($5, address),
			occupation               = COALESCE($6, occupation),
			emergency_contact_name   = COALESCE($7, emergency_contact_name),
			emergency_contact_number = COALESCE($8, emergency_contact_number),
			primary_physician        = COALESCE($9, primary_physician),
			insurance_provider       = COALESCE($10, insurance_provider),
			insurance_policy_number  = COALESCE($11, insurance_policy_number),
			allergies                = COALESCE($12, allergies),
			current_medication       = COALESCE($13, current_medication),
			family_medical_history   = COALESCE($14, family_medical_history),
			past_medical_history     = COALESCE($15, past_medical_history),
			updated_at               = $16
		WHERE user_id = $1
		RETURNING ` + patientColumns

	row := r.pool.QueryRow(ctx, query, userID,
		u.Name, u.Email, u.Phone, u.Address, u.Occupation,
		u.EmergencyContactName, u.EmergencyContactNumber, u.PrimaryPhysician,
		u.InsuranceProvider, u.InsurancePolicyNumber,
		u.Allergies, u.CurrentMedication, u.FamilyMedicalHistory, u.PastMedicalHistory,
		r.now(),
	)
	return wrapLookup(scanPatient(row))
}

func (r *PgRepository) DeleteByUserID(ctx context.Context, userID string) (*Patient, error) {
	query := `DELETE FROM patients WHERE user_id = $1 RETURNING ` + patientColumns
	return wrapLookup(scanPatient(r.pool.QueryRow(ctx, query, userID)))
}

func wrapLookup(p *Patient, err error) (*Patient, error) {
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("query patient: %w", err)
	}
	return p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
