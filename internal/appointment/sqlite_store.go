package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS appointments (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	patient_id          TEXT NOT NULL,
	patient_name        TEXT NOT NULL DEFAULT '',
	primary_physician   TEXT NOT NULL,
	schedule            INTEGER NOT NULL,
	reason              TEXT NOT NULL,
	note                TEXT,
	status              TEXT NOT NULL,
	cancellation_reason TEXT,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_appointments_created_at ON appointments (created_at DESC);
`

// SQLiteStore keeps appointments in an embedded SQLite database. Timestamps are
// stored as unix nanoseconds so ordering is numeric.
type SQLiteStore struct {
	db   *sql.DB
	opts storeOptions
}

func NewSQLiteStore(db *sql.DB, opts ...StoreOption) *SQLiteStore {
	return &SQLiteStore{db: db, opts: buildStoreOptions(opts)}
}

// Migrate creates the appointments table if needed.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	return nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAppointment(row sqlScanner) (*Appointment, error) {
	var (
		a                  Appointment
		id                 string
		note, cancellation sql.NullString
		schedule, created  int64
		updated            int64
	)

	err := row.Scan(
		&id,
		&a.UserID,
		&a.PatientID,
		&a.PatientName,
		&a.PrimaryPhysician,
		&schedule,
		&a.Reason,
		&note,
		&a.Status,
		&cancellation,
		&created,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse appointment id %q: %w", id, err)
	}
	a.ID = parsed
	a.Note = note.String
	a.CancellationReason = cancellation.String
	a.Schedule = time.Unix(0, schedule).UTC()
	a.CreatedAt = time.Unix(0, created).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	return &a, nil
}

func (s *SQLiteStore) Create(ctx context.Context, in NewAppointment) (*Appointment, error) {
	if err := validateNew(in); err != nil {
		return nil, err
	}

	a := Appointment{
		ID:               s.opts.newID(),
		UserID:           in.UserID,
		PatientID:        in.PatientID,
		PatientName:      in.PatientName,
		PrimaryPhysician: in.PrimaryPhysician,
		Schedule:         in.Schedule.UTC(),
		Reason:           in.Reason,
		Note:             in.Note,
		Status:           in.Status,
	}
	now := s.opts.now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (id, user_id, patient_id, patient_name, primary_physician, schedule,
		                          reason, note, status, cancellation_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, a.ID.String(), a.UserID, a.PatientID, a.PatientName, a.PrimaryPhysician, a.Schedule.UnixNano(),
		a.Reason, nullString(a.Note), string(a.Status), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, storageErr("create appointment", err)
	}
	return &a, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = ?
	`, id.String())

	a, err := scanSQLiteAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("get appointment", err)
	}
	return a, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error) {
	if p.empty() {
		return nil, ErrEmptyPatch
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin update", err)
	}
	defer tx.Rollback()

	current, err := scanSQLiteAppointment(tx.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = ?
	`, id.String()))
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("load appointment", err)
	}

	merged := p.apply(*current)
	if err := validateMerged(merged); err != nil {
		return nil, err
	}
	if sameState(*current, merged) {
		return current, nil
	}
	merged.Schedule = merged.Schedule.UTC()
	merged.UpdatedAt = s.opts.now().UTC()

	res, err := tx.ExecContext(ctx, `
		UPDATE appointments
		SET status = ?,
		    primary_physician = ?,
		    schedule = ?,
		    cancellation_reason = ?,
		    updated_at = ?
		WHERE id = ?
	`, string(merged.Status), merged.PrimaryPhysician, merged.Schedule.UnixNano(),
		nullString(merged.CancellationReason), merged.UpdatedAt.UnixNano(), id.String())
	if err != nil {
		return nil, storageErr("update appointment", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrAppointmentNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit update", err)
	}
	return &merged, nil
}

func (s *SQLiteStore) ListRecent(ctx context.Context) ([]Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, storageErr("list appointments", err)
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanSQLiteAppointment(rows)
		if err != nil {
			return nil, storageErr("scan appointment", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list appointments", err)
	}
	return result, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
