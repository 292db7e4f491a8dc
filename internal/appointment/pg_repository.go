package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `id, user_id, patient_id, patient_name, primary_physician, schedule,
	reason, note, status, cancellation_reason, created_at, updated_at`

type PgStore struct {
	pool *pgxpool.Pool
	opts storeOptions
}

func NewPgStore(pool *pgxpool.Pool, opts ...StoreOption) *PgStore {
	return &PgStore{pool: pool, opts: buildStoreOptions(opts)}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var note, cancellationReason *string

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.PatientID,
		&a.PatientName,
		&a.PrimaryPhysician,
		&a.Schedule,
		&a.Reason,
		&note,
		&a.Status,
		&cancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if note != nil {
		a.Note = *note
	}
	if cancellationReason != nil {
		a.CancellationReason = *cancellationReason
	}
	return &a, nil
}

func (r *PgStore) Create(ctx context.Context, in NewAppointment) (*Appointment, error) {
	if err := validateNew(in); err != nil {
		return nil, err
	}

	id := r.opts.newID()
	now := r.opts.now().UTC()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, patient_id, patient_name, primary_physician, schedule,
		                          reason, note, status, cancellation_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, $10, $10)
		RETURNING `+appointmentColumns,
		id, in.UserID, in.PatientID, in.PatientName, in.PrimaryPhysician, in.Schedule,
		in.Reason, nullableString(in.Note), in.Status, now)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, storageErr("create appointment", err)
	}
	return a, nil
}

func (r *PgStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("get appointment", err)
	}
	return a, nil
}

// Update locks the row, merges the patch and writes every column back inside
// one transaction, so either the whole patch lands or nothing does. A patch
// that changes nothing leaves the row and its updated_at alone.
func (r *PgStore) Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error) {
	if p.empty() {
		return nil, ErrEmptyPatch
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin update", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
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

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    primary_physician = $3,
		    schedule = $4,
		    cancellation_reason = $5,
		    updated_at = $6
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, merged.Status, merged.PrimaryPhysician, merged.Schedule,
		nullableString(merged.CancellationReason), r.opts.now().UTC()))
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("update appointment", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit update", err)
	}
	return updated, nil
}

func (r *PgStore) ListRecent(ctx context.Context) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, storageErr("list appointments", err)
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
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

func (r *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
