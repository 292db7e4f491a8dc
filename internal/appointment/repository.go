package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store owns the durable state of appointment records.
type Store interface {
	// Create assigns a fresh ID and creation timestamp. An empty reason is a
	// *ValidationError and nothing is written.
	Create(ctx context.Context, in NewAppointment) (*Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update merges p into the record in a single write. A missing record is
	// ErrAppointmentNotFound. When the merge changes nothing the stored record
	// is returned as is, UpdatedAt included.
	Update(ctx context.Context, id uuid.UUID, p Patch) (*Appointment, error)
	// ListRecent returns every appointment, newest first. Each call reads a
	// fresh snapshot.
	ListRecent(ctx context.Context) ([]Appointment, error)
}

// EventRecorder receives appointment lifecycle events. Failures are logged by
// the caller and never fail the operation.
type EventRecorder interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// validateNew is the store-level write guard shared by every Store.
func validateNew(in NewAppointment) error {
	v := &ValidationError{}
	if in.Reason == "" {
		v.add("reason", "is required")
	}
	if !in.Status.Valid() {
		v.add("status", "must be pending, scheduled or cancelled")
	}
	return v.errOrNil()
}

// validateMerged checks a record after a patch has been applied and before it
// is written back.
func validateMerged(a Appointment) error {
	v := &ValidationError{}
	if !a.Status.Valid() {
		v.add("status", "must be pending, scheduled or cancelled")
	}
	switch {
	case a.Status == StatusCancelled && a.CancellationReason == "":
		v.add("cancellation_reason", "is required when cancelled")
	case a.Status != StatusCancelled && a.CancellationReason != "":
		v.add("cancellation_reason", "must be empty unless cancelled")
	}
	return v.errOrNil()
}

type storeOptions struct {
	now   func() time.Time
	newID func() uuid.UUID
}

// StoreOption customises a Store implementation.
type StoreOption func(*storeOptions)

// WithClock overrides the time source used for created_at and updated_at.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides how new appointment IDs are generated.
func WithIDGenerator(fn func() uuid.UUID) StoreOption {
	return func(o *storeOptions) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func buildStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now, newID: uuid.New}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
