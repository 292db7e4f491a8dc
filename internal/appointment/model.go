package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Valid reports whether s is one of the three known statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID                 uuid.UUID
	UserID             string
	PatientID          string
	PatientName        string
	PrimaryPhysician   string
	Schedule           time.Time
	Reason             string
	Note               string
	Status             AppointmentStatus
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewAppointment is the input to Store.Create. ID and timestamps are assigned
// by the store.
type NewAppointment struct {
	UserID           string
	PatientID        string
	PatientName      string
	PrimaryPhysician string
	Schedule         time.Time
	Reason           string
	Note             string
	Status           AppointmentStatus
}

// Patch carries the fields Store.Update merges into a record. Nil fields are
// left untouched; a non-nil empty CancellationReason clears it.
type Patch struct {
	Status             *AppointmentStatus
	PrimaryPhysician   *string
	Schedule           *time.Time
	CancellationReason *string
}

func (p Patch) empty() bool {
	return p.Status == nil && p.PrimaryPhysician == nil && p.Schedule == nil && p.CancellationReason == nil
}

// apply merges p into a copy of a.
func (p Patch) apply(a Appointment) Appointment {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.PrimaryPhysician != nil {
		a.PrimaryPhysician = *p.PrimaryPhysician
	}
	if p.Schedule != nil {
		a.Schedule = *p.Schedule
	}
	if p.CancellationReason != nil {
		a.CancellationReason = *p.CancellationReason
	}
	return a
}

// sameState reports whether b stores nothing a does not. Updates that merge to
// the same state skip the write and keep UpdatedAt.
func sameState(a, b Appointment) bool {
	return a.Status == b.Status &&
		a.PrimaryPhysician == b.PrimaryPhysician &&
		a.Schedule.Equal(b.Schedule) &&
		a.CancellationReason == b.CancellationReason
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Counts is the dashboard aggregate over one appointment snapshot.
type Counts struct {
	Total          int `json:"total_count"`
	ScheduledCount int `json:"scheduled_count"`
	PendingCount   int `json:"pending_count"`
	CancelledCount int `json:"cancelled_count"`
}

// Dashboard pairs a listRecent snapshot with the counts derived from it.
type Dashboard struct {
	Counts
	Appointments []Appointment
}
