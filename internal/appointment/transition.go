package appointment

import (
	"strings"
	"time"
)

type TransitionKind string

const (
	KindSchedule TransitionKind = "schedule"
	KindCancel   TransitionKind = "cancel"
)

// TransitionFields is implemented only by ScheduleFields and CancelFields.
type TransitionFields interface {
	Kind() TransitionKind
	validate(physicians PhysicianDirectory) error
	patch() Patch
}

// ScheduleFields moves an appointment to scheduled, from any status.
type ScheduleFields struct {
	PrimaryPhysician string
	Schedule         time.Time
}

func (ScheduleFields) Kind() TransitionKind { return KindSchedule }

func (f ScheduleFields) validate(physicians PhysicianDirectory) error {
	v := &ValidationError{}
	validatePhysician(v, physicians, f.PrimaryPhysician)
	if f.Schedule.IsZero() {
		v.add("schedule", "is required")
	}
	return v.errOrNil()
}

func (f ScheduleFields) patch() Patch {
	status := StatusScheduled
	physician := strings.TrimSpace(f.PrimaryPhysician)
	schedule := f.Schedule
	cleared := ""
	return Patch{
		Status:             &status,
		PrimaryPhysician:   &physician,
		Schedule:           &schedule,
		CancellationReason: &cleared,
	}
}

// CancelFields moves an appointment to cancelled, from any status.
type CancelFields struct {
	CancellationReason string
}

func (CancelFields) Kind() TransitionKind { return KindCancel }

func (f CancelFields) validate(PhysicianDirectory) error {
	v := &ValidationError{}
	if strings.TrimSpace(f.CancellationReason) == "" {
		v.add("cancellation_reason", "is required")
	}
	return v.errOrNil()
}

func (f CancelFields) patch() Patch {
	status := StatusCancelled
	reason := strings.TrimSpace(f.CancellationReason)
	return Patch{
		Status:             &status,
		CancellationReason: &reason,
	}
}

// PhysicianDirectory answers whether a physician belongs to the roster.
type PhysicianDirectory interface {
	Contains(name string) bool
}

func validatePhysician(v *ValidationError, physicians PhysicianDirectory, name string) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		v.add("primary_physician", "is required")
	case physicians != nil && !physicians.Contains(name):
		v.add("primary_physician", "is not on the roster")
	}
}
