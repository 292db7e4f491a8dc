package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/LoickBck/MediciNet/internal/appointment"
)

type CreateAppointmentRequest struct {
	UserID           string    `json:"user_id" validate:"required"`
	PatientID        string    `json:"patient_id" validate:"required"`
	PatientName      string    `json:"patient_name"`
	PrimaryPhysician string    `json:"primary_physician" validate:"required"`
	Schedule         time.Time `json:"schedule" validate:"required"`
	Reason           string    `json:"reason" validate:"required"`
	Note             string    `json:"note"`
}

// ScheduleRequest and CancelRequest may omit user_id; the appointment owner
// is notified then.
type ScheduleRequest struct {
	UserID           string    `json:"user_id"`
	PrimaryPhysician string    `json:"primary_physician" validate:"required"`
	Schedule         time.Time `json:"schedule" validate:"required"`
}

type CancelRequest struct {
	UserID             string `json:"user_id"`
	CancellationReason string `json:"cancellation_reason" validate:"required"`
}

type AdminSessionRequest struct {
	Passkey string `json:"passkey" validate:"required"`
}

type AdminSessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	UserID             string    `json:"user_id"`
	PatientID          string    `json:"patient_id"`
	PatientName        string    `json:"patient_name,omitempty"`
	PrimaryPhysician   string    `json:"primary_physician"`
	Schedule           time.Time `json:"schedule"`
	Reason             string    `json:"reason"`
	Note               string    `json:"note,omitempty"`
	Status             string    `json:"status"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type DashboardResponse struct {
	appointment.Counts
	Documents []AppointmentResponse `json:"documents"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		UserID:             a.UserID,
		PatientID:          a.PatientID,
		PatientName:        a.PatientName,
		PrimaryPhysician:   a.PrimaryPhysician,
		Schedule:           a.Schedule,
		Reason:             a.Reason,
		Note:               a.Note,
		Status:             string(a.Status),
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toDashboardResponse(d appointment.Dashboard) DashboardResponse {
	return DashboardResponse{
		Counts: d.Counts,
		Documents: lo.Map(d.Appointments, func(a appointment.Appointment, _ int) AppointmentResponse {
			return toAppointmentResponse(a)
		}),
	}
}
