package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/LoickBck/MediciNet/internal/appointment"
)

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), appointment.CreateAppointmentInput{
			UserID:           req.UserID,
			PatientID:        req.PatientID,
			PatientName:      req.PatientName,
			PrimaryPhysician: req.PrimaryPhysician,
			Schedule:         req.Schedule,
			Reason:           req.Reason,
			Note:             req.Note,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func dashboardHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.Dashboard(r.Context())
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toDashboardResponse(*d))
	}
}

func scheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req ScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		transition(w, r, svc, id, req.UserID, appointment.ScheduleFields{
			PrimaryPhysician: req.PrimaryPhysician,
			Schedule:         req.Schedule,
		})
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req CancelRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		transition(w, r, svc, id, req.UserID, appointment.CancelFields{
			CancellationReason: req.CancellationReason,
		})
	}
}

func transition(w http.ResponseWriter, r *http.Request, svc AppointmentService, id uuid.UUID, userID string, fields appointment.TransitionFields) {
	userID, err := recipientFor(r.Context(), svc, id, userID)
	if err != nil {
		handleAppointmentError(w, err)
		return
	}

	appt, err := svc.Transition(r.Context(), id, userID, fields)
	if err != nil {
		handleAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

// recipientFor falls back to the appointment owner when the request names no
// user to notify.
func recipientFor(ctx context.Context, svc AppointmentService, id uuid.UUID, userID string) (string, error) {
	if userID != "" {
		return userID, nil
	}
	appt, err := svc.GetAppointment(ctx, id)
	if err != nil {
		return "", err
	}
	return appt.UserID, nil
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	var vErr *appointment.ValidationError
	var sErr *appointment.StorageError

	switch {
	case errors.As(err, &vErr):
		writeFieldErrors(w, vErr.FieldErrors)
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrEmptyPatch):
		writeError(w, http.StatusBadRequest, "empty_update", err.Error())
	case errors.Is(err, appointment.ErrInvariantViolation):
		writeError(w, http.StatusInternalServerError, "invariant_violation", "stored appointments are inconsistent")
	case errors.As(err, &sErr):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "appointment storage is unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
