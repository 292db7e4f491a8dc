package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/LoickBck/MediciNet/internal/blob"
	"github.com/LoickBck/MediciNet/internal/patient"
)

const maxUploadBytes = 10 << 20

func listPhysiciansHandler(physicians PhysicianLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, physicians.All())
	}
}

// registerPatientHandler accepts either a JSON body or a multipart form with
// a "payload" JSON field and an optional "identification_document" file.
func registerPatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req patient.Registration

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			doc, ok := readMultipartRegistration(w, r, &req)
			if !ok {
				return
			}
			req.IdentificationDocument = doc
		} else if !decodeBody(w, r, &req) {
			return
		}

		p, created, err := svc.Register(r.Context(), req)
		if err != nil {
			handlePatientError(w, err)
			return
		}

		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		writeJSON(w, status, p)
	}
}

func readMultipartRegistration(w http.ResponseWriter, r *http.Request, req *patient.Registration) (*blob.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxJSONBody)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "could not parse multipart form")
		return nil, false
	}

	if !readJSON(w, strings.NewReader(r.FormValue("payload")), req) {
		return nil, false
	}

	file, header, err := r.FormFile("identification_document")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "could not read identification_document")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "could not read identification_document")
		return nil, false
	}

	return &blob.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

func getPatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.GetByUserID(r.Context(), chi.URLParam(r, "userId"))
		if err != nil {
			handlePatientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func updatePatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req patient.Update
		if !decodeBody(w, r, &req) {
			return
		}

		p, err := svc.Update(r.Context(), chi.URLParam(r, "userId"), req)
		if err != nil {
			handlePatientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func listPatientsHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := svc.List(r.Context())
		if err != nil {
			handlePatientError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, patients)
	}
}

func deletePatientHandler(svc PatientService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteByUserID(r.Context(), chi.URLParam(r, "userId")); err != nil {
			handlePatientError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePatientError(w http.ResponseWriter, err error) {
	var vErr *patient.ValidationError

	switch {
	case errors.As(err, &vErr):
		writeFieldErrors(w, vErr.FieldErrors)
	case errors.Is(err, patient.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, patient.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "patient_exists", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
