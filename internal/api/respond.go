package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxJSONBody = 1 << 20

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "validation_failed",
		Details: "one or more fields are invalid",
		Fields:  fields,
	})
}

// decodeJSON reads a JSON body into dst and runs its validate tags. It writes
// the error response itself and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst) && validateRequest(w, dst)
}

// decodeBody is decodeJSON without the tag validation, for inputs the
// service layer validates itself.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	return readJSON(w, http.MaxBytesReader(w, r.Body, maxJSONBody), dst)
}

func readJSON(w http.ResponseWriter, body io.Reader, dst any) bool {
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func validateRequest(w http.ResponseWriter, dst any) bool {
	err := requestValidator.Struct(dst)
	if err == nil {
		return true
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return false
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = describeTag(fe)
	}
	writeFieldErrors(w, fields)
	return false
}

func describeTag(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return "is required"
	}
	return fmt.Sprintf("failed %s check", fe.Tag())
}
