package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

type APIError struct {
	Error  string            `json:"error"`
	Code   int               `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeMultipartError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSONError(w, "uploaded file exceeds maximum allowed size", http.StatusRequestEntityTooLarge)
		return
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "too large"):
		writeJSONError(w, "uploaded file exceeds maximum allowed size", http.StatusRequestEntityTooLarge)

	case strings.Contains(msg, "isn't multipart/form-data"):
		writeJSONError(w, "invalid content type, expected multipart/form-data", http.StatusBadRequest)

	default:
		writeJSONError(w, "malformed multipart request", http.StatusBadRequest)
	}
}

// parseIntDefault returns def for an empty value and records a field error
// for a value that is not an integer.
func parseIntDefault(s string, def int, field string, errs map[string]string) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		errs[field] = "must be an integer"
		return def
	}
	return v
}

func validationErrorsToMap(err error, errs map[string]string) map[string]string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			field := strings.ToLower(e.Field())
			switch e.Tag() {
			case "required":
				errs[field] = "is required"
			case "oneof":
				errs[field] = "must be one of: " + e.Param()
			case "gte", "lte":
				errs[field] = "out of allowed range"
			default:
				errs[field] = "invalid value"
			}
		}
	} else {
		errs["error"] = err.Error()
	}
	return errs
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, APIError{Error: message}, code)
}

func writeValidationError(w http.ResponseWriter, message string, fields map[string]string) {
	writeJSON(w, APIError{Error: message, Fields: fields}, http.StatusBadRequest)
}

var allowedMIMEs = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

func validateMimeType(mimeType string) error {
	if _, ok := allowedMIMEs[mimeType]; !ok {
		return fmt.Errorf("requested file upload with invalid type: %s", mimeType)
	}
	return nil
}
