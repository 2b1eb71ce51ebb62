package httptransport

import (
	"encoding/json"
	"net/http"

	apperrors "evidence-job-service/internal/errors"
)

// apiError is the wire shape for failures: a machine-readable code plus a
// human-readable message.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code apperrors.ErrorCode, msg string) {
	writeJSON(w, status, apiError{Code: string(code), Message: msg})
}

// writeAppError maps an application error onto an HTTP status, preserving its
// reason code for the caller.
func writeAppError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeUnsupportedModule, apperrors.ErrCodeEvidenceRequired:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeConflict:
		status = http.StatusConflict
	case apperrors.ErrCodeQueueUnavailable:
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Internal detail stays in logs, not responses.
		msg = "internal error"
	}
	writeErr(w, status, code, msg)
}
