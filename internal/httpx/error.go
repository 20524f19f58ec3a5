package httpx

import (
	"net/http"

	"github.com/fieldops-platform/apps/api/internal/middleware"
)

// Error codes shared by several handlers.
const (
	CodeInternal   = "internal_error"
	CodeValidation = "validation_error"
	CodeInvalidID  = "invalid_id"
)

type ErrorEnvelope struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func NewErrorEnvelope(requestID, code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{
		Error:     ErrorBody{Code: code, Message: message, Details: details},
		RequestID: requestID,
	}
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteJSON(w, status, NewErrorEnvelope(middleware.RequestIDFromContext(r.Context()), code, message, details))
}

// WriteInternalError reports a 500 without leaking the underlying error.
func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, CodeInternal, message, nil)
}
