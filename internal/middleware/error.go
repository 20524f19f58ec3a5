package middleware

import (
	"encoding/json"
	"net/http"
)

const (
	codeRateLimited     = "rate_limited"
	codePayloadTooLarge = "payload_too_large"
)

// writeError mirrors httpx.WriteError, which imports this package for the
// request id and so cannot be used here.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	body := map[string]any{"code": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":     body,
		"requestId": RequestIDFromContext(r.Context()),
	})
}
