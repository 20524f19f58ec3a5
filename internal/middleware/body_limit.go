package middleware

import (
	"net/http"
	"strings"
)

// BodyLimitOverride raises (or lowers) the cap for requests under PathPrefix.
// Prefixes match with or without the /api mount point.
type BodyLimitOverride struct {
	PathPrefix string
	MaxBytes   int64
}

type bodyLimits struct {
	defaultMax int64
	overrides  []BodyLimitOverride
}

func (b bodyLimits) limitFor(path string) int64 {
	apiPath := strings.TrimPrefix(path, "/api")
	for _, o := range b.overrides {
		if o.PathPrefix == "" || o.MaxBytes <= 0 {
			continue
		}
		if strings.HasPrefix(path, o.PathPrefix) || strings.HasPrefix(apiPath, o.PathPrefix) {
			return o.MaxBytes
		}
	}
	return b.defaultMax
}

// LimitBodyBytesWithOverrides caps request bodies. A declared Content-Length
// above the cap is refused up front with 413; otherwise reads past the cap fail.
func LimitBodyBytesWithOverrides(defaultMax int64, overrides []BodyLimitOverride) func(http.Handler) http.Handler {
	limits := bodyLimits{defaultMax: defaultMax, overrides: overrides}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			maxBytes := limits.limitFor(r.URL.Path)
			if maxBytes > 0 {
				if r.ContentLength > maxBytes {
					writeError(w, r, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body too large", map[string]int64{"maxBytes": maxBytes})
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
