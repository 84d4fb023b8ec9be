// Package auth implements the X-Council-Key API key check.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// publicPaths never require authentication.
var publicPaths = map[string]bool{
	"/":             true,
	"/health":       true,
	"/docs":         true,
	"/openapi.json": true,
}

// Middleware validates the X-Council-Key header on protected routes. When no
// key is configured (local development) the check is disabled entirely.
// Missing key is 401, wrong key is 403.
func Middleware(apiKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-Council-Key")
			if provided == "" {
				logger.Warn("missing X-Council-Key header",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				deny(w, http.StatusUnauthorized, "Missing X-Council-Key header")
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logger.Warn("invalid api key",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				deny(w, http.StatusForbidden, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": detail})
}
