package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RequestHasSecret accepts the shared secret in X-Cron-Secret or as a Bearer token
func RequestHasSecret(r *http.Request, secret string) bool {
	if ValidSecret(r.Header.Get(SecretHeader), secret) {
		return true
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return ValidSecret(token, secret)
	}
	return false
}

// RequireSecret rejects requests that do not carry the shared secret
func RequireSecret(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !RequestHasSecret(r, secret) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
