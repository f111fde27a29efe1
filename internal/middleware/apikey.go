package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/models"

	"github.com/ternarybob/arbor"
)

const invalidAPIKeyMessage = "Invalid API key"

// APIKey rejects requests whose header does not carry one of keys. The
// rejection happens before next runs, so no downstream work is attempted.
// With no keys configured every request is rejected.
func APIKey(header string, keys []string, logger arbor.ILogger) func(http.HandlerFunc) http.HandlerFunc {
	accepted := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			accepted = append(accepted, []byte(k))
		}
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !validKey(accepted, r.Header.Get(header)) {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("Rejected request with missing or invalid API key")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(models.NewErrorEnvelope(
					common.CodeUnauthorized, invalidAPIKeyMessage, http.StatusUnauthorized))
				return
			}
			next(w, r)
		}
	}
}

// validKey compares against every key in constant time.
func validKey(accepted [][]byte, presented string) bool {
	if presented == "" {
		return false
	}
	candidate := []byte(presented)
	match := 0
	for _, k := range accepted {
		match |= subtle.ConstantTimeCompare(k, candidate)
	}
	return match == 1
}
