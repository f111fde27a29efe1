package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		header   string
		wantCode int
	}{
		{"valid key", []string{"alpha", "beta"}, "beta", http.StatusOK},
		{"missing header", []string{"alpha"}, "", http.StatusUnauthorized},
		{"wrong key", []string{"alpha"}, "alphA", http.StatusUnauthorized},
		{"prefix of key", []string{"alpha"}, "alp", http.StatusUnauthorized},
		{"no keys configured", nil, "alpha", http.StatusUnauthorized},
		{"only empty keys configured", []string{""}, "", http.StatusUnauthorized},
		{"configured key with whitespace", []string{" alpha\t"}, "alpha", http.StatusOK},
		{"only blank keys configured", []string{"  "}, "  ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := APIKey("x-api-key", tt.keys, arbor.NewLogger())(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze-transcription", nil)
			if tt.header != "" {
				req.Header.Set("X-Api-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantCode == http.StatusOK, called)

			if tt.wantCode == http.StatusUnauthorized {
				var env models.ResponseEnvelope
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
				assert.False(t, env.Success)
				assert.Equal(t, common.CodeUnauthorized, env.Code)
				assert.Equal(t, "Invalid API key", env.Message)
				assert.Equal(t, http.StatusUnauthorized, env.StatusCode)
			}
		})
	}
}
