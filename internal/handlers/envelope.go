package handlers

import (
	"encoding/json"
	"net/http"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/models"

	"github.com/ternarybob/arbor"
)

const redactedMessage = "Internal server error"

// WriteEnvelope writes env as the JSON response with the given status line.
func WriteEnvelope(w http.ResponseWriter, status int, env models.ResponseEnvelope, logger arbor.ILogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil && logger != nil {
		logger.Error().Err(err).Msg("Failed to encode response envelope")
	}
}

// WriteError collapses err into an error envelope. Errors that are not
// ServiceErrors become INTERNAL_SERVER_ERROR carrying their message unless
// redact is set.
func WriteError(w http.ResponseWriter, err error, redact bool, logger arbor.ILogger) {
	se := common.AsServiceError(err)

	message := se.Message
	if redact && se.Kind == common.ErrorKindInternal {
		message = redactedMessage
	}

	if logger != nil {
		logger.Warn().
			Str("code", se.Code).
			Int("status", se.Status).
			Err(err).
			Msg("Request failed")
	}

	WriteEnvelope(w, se.ResponseStatus(), models.NewErrorEnvelope(se.Code, message, se.Status), logger)
}
