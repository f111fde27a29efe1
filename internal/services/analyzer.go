package services

import (
	"context"
	"errors"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/interfaces"
	"eye-of-horus/internal/models"

	"github.com/ternarybob/arbor"
)

// Analyzer turns a transcript and its sprint context into validated ticket
// actions.
type Analyzer struct {
	backend interfaces.ReasoningBackend
	prompts *PromptBuilder
	logger  arbor.ILogger
	now     func() time.Time
}

func NewAnalyzer(backend interfaces.ReasoningBackend, prompts *PromptBuilder, logger arbor.ILogger) *Analyzer {
	return &Analyzer{
		backend: backend,
		prompts: prompts,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the clock supplying today's date.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// Analyze returns the full list of actions or an error; never a partial list.
func (a *Analyzer) Analyze(ctx context.Context, input models.AnalysisInput) ([]models.TicketAction, error) {
	if a.backend == nil {
		return nil, common.NewNotConfiguredError("Reasoning backend is not configured")
	}

	items, err := models.BuildSprintItems(input.SprintRecords)
	if err != nil {
		var missing *models.OwnerMissingError
		if errors.As(err, &missing) {
			return nil, common.NewWrongInputError(err.Error()).
				WithContext("ticket_number", missing.TicketNumber).
				WithCause(err)
		}
		return nil, common.NewWrongInputError(err.Error()).WithCause(err)
	}

	prompt, err := a.prompts.Render(input.PodMembers, items, a.now(), input.Transcript)
	if err != nil {
		return nil, common.NewInternalError(err.Error()).WithCause(err)
	}

	a.logger.Debug().
		Int("tickets", len(items)).
		Int("members", len(input.PodMembers)).
		Int("prompt_bytes", len(prompt)).
		Msg("Prompt assembled")

	start := time.Now()
	raw, err := a.backend.Generate(ctx, models.GenerationRequest{
		SystemInstruction: a.prompts.SystemInstruction(),
		Prompt:            prompt,
		ResponseSchema:    models.TicketActionListSchema(),
	})
	if err != nil {
		a.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Reasoning backend call failed")
		var se *common.ServiceError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, common.NewBackendError(err.Error()).WithCause(err)
	}

	a.logger.Debug().Str("response", common.Truncate(string(raw), 500)).Msg("Reasoning backend responded")

	actions, err := models.ParseTicketActions(raw)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Reasoning backend response rejected")
		return nil, common.NewValidationError(err.Error()).WithCause(err)
	}

	models.ResolveTicketIDs(actions, models.TicketIndex(input.SprintRecords))

	a.logger.Info().
		Int("actions", len(actions)).
		Dur("elapsed", time.Since(start)).
		Msg("Transcript analysed")

	return actions, nil
}
