package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/models"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

const filePollInterval = 2 * time.Second

// GeminiBackend implements the reasoning backend and the transcriber on the
// Gemini API.
type GeminiBackend struct {
	client *genai.Client
	config *common.GeminiConfig
	logger arbor.ILogger
}

func NewGeminiBackend(ctx context.Context, cfg *common.GeminiConfig, logger arbor.ILogger) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiBackend{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

func (g *GeminiBackend) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(g.config.Timeout)*time.Second)
}

// Generate asks the analysis model for JSON matching req.ResponseSchema.
func (g *GeminiBackend) Generate(ctx context.Context, req models.GenerationRequest) ([]byte, error) {
	ctx, cancel := g.timeout(ctx)
	defer cancel()

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenAISchema(req.ResponseSchema),
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.AnalysisModel, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, classifyGenAIError(err)
	}

	text, err := responseText(resp, "Reasoning")
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

// Transcribe uploads the audio file and asks the transcription model for its
// text. The uploaded file is deleted afterwards.
func (g *GeminiBackend) Transcribe(ctx context.Context, path, mimeType string) (string, error) {
	ctx, cancel := g.timeout(ctx)
	defer cancel()

	file, err := g.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return "", classifyGenAIError(err)
	}
	defer func() {
		if _, err := g.client.Files.Delete(context.Background(), file.Name, nil); err != nil {
			g.logger.Warn().Err(err).Str("file", file.Name).Msg("Failed to delete uploaded audio")
		}
	}()

	file, err = g.waitForFile(ctx, file)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(g.config.TranscriptionPrompt),
		genai.NewPartFromURI(file.URI, file.MIMEType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.TranscriptionModel, contents, nil)
	if err != nil {
		return "", classifyGenAIError(err)
	}

	return responseText(resp, "Transcription")
}

// responseText rejects a response without any text.
func responseText(resp *genai.GenerateContentResponse, backend string) (string, error) {
	var text string
	if resp != nil {
		text = resp.Text()
	}
	if strings.TrimSpace(text) == "" {
		return "", common.NewBackendError(backend + " backend returned an empty response")
	}
	return text, nil
}

// waitForFile polls until an upload leaves the PROCESSING state.
func (g *GeminiBackend) waitForFile(ctx context.Context, file *genai.File) (*genai.File, error) {
	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return nil, common.NewBackendError("Timed out waiting for uploaded audio").WithCause(ctx.Err())
		case <-time.After(filePollInterval):
		}

		next, err := g.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, classifyGenAIError(err)
		}
		file = next
	}

	if file.State == genai.FileStateFailed {
		return nil, common.NewBackendError("Uploaded audio could not be processed")
	}
	return file, nil
}

// classifyGenAIError maps API quota errors to RATE_LIMITED and everything else
// to BACKEND_ERROR.
func classifyGenAIError(err error) *common.ServiceError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyAPIError(*apiErrPtr, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewBackendError("Reasoning backend timed out").WithCause(err)
	}
	return common.NewBackendError(err.Error()).WithCause(err)
}

func classifyAPIError(apiErr genai.APIError, cause error) *common.ServiceError {
	if apiErr.Code == http.StatusTooManyRequests {
		return common.NewRateLimitedError(fmt.Sprintf("Reasoning backend rate limited: %s", apiErr.Message)).WithCause(cause)
	}
	return common.NewBackendError(fmt.Sprintf("Reasoning backend error %d: %s", apiErr.Code, apiErr.Message)).
		WithContext("status", apiErr.Status).
		WithCause(cause)
}

// toGenAISchema converts the neutral schema to the Gemini representation.
func toGenAISchema(s *models.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:             genai.Type(s.Type),
		Description:      s.Description,
		Enum:             s.Enum,
		Items:            toGenAISchema(s.Items),
		Required:         s.Required,
		PropertyOrdering: s.PropertyOrdering,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenAISchema(prop)
		}
	}
	if len(s.Enum) > 0 && out.Format == "" {
		out.Format = "enum"
	}
	return out
}
