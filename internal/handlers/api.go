package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/interfaces"
	"eye-of-horus/internal/models"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

const (
	maxRequestBody  = 10 << 20
	defaultRunLimit = 20
	maxRunLimit     = 200

	welcomeMessage       = "Welcome to Eye of Horus!"
	analysisSuccess      = "Transcription analysis completed successfully."
	audioSuccess         = "Audio processed successfully"
	recordingsSuccess    = "Recordings listed successfully"
	runsSuccess          = "Runs listed successfully"
	healthSuccess        = "Service is healthy"
	healthDegraded       = "Service is degraded"
	methodNotAllowedText = "Method not allowed"
)

// Dependencies are the collaborators the handlers call. Nil collaborators
// answer NOT_CONFIGURED.
type Dependencies struct {
	Config     *common.Config
	Storage    interfaces.Storage
	Fetcher    interfaces.Fetcher
	Analyzer   interfaces.TranscriptAnalyzer
	Audio      interfaces.AudioProcessor
	Recordings interfaces.RecordingSource
	Events     interfaces.EventPublisher
	Logger     arbor.ILogger
}

// APIHandlers contains all API endpoint handlers
type APIHandlers struct {
	deps      Dependencies
	logger    arbor.ILogger
	startTime time.Time
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Build     string    `json:"build"`
	Uptime    float64   `json:"uptime_seconds"`
	Services  struct {
		Database    bool `json:"database"`
		Reasoning   bool `json:"reasoning"`
		Audio       bool `json:"audio"`
		Recordings  bool `json:"recordings"`
		Downloading bool `json:"downloading"`
	} `json:"services"`
}

func NewAPIHandlers(deps Dependencies) *APIHandlers {
	return &APIHandlers{
		deps:      deps,
		logger:    deps.Logger,
		startTime: time.Now(),
	}
}

func (h *APIHandlers) redact() bool {
	return h.deps.Config != nil && h.deps.Config.Server.RedactInternalErrors
}

func (h *APIHandlers) writeError(w http.ResponseWriter, err error) {
	WriteError(w, err, h.redact(), h.logger)
}

func (h *APIHandlers) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteEnvelope(w, http.StatusMethodNotAllowed,
		models.NewErrorEnvelope(common.CodeMethodNotAllowed, methodNotAllowedText, http.StatusMethodNotAllowed), h.logger)
	return false
}

func (h *APIHandlers) publish(eventType string, data interface{}) {
	if h.deps.Events != nil {
		h.deps.Events.Publish(eventType, data)
	}
}

func (h *APIHandlers) recordRun(run *models.RunRecord, err error) {
	run.DurationMS = time.Since(run.StartedAt).Milliseconds()
	if err != nil {
		run.Code = common.AsServiceError(err).Code
	} else {
		run.Code = common.CodeSuccess
		run.Success = true
	}

	if h.deps.Storage == nil {
		return
	}
	if serr := h.deps.Storage.SaveRun(run); serr != nil {
		h.logger.Warn().Err(serr).Str("run_id", run.ID).Msg("Failed to record run")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return common.NewWrongInputError(fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return common.NewWrongInputError("Request body is empty")
		}
		return common.NewWrongInputError(fmt.Sprintf("Invalid request body: %v", err)).WithCause(err)
	}
	return nil
}

// RootHandler answers GET / with the welcome message.
func (h *APIHandlers) RootHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodGet) {
		return
	}
	WriteEnvelope(w, http.StatusOK,
		models.NewSuccessEnvelope(welcomeMessage, map[string]string{"message": welcomeMessage}), h.logger)
}

// AnalyzeTranscriptHandler downloads a transcript and returns the proposed
// ticket actions.
func (h *APIHandlers) AnalyzeTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodPost) {
		return
	}

	run := &models.RunRecord{ID: uuid.NewString(), Kind: models.RunKindAnalysis, StartedAt: time.Now().UTC()}
	actions, err := h.analyze(w, r, run)
	h.recordRun(run, err)

	if err != nil {
		h.publish(models.EventAnalysisFailed, map[string]interface{}{"run_id": run.ID, "code": run.Code})
		h.writeError(w, err)
		return
	}

	h.publish(models.EventAnalysisCompleted, map[string]interface{}{"run_id": run.ID, "actions": len(actions)})
	WriteEnvelope(w, http.StatusOK, models.NewSuccessEnvelope(analysisSuccess, actions), h.logger)
}

func (h *APIHandlers) analyze(w http.ResponseWriter, r *http.Request, run *models.RunRecord) ([]models.TicketAction, error) {
	var req models.AnalyzeTranscriptRequest
	if err := decodeBody(w, r, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, common.NewWrongInputError(err.Error())
	}
	if h.deps.Fetcher == nil {
		return nil, common.NewNotConfiguredError("Transcript downloader is not configured")
	}
	if h.deps.Analyzer == nil {
		return nil, common.NewNotConfiguredError("Reasoning backend is not configured")
	}

	h.publish(models.EventAnalysisStarted, map[string]interface{}{
		"run_id":  run.ID,
		"tickets": len(req.SprintDetails),
	})

	timeout := time.Duration(h.deps.Config.Download.TranscriptTimeout) * time.Second
	download, err := h.deps.Fetcher.Fetch(r.Context(), req.TranscriptURL, timeout)
	if err != nil {
		se := common.AsServiceError(err)
		if se.Code == common.CodeHTTPError {
			// Transcript download failures answer 400 while the envelope keeps the upstream status.
			se.WithHTTPStatus(http.StatusBadRequest)
		}
		return nil, se
	}

	transcript, err := common.TranscriptText(download.Data, download.ContentType)
	if err != nil {
		return nil, err
	}

	actions, err := h.deps.Analyzer.Analyze(r.Context(), models.AnalysisInput{
		Transcript:    transcript,
		PodMembers:    req.PodMembers,
		SprintRecords: req.SprintDetails,
	})
	if err != nil {
		return nil, err
	}
	run.ActionCount = len(actions)
	return actions, nil
}

// ProcessAudioHandler transcribes a recording and returns a presigned URL of
// the stored transcript.
func (h *APIHandlers) ProcessAudioHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodPost) {
		return
	}

	run := &models.RunRecord{ID: uuid.NewString(), Kind: models.RunKindAudio, StartedAt: time.Now().UTC()}
	signedURL, err := h.processAudio(w, r, run)
	run.S3URL = signedURL
	h.recordRun(run, err)

	if err != nil {
		h.publish(models.EventAudioFailed, map[string]interface{}{"run_id": run.ID, "log_id": run.LogID, "code": run.Code})
		h.writeError(w, err)
		return
	}

	h.publish(models.EventAudioCompleted, map[string]interface{}{"run_id": run.ID, "log_id": run.LogID})
	env := models.NewSuccessEnvelope(audioSuccess, nil)
	env.S3URL = signedURL
	WriteEnvelope(w, http.StatusOK, env, h.logger)
}

func (h *APIHandlers) processAudio(w http.ResponseWriter, r *http.Request, run *models.RunRecord) (string, error) {
	var req models.AudioProcessRequest
	if err := decodeBody(w, r, &req); err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", common.NewWrongInputError(err.Error())
	}
	if h.deps.Audio == nil {
		return "", common.NewNotConfiguredError("Audio processing is not configured")
	}

	run.LogID = req.LogID
	h.publish(models.EventAudioStarted, map[string]interface{}{"run_id": run.ID, "log_id": req.LogID})

	return h.deps.Audio.Process(r.Context(), req)
}

// RecordingsHandler lists recordings of the configured Drive folder, or of
// the folder given by ?folder_id.
func (h *APIHandlers) RecordingsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodGet) {
		return
	}
	if h.deps.Recordings == nil {
		h.writeError(w, common.NewNotConfiguredError("Drive recordings are not configured"))
		return
	}

	folderID := r.URL.Query().Get("folder_id")
	if folderID == "" {
		var err error
		folderID, err = h.deps.Recordings.FindFolder(r.Context(), h.deps.Config.Drive.RecordingsFolder)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	recordings, err := h.deps.Recordings.ListRecordings(r.Context(), folderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteEnvelope(w, http.StatusOK, models.NewSuccessEnvelope(recordingsSuccess, recordings), h.logger)
}

// RunsHandler returns the most recent run audit records.
func (h *APIHandlers) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodGet) {
		return
	}
	if h.deps.Storage == nil {
		h.writeError(w, common.NewNotConfiguredError("Run storage is not configured"))
		return
	}

	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, common.NewWrongInputError("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}

	runs, err := h.deps.Storage.ListRuns(limit)
	if err != nil {
		h.writeError(w, common.NewStorageError(err.Error()).WithCause(err))
		return
	}
	WriteEnvelope(w, http.StatusOK, models.NewSuccessEnvelope(runsSuccess, runs), h.logger)
}

// HealthHandler reports liveness without authentication.
func (h *APIHandlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodGet) {
		return
	}

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   common.GetVersion(),
		Build:     common.GetBuild(),
		Uptime:    time.Since(h.startTime).Seconds(),
	}
	health.Services.Database = h.deps.Storage != nil && h.deps.Storage.Ping() == nil
	health.Services.Reasoning = h.deps.Analyzer != nil
	health.Services.Audio = h.deps.Audio != nil
	health.Services.Recordings = h.deps.Recordings != nil
	health.Services.Downloading = h.deps.Fetcher != nil

	message := healthSuccess
	if !health.Services.Database {
		health.Status = "degraded"
		message = healthDegraded
	}

	WriteEnvelope(w, http.StatusOK, models.NewSuccessEnvelope(message, health), h.logger)
}

// NotFoundHandler answers unknown paths with a NOT_FOUND envelope.
func (h *APIHandlers) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteEnvelope(w, http.StatusNotFound,
		models.NewErrorEnvelope(common.CodeNotFound, fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path), http.StatusNotFound),
		h.logger)
}
