package models

import "time"

// RunKind names the operation a RunRecord audits.
type RunKind string

const (
	RunKindAnalysis RunKind = "analysis"
	RunKindAudio    RunKind = "audio"
)

// RunRecord is the audit entry kept for each analysis or audio run. It holds
// no transcript text or actions.
type RunRecord struct {
	ID          string    `json:"id"`
	Kind        RunKind   `json:"kind"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	Code        string    `json:"code"`
	Success     bool      `json:"success"`
	ActionCount int       `json:"action_count,omitempty"`
	LogID       string    `json:"log_id,omitempty"`
	S3URL       string    `json:"s3_url,omitempty"`
}

// Event is a message pushed to websocket subscribers.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

const (
	EventAnalysisStarted   = "analysis_started"
	EventAnalysisCompleted = "analysis_completed"
	EventAnalysisFailed    = "analysis_failed"
	EventAudioStarted      = "audio_started"
	EventAudioCompleted    = "audio_completed"
	EventAudioFailed       = "audio_failed"
	EventStatus            = "status"
)
