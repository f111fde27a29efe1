package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// AnalyzeTranscriptRequest is the body of POST /api/v1/analyze-transcription.
type AnalyzeTranscriptRequest struct {
	TranscriptURL string         `json:"transcript_url"`
	PodMembers    []PodMember    `json:"pod_members"`
	SprintDetails []SprintRecord `json:"sprint_details"`
}

func (r *AnalyzeTranscriptRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.TranscriptURL) == "":
		return errors.New("transcript_url is required")
	case r.PodMembers == nil:
		return errors.New("pod_members is required")
	case r.SprintDetails == nil:
		return errors.New("sprint_details is required")
	}
	return nil
}

// AudioProcessRequest is the body of POST /api/v1/process-audio/.
type AudioProcessRequest struct {
	FileURI string `json:"file_uri"`
	LogID   string `json:"log_id"`
}

var logIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate requires a file_uri and a log_id usable as a file and object name.
func (r *AudioProcessRequest) Validate() error {
	if strings.TrimSpace(r.FileURI) == "" {
		return errors.New("file_uri is required")
	}
	if r.LogID == "" {
		return errors.New("log_id is required")
	}
	if !logIDPattern.MatchString(r.LogID) || r.LogID == "." || r.LogID == ".." {
		return errors.New("log_id may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}

// AnalysisInput is everything the analyzer needs for one transcript.
type AnalysisInput struct {
	Transcript    string
	PodMembers    []PodMember
	SprintRecords []SprintRecord
}

// GenerationRequest is one structured call to the reasoning backend.
type GenerationRequest struct {
	SystemInstruction string
	Prompt            string
	ResponseSchema    *Schema
}

// Recording is a meeting recording available in the recording source.
type Recording struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type"`
	CreatedTime time.Time `json:"created_time"`
}

// Download is a fetched payload.
type Download struct {
	Data        []byte
	ContentType string
}
