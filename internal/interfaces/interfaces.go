package interfaces

import (
	"context"
	"time"

	"eye-of-horus/internal/models"
)

// ReasoningBackend turns a prompt into schema-constrained JSON.
type ReasoningBackend interface {
	Generate(ctx context.Context, req models.GenerationRequest) ([]byte, error)
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path, mimeType string) (string, error)
}

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// RecordingSource is the document store holding meeting recordings.
type RecordingSource interface {
	FindFolder(ctx context.Context, name string) (string, error)
	ListRecordings(ctx context.Context, folderID string) ([]models.Recording, error)
	// Download stores the file under dir and returns its path and MIME type.
	Download(ctx context.Context, fileID, dir string) (string, string, error)
}

// AudioConverter extracts an audio track. It returns the output path and
// its MIME type.
type AudioConverter interface {
	Convert(ctx context.Context, inputPath string) (string, string, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*models.Download, error)
}

type Storage interface {
	SaveRun(run *models.RunRecord) error
	ListRuns(limit int) ([]*models.RunRecord, error)
	PruneRuns(before time.Time) (int, error)
	SaveToken(name string, data []byte) error
	LoadToken(name string) ([]byte, error)
	Ping() error
	Close() error
}

type EventPublisher interface {
	Publish(eventType string, data interface{})
}

type TranscriptAnalyzer interface {
	Analyze(ctx context.Context, input models.AnalysisInput) ([]models.TicketAction, error)
}

type AudioProcessor interface {
	Process(ctx context.Context, req models.AudioProcessRequest) (string, error)
}

type WebService interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}
