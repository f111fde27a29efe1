package services

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/interfaces"
	"eye-of-horus/internal/models"

	"github.com/ternarybob/arbor"
)

// AudioPipelineDeps are the collaborators of an AudioPipeline. Nil members
// make the matching step report NOT_CONFIGURED.
type AudioPipelineDeps struct {
	Fetcher     interfaces.Fetcher
	Recordings  interfaces.RecordingSource
	Converter   interfaces.AudioConverter
	Transcriber interfaces.Transcriber
	Store       interfaces.ObjectStore
}

// AudioPipeline downloads a recording, transcribes it and stores the
// transcript in object storage.
type AudioPipeline struct {
	deps         AudioPipelineDeps
	workDir      string
	prefix       string
	expiry       time.Duration
	fetchTimeout time.Duration
	logger       arbor.ILogger
}

func NewAudioPipeline(cfg *common.Config, deps AudioPipelineDeps, logger arbor.ILogger) *AudioPipeline {
	return &AudioPipeline{
		deps:         deps,
		workDir:      cfg.Drive.DownloadDir,
		prefix:       cfg.S3.TranscriptPrefix,
		expiry:       time.Duration(cfg.S3.PresignExpiry) * time.Hour,
		fetchTimeout: time.Duration(cfg.Download.AudioTimeout) * time.Second,
		logger:       logger,
	}
}

// Process returns a presigned URL of transcripts/<log_id>.txt. Every local
// file created along the way is removed before returning.
func (p *AudioPipeline) Process(ctx context.Context, req models.AudioProcessRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", common.NewWrongInputError(err.Error())
	}
	if p.deps.Transcriber == nil {
		return "", common.NewNotConfiguredError("Transcription backend is not configured")
	}
	if p.deps.Store == nil {
		return "", common.NewNotConfiguredError("Object storage is not configured")
	}

	if err := os.MkdirAll(p.workDir, 0755); err != nil {
		return "", common.NewInternalError(fmt.Sprintf("failed to create work directory: %v", err)).WithCause(err)
	}
	runDir, err := os.MkdirTemp(p.workDir, "run-")
	if err != nil {
		return "", common.NewInternalError(fmt.Sprintf("failed to create work directory: %v", err)).WithCause(err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			p.logger.Warn().Err(err).Str("dir", runDir).Msg("Failed to clean up audio work directory")
		}
	}()

	start := time.Now()

	sourcePath, sourceType, err := p.fetchRecording(ctx, req.FileURI, runDir)
	if err != nil {
		return "", err
	}

	audioPath, audioType := sourcePath, sourceType
	if p.deps.Converter != nil {
		audioPath, audioType, err = p.deps.Converter.Convert(ctx, sourcePath)
		if err != nil {
			return "", err
		}
		if audioPath != sourcePath {
			defer os.Remove(audioPath)
			os.Remove(sourcePath)
		}
	}

	transcript, err := p.deps.Transcriber.Transcribe(ctx, audioPath, audioType)
	if err != nil {
		return "", err
	}

	key := path.Join(p.prefix, req.LogID+".txt")
	if err := p.deps.Store.Put(ctx, key, []byte(transcript), "text/plain; charset=utf-8"); err != nil {
		return "", err
	}

	signed, err := p.deps.Store.PresignGet(ctx, key, p.expiry)
	if err != nil {
		return "", err
	}

	p.logger.Info().
		Str("log_id", req.LogID).
		Str("key", key).
		Int("transcript_bytes", len(transcript)).
		Dur("duration", time.Since(start)).
		Msg("Audio processed")

	return signed, nil
}

// fetchRecording resolves file_uri: http(s) and s3 URLs are downloaded
// directly, anything else is a Drive file id.
func (p *AudioPipeline) fetchRecording(ctx context.Context, fileURI, dir string) (string, string, error) {
	fileURI = strings.TrimSpace(fileURI)

	if u, err := url.Parse(fileURI); err == nil && isFetchableScheme(u.Scheme) {
		if p.deps.Fetcher == nil {
			return "", "", common.NewNotConfiguredError("Downloader is not configured")
		}
		download, err := p.deps.Fetcher.Fetch(ctx, fileURI, p.fetchTimeout)
		if err != nil {
			return "", "", err
		}

		name := path.Base(u.Path)
		if name == "" || name == "." || name == "/" {
			name = "recording"
		}
		target := filepath.Join(dir, filepath.Base(name))
		if err := writeFileAtomic(target, bytes.NewReader(download.Data)); err != nil {
			return "", "", err
		}

		mimeType := download.ContentType
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = strings.TrimSpace(mimeType[:i])
		}
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = mimeTypeFor(target)
		}
		return target, mimeType, nil
	}

	if p.deps.Recordings == nil {
		return "", "", common.NewNotConfiguredError("Drive recordings are not configured")
	}
	return p.deps.Recordings.Download(ctx, fileURI, dir)
}

func isFetchableScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https", "s3":
		return true
	}
	return false
}
