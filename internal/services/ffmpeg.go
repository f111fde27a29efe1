package services

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"eye-of-horus/internal/common"

	"github.com/ternarybob/arbor"
)

// FFmpegConverter extracts the audio track of a recording as MP3.
type FFmpegConverter struct {
	path    string
	bitrate string
	logger  arbor.ILogger
}

func NewFFmpegConverter(cfg *common.AudioConfig, logger arbor.ILogger) *FFmpegConverter {
	return &FFmpegConverter{
		path:    cfg.FFmpegPath,
		bitrate: cfg.Bitrate,
		logger:  logger,
	}
}

// Convert writes <name>.mp3 next to the input, so the output shares the
// lifetime of the caller's work directory. An existing output in that
// directory is reused. Without an ffmpeg path the input is returned unchanged.
func (c *FFmpegConverter) Convert(ctx context.Context, inputPath string) (string, string, error) {
	if c.path == "" {
		return inputPath, mimeTypeFor(inputPath), nil
	}

	dir := filepath.Dir(inputPath)
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(dir, base+".mp3")
	if outputPath == inputPath {
		return inputPath, "audio/mpeg", nil
	}

	if _, err := os.Stat(outputPath); err == nil {
		c.logger.Info().Str("output", outputPath).Msg("Audio already converted")
		return outputPath, "audio/mpeg", nil
	}

	args := []string{"-y", "-loglevel", "error", "-i", inputPath, "-vn", "-b:a", c.bitrate, outputPath}
	cmd := exec.CommandContext(ctx, c.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(outputPath)
		return "", "", common.NewInternalError(fmt.Sprintf("ffmpeg failed: %v: %s", err, strings.TrimSpace(stderr.String()))).WithCause(err)
	}

	c.logger.Info().Str("input", inputPath).Str("output", outputPath).Msg("Audio extracted")
	return outputPath, "audio/mpeg", nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		return "video/webm"
	case ".mp4":
		return "video/mp4"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
