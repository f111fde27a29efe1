package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	. "eye-of-horus/internal/common"
	. "eye-of-horus/internal/interfaces"
	"eye-of-horus/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
)

// errorBodyLimit caps how much of an upstream error body is echoed back.
const errorBodyLimit = 4096

// HTTPFetcher downloads caller-supplied transcript and audio URLs. s3:// URLs
// are read through the object store.
type HTTPFetcher struct {
	client   *resty.Client
	store    ObjectStore
	maxBytes int64
	logger   arbor.ILogger
}

func NewHTTPFetcher(config *DownloadConfig, store ObjectStore, logger arbor.ILogger) *HTTPFetcher {
	client := resty.New().
		SetHeader("User-Agent", "eye-of-horus/"+GetVersion()).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &HTTPFetcher{
		client:   client,
		store:    store,
		maxBytes: config.MaxBytes,
		logger:   logger,
	}
}

// Fetch returns the body of rawURL. A non-2xx answer is HTTP_ERROR carrying
// the upstream status; a transport failure or timeout is REQUEST_ERROR.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*models.Download, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, NewWrongInputError(fmt.Sprintf("Invalid URL: %v", err)).WithCause(err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.fetchHTTP(ctx, u)
	case "s3":
		return f.fetchS3(ctx, u)
	default:
		return nil, NewWrongInputError(fmt.Sprintf("Unsupported URL scheme %q", u.Scheme))
	}
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, u *url.URL) (*models.Download, error) {
	start := time.Now()

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, NewRequestError(err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
		return nil, NewHTTPError(resp.StatusCode(), string(snippet))
	}

	data, err := f.readLimited(body)
	if err != nil {
		return nil, err
	}

	f.logger.Info().
		Str("host", u.Host).
		Int("status", resp.StatusCode()).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Download completed")

	return &models.Download{
		Data:        data,
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

func (f *HTTPFetcher) readLimited(body io.Reader) ([]byte, error) {
	if f.maxBytes <= 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, NewRequestError(err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, NewRequestError(err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, NewWrongInputError(fmt.Sprintf("Download exceeds %d bytes", f.maxBytes))
	}
	return data, nil
}

func (f *HTTPFetcher) fetchS3(ctx context.Context, u *url.URL) (*models.Download, error) {
	if f.store == nil {
		return nil, NewNotConfiguredError("Object storage is not configured")
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, NewWrongInputError("s3 URLs must look like s3://bucket/key")
	}

	data, err := f.store.Get(ctx, u.Host, key)
	if err != nil {
		return nil, err
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, NewWrongInputError(fmt.Sprintf("Download exceeds %d bytes", f.maxBytes))
	}
	return &models.Download{Data: data}, nil
}
