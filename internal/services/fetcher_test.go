package services

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eye-of-horus/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeStore struct {
	objects  map[string][]byte
	puts     map[string]string
	putErr   error
	getCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, puts: map[string]string{}}
}

func (f *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	f.puts[key] = contentType
	return nil
}

func (f *fakeStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	f.getCalls++
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, common.NewStorageError("no such key")
	}
	return data, nil
}

func (f *fakeStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://signed.example.com/" + key + "?expires=" + expiry.String(), nil
}

func newTestFetcher(store *fakeStore, maxBytes int64) *HTTPFetcher {
	var cfg = &common.DownloadConfig{MaxBytes: maxBytes}
	if store == nil {
		return NewHTTPFetcher(cfg, nil, arbor.NewLogger())
	}
	return NewHTTPFetcher(cfg, store, arbor.NewLogger())
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Arjun: ENG-12 done hai"))
	}))
	defer srv.Close()

	download, err := newTestFetcher(nil, 1024).Fetch(context.Background(), srv.URL+"/t.txt", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Arjun: ENG-12 done hai", string(download.Data))
	assert.Equal(t, "text/plain; charset=utf-8", download.ContentType)
}

func TestFetchUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "AccessDenied", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher(nil, 1024).Fetch(context.Background(), srv.URL, 5*time.Second)
	require.Error(t, err)

	se := common.AsServiceError(err)
	assert.Equal(t, common.CodeHTTPError, se.Code)
	assert.Equal(t, http.StatusForbidden, se.Status)
	assert.True(t, strings.HasPrefix(se.Message, "HTTP error: 403 - AccessDenied"))
}

func TestFetchUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	_, err = newTestFetcher(nil, 1024).Fetch(context.Background(), "http://"+addr+"/t.txt", 2*time.Second)
	require.Error(t, err)

	se := common.AsServiceError(err)
	assert.Equal(t, common.CodeRequestError, se.Code)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.True(t, strings.HasPrefix(se.Message, "Request error: "))
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestFetcher(nil, 1024).Fetch(context.Background(), srv.URL, 50*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, common.CodeRequestError, common.AsServiceError(err).Code)
}

func TestFetchSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer srv.Close()

	_, err := newTestFetcher(nil, 16).Fetch(context.Background(), srv.URL, 5*time.Second)
	require.Error(t, err)
	assert.Equal(t, common.CodeWrongInput, common.AsServiceError(err).Code)
}

func TestFetchS3(t *testing.T) {
	store := newFakeStore()
	store.objects["meetings/transcripts/a.txt"] = []byte("hello")

	download, err := newTestFetcher(store, 1024).Fetch(context.Background(), "s3://meetings/transcripts/a.txt", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(download.Data))
	assert.Equal(t, 1, store.getCalls)
}

func TestFetchS3WithoutStore(t *testing.T) {
	_, err := newTestFetcher(nil, 1024).Fetch(context.Background(), "s3://meetings/a.txt", time.Second)
	assert.Equal(t, common.CodeNotConfigured, common.AsServiceError(err).Code)
}

func TestFetchRejectsUnsupportedScheme(t *testing.T) {
	for _, raw := range []string{"file:///etc/passwd", "ftp://host/x", "not a url"} {
		_, err := newTestFetcher(nil, 1024).Fetch(context.Background(), raw, time.Second)
		require.Error(t, err, raw)
		assert.Equal(t, common.CodeWrongInput, common.AsServiceError(err).Code, raw)
	}
}
