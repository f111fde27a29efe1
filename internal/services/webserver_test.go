package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/handlers"
	"eye-of-horus/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type countingAudio struct {
	calls int
}

func (c *countingAudio) Process(ctx context.Context, req models.AudioProcessRequest) (string, error) {
	c.calls++
	return "https://signed.example.com/transcripts/" + req.LogID + ".txt", nil
}

type routerFixture struct {
	handler       http.Handler
	transcriptURL string
	backend       *fakeBackend
	audio         *countingAudio
}

func newRouterFixture(t *testing.T, keys ...string) *routerFixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Arjun: ENG-12 pe comment karo"))
	}))
	t.Cleanup(srv.Close)

	cfg := common.DefaultConfig()
	cfg.Auth.APIKeys = keys
	logger := arbor.NewLogger()

	backend := &fakeBackend{response: []byte(`[]`)}
	audio := &countingAudio{}
	api := handlers.NewAPIHandlers(handlers.Dependencies{
		Config:   cfg,
		Fetcher:  newTestFetcher(nil, 1<<20),
		Analyzer: NewAnalyzer(backend, newTestPromptBuilder(t), logger),
		Audio:    audio,
		Logger:   logger,
	})

	return &routerFixture{
		handler:       NewRouter(cfg, api, nil, logger),
		transcriptURL: srv.URL + "/standup.txt",
		backend:       backend,
		audio:         audio,
	}
}

func (f *routerFixture) do(t *testing.T, method, target, key, body string) (*httptest.ResponseRecorder, models.ResponseEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env models.ResponseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, rec.Code == http.StatusOK, env.Success)
	return rec, env
}

func analyzeRequestBody(url string) string {
	return `{"transcript_url":"` + url + `","pod_members":[],"sprint_details":[]}`
}

func TestRouterRejectsMissingOrWrongKey(t *testing.T) {
	f := newRouterFixture(t, "key-1", "key-2")
	body := analyzeRequestBody("http://127.0.0.1:1/never")

	for _, key := range []string{"", "wrong", "key-1 "} {
		rec, env := f.do(t, http.MethodPost, "/api/v1/analyze-transcription", key, body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, common.CodeUnauthorized, env.Code)
		assert.Equal(t, "Invalid API key", env.Message)
		assert.Equal(t, http.StatusUnauthorized, env.StatusCode)
	}

	rec, _ := f.do(t, http.MethodPost, "/api/v1/process-audio/", "", `{"file_uri":"x","log_id":"y"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, 0, f.backend.calls)
	assert.Equal(t, 0, f.audio.calls)
}

func TestRouterWithoutConfiguredKeysRejectsEverything(t *testing.T) {
	f := newRouterFixture(t)
	rec, env := f.do(t, http.MethodGet, "/", "anything", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, common.CodeUnauthorized, env.Code)
}

func TestRouterRoot(t *testing.T) {
	f := newRouterFixture(t, "key-1")
	rec, env := f.do(t, http.MethodGet, "/", "key-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"message": "Welcome to Eye of Horus!"}, env.Body)
}

func TestRouterAnalyzeTranscription(t *testing.T) {
	f := newRouterFixture(t, "key-1")
	rec, env := f.do(t, http.MethodPost, "/api/v1/analyze-transcription", "key-1", analyzeRequestBody(f.transcriptURL))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, common.CodeSuccess, env.Code)
	assert.Equal(t, []interface{}{}, env.Body)
	require.Equal(t, 1, f.backend.calls)
	assert.True(t, strings.HasSuffix(f.backend.last.Prompt, "Arjun: ENG-12 pe comment karo"))
}

func TestRouterProcessAudioWithAndWithoutSlash(t *testing.T) {
	f := newRouterFixture(t, "key-1")

	for _, target := range []string{"/api/v1/process-audio/", "/api/v1/process-audio"} {
		rec, env := f.do(t, http.MethodPost, target, "key-1", `{"file_uri":"1AbC","log_id":"log-9"}`)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "https://signed.example.com/transcripts/log-9.txt", env.S3URL, target)
	}
	assert.Equal(t, 2, f.audio.calls)
}

func TestRouterUnknownPath(t *testing.T) {
	f := newRouterFixture(t, "key-1")

	rec, env := f.do(t, http.MethodGet, "/api/v1/unknown", "key-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, common.CodeNotFound, env.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/unknown", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterHealthSkipsAuth(t *testing.T) {
	f := newRouterFixture(t, "key-1")
	rec, env := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestRouterMethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t, "key-1")
	rec, env := f.do(t, http.MethodGet, "/api/v1/analyze-transcription", "key-1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, common.CodeMethodNotAllowed, env.Code)
}
