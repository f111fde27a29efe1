package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eye-of-horus/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
)

func newTestDriveSource(t *testing.T, handler http.HandlerFunc) *DriveSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &DriveSource{
		baseURL: srv.URL,
		timeout: 5 * time.Second,
		logger:  arbor.NewLogger(),
		tokens:  oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "drive-token"}),
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestDriveFindFolder(t *testing.T) {
	var query string
	drive := newTestDriveSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer drive-token", r.Header.Get("Authorization"))
		query = r.URL.Query().Get("q")
		writeJSON(w, map[string]interface{}{"files": []map[string]string{{"id": "folder-9", "name": "Meet Recordings"}}})
	})

	id, err := drive.FindFolder(context.Background(), "Meet Recordings")
	require.NoError(t, err)
	assert.Equal(t, "folder-9", id)
	assert.Contains(t, query, "name='Meet Recordings'")
	assert.Contains(t, query, folderMimeType)
}

func TestDriveFindFolderMissing(t *testing.T) {
	drive := newTestDriveSource(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"files": []interface{}{}})
	})

	_, err := drive.FindFolder(context.Background(), "Nope")
	se := common.AsServiceError(err)
	assert.Equal(t, common.CodeNotFound, se.Code)
	assert.Equal(t, http.StatusNotFound, se.Status)
}

func TestDriveListRecordings(t *testing.T) {
	drive := newTestDriveSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("q"), "'folder-9' in parents")
		writeJSON(w, map[string]interface{}{"files": []map[string]string{
			{"id": "r1", "name": "standup.webm", "mimeType": "video/webm", "createdTime": "2026-10-15T04:30:00Z"},
			{"id": "r2", "name": "retro.mp4", "mimeType": "video/mp4", "createdTime": "2026-10-16T04:30:00Z"},
		}})
	})

	recordings, err := drive.ListRecordings(context.Background(), "folder-9")
	require.NoError(t, err)
	require.Len(t, recordings, 2)
	assert.Equal(t, "r1", recordings[0].ID)
	assert.Equal(t, "video/mp4", recordings[1].MimeType)
	assert.Equal(t, 2026, recordings[1].CreatedTime.Year())
}

func TestDriveListRecordingsRejectsQueryInjection(t *testing.T) {
	drive := newTestDriveSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("drive must not be called")
	})
	_, err := drive.ListRecordings(context.Background(), "x' or name!='")
	assert.Equal(t, common.CodeWrongInput, common.AsServiceError(err).Code)
}

func TestDriveDownload(t *testing.T) {
	drive := newTestDriveSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/rec1", r.URL.Path)
		if r.URL.Query().Get("alt") == "media" {
			w.Write([]byte("webm bytes"))
			return
		}
		writeJSON(w, map[string]string{"id": "rec1", "name": "standup", "mimeType": "video/webm"})
	})

	dir := t.TempDir()
	path, mimeType, err := drive.Download(context.Background(), "rec1", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rec1.webm"), path)
	assert.Equal(t, "video/webm", mimeType)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "webm bytes", string(data))
}

func TestDriveDownloadUpstreamError(t *testing.T) {
	drive := newTestDriveSource(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"notFound"}`, http.StatusNotFound)
	})

	_, _, err := drive.Download(context.Background(), "rec1", t.TempDir())
	se := common.AsServiceError(err)
	assert.Equal(t, common.CodeHTTPError, se.Code)
	assert.Equal(t, http.StatusNotFound, se.Status)
}

func TestDriveDownloadRejectsBadID(t *testing.T) {
	drive := newTestDriveSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("drive must not be called")
	})
	_, _, err := drive.Download(context.Background(), "../secret", t.TempDir())
	assert.Equal(t, common.CodeWrongInput, common.AsServiceError(err).Code)
}

func TestParseTokenFile(t *testing.T) {
	tok, err := parseTokenFile([]byte(`{"token":"ya29.a","refresh_token":"1//r","expiry":"2026-10-16T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "ya29.a", tok.AccessToken)
	assert.Equal(t, "1//r", tok.RefreshToken)

	tok, err = parseTokenFile([]byte(`{"access_token":"ya29.b","token_type":"Bearer"}`))
	require.NoError(t, err)
	assert.Equal(t, "ya29.b", tok.AccessToken)

	_, err = parseTokenFile([]byte(`{}`))
	assert.Error(t, err)
	_, err = parseTokenFile([]byte(`not json`))
	assert.Error(t, err)
}

func TestDriveWithoutTokenIsNotConfigured(t *testing.T) {
	drive := &DriveSource{
		oauth:   &oauth2.Config{},
		storage: newTestStorage(t),
		logger:  arbor.NewLogger(),
	}
	_, err := drive.FindFolder(context.Background(), "Meet Recordings")
	assert.Equal(t, common.CodeNotConfigured, common.AsServiceError(err).Code)
}

func TestPersistingTokenSourceSavesRefresh(t *testing.T) {
	var saved []string
	source := &persistingTokenSource{
		base:   oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "new"}),
		last:   "old",
		save:   func(tok *oauth2.Token) error { saved = append(saved, tok.AccessToken); return nil },
		logger: arbor.NewLogger(),
	}

	for i := 0; i < 2; i++ {
		_, err := source.Token()
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"new"}, saved)
}

func TestEscapeDriveQuery(t *testing.T) {
	assert.Equal(t, `Arjun\'s folder`, escapeDriveQuery("Arjun's folder"))
	assert.Equal(t, `a\\b`, escapeDriveQuery(`a\b`))
}
