package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/interfaces"
	"eye-of-horus/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	driveScope      = "https://www.googleapis.com/auth/drive.readonly"
	driveAPIBaseURL = "https://www.googleapis.com/drive/v3"
	driveTokenName  = "drive"
	folderMimeType  = "application/vnd.google-apps.folder"
)

var driveFileIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DriveSource reads meeting recordings from Google Drive. The OAuth token
// lives in the local database and is refreshed transparently.
type DriveSource struct {
	oauth     *oauth2.Config
	storage   interfaces.Storage
	tokenFile string
	baseURL   string
	timeout   time.Duration
	logger    arbor.ILogger

	mu     sync.Mutex
	tokens oauth2.TokenSource
}

type driveFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mimeType"`
	CreatedTime time.Time `json:"createdTime"`
}

type driveFileList struct {
	Files []driveFile `json:"files"`
}

func NewDriveSource(cfg *common.DriveConfig, storage interfaces.Storage, logger arbor.ILogger) (*DriveSource, error) {
	creds, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive credentials %s: %w", cfg.CredentialsFile, err)
	}

	oauthCfg, err := google.ConfigFromJSON(creds, driveScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive credentials: %w", err)
	}

	return &DriveSource{
		oauth:     oauthCfg,
		storage:   storage,
		tokenFile: cfg.TokenFile,
		baseURL:   driveAPIBaseURL,
		timeout:   time.Duration(cfg.Timeout) * time.Second,
		logger:    logger,
	}, nil
}

// AuthCodeURL is the consent page for a one-off authorisation.
func (d *DriveSource) AuthCodeURL(state string) string {
	return d.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorisation code for a token and stores it.
func (d *DriveSource) Exchange(ctx context.Context, code string) error {
	tok, err := d.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorisation code: %w", err)
	}
	if err := d.saveToken(tok); err != nil {
		return err
	}

	d.mu.Lock()
	d.tokens = nil
	d.mu.Unlock()
	return nil
}

func (d *DriveSource) saveToken(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal drive token: %w", err)
	}
	if err := d.storage.SaveToken(driveTokenName, data); err != nil {
		return fmt.Errorf("failed to save drive token: %w", err)
	}
	return nil
}

func (d *DriveSource) tokenSource() (oauth2.TokenSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tokens != nil {
		return d.tokens, nil
	}

	tok, err := d.loadToken()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, common.NewNotConfiguredError("Drive access is not authorised; run with -authorize-drive")
	}

	d.tokens = &persistingTokenSource{
		base:   oauth2.ReuseTokenSource(tok, d.oauth.TokenSource(context.Background(), tok)),
		last:   tok.AccessToken,
		save:   d.saveToken,
		logger: d.logger,
	}
	return d.tokens, nil
}

// loadToken reads the stored token, seeding it from the token file on first
// use.
func (d *DriveSource) loadToken() (*oauth2.Token, error) {
	data, err := d.storage.LoadToken(driveTokenName)
	if err != nil {
		return nil, common.NewStorageError(fmt.Sprintf("Failed to load drive token: %v", err)).WithCause(err)
	}
	if data != nil {
		var tok oauth2.Token
		if err := json.Unmarshal(data, &tok); err != nil {
			return nil, common.NewStorageError(fmt.Sprintf("Stored drive token is corrupt: %v", err)).WithCause(err)
		}
		return &tok, nil
	}

	if d.tokenFile == "" {
		return nil, nil
	}
	data, err = os.ReadFile(d.tokenFile)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", d.tokenFile, err)
	}

	tok, err := parseTokenFile(data)
	if err != nil {
		return nil, err
	}
	if err := d.saveToken(tok); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to store seeded drive token")
	}
	d.logger.Info().Str("file", d.tokenFile).Msg("Drive token imported")
	return tok, nil
}

// parseTokenFile accepts both the oauth2.Token layout and the authorised-user
// layout written by Google's Python client.
func parseTokenFile(data []byte) (*oauth2.Token, error) {
	var raw struct {
		AccessToken  string    `json:"access_token"`
		Token        string    `json:"token"`
		RefreshToken string    `json:"refresh_token"`
		TokenType    string    `json:"token_type"`
		Expiry       time.Time `json:"expiry"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		TokenType:    raw.TokenType,
		Expiry:       raw.Expiry,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = raw.Token
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file holds neither an access nor a refresh token")
	}
	return tok, nil
}

type persistingTokenSource struct {
	base   oauth2.TokenSource
	save   func(*oauth2.Token) error
	logger arbor.ILogger

	mu   sync.Mutex
	last string
}

// Token stores every refreshed token so restarts keep working.
func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.save(tok); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to persist refreshed drive token")
		} else {
			p.last = tok.AccessToken
		}
	}
	return tok, nil
}

func (d *DriveSource) rest() (*resty.Client, error) {
	ts, err := d.tokenSource()
	if err != nil {
		return nil, err
	}
	return resty.NewWithClient(oauth2.NewClient(context.Background(), ts)).
		SetBaseURL(d.baseURL).
		SetTimeout(d.timeout).
		SetHeader("Accept", "application/json"), nil
}

func (d *DriveSource) listFiles(ctx context.Context, query string) ([]driveFile, error) {
	client, err := d.rest()
	if err != nil {
		return nil, err
	}

	var list driveFileList
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("spaces", "drive").
		SetQueryParam("fields", "files(id, name, mimeType, createdTime)").
		SetResult(&list).
		Get("/files")
	if err != nil {
		return nil, common.NewRequestError(err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, common.NewHTTPError(resp.StatusCode(), resp.String())
	}
	return list.Files, nil
}

// FindFolder returns the id of the first folder with the given name.
func (d *DriveSource) FindFolder(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeDriveQuery(name), folderMimeType)
	files, err := d.listFiles(ctx, query)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", common.NewError(common.ErrorKindUpstream, common.CodeNotFound, http.StatusNotFound,
			fmt.Sprintf("Drive folder %q not found", name))
	}
	return files[0].ID, nil
}

// ListRecordings returns the webm and mp4 files of a folder.
func (d *DriveSource) ListRecordings(ctx context.Context, folderID string) ([]models.Recording, error) {
	if !driveFileIDPattern.MatchString(folderID) {
		return nil, common.NewWrongInputError("Invalid Drive folder id")
	}

	query := fmt.Sprintf("'%s' in parents and (mimeType='video/webm' or mimeType='video/mp4') and trashed=false", folderID)
	files, err := d.listFiles(ctx, query)
	if err != nil {
		return nil, err
	}

	recordings := make([]models.Recording, 0, len(files))
	for _, f := range files {
		recordings = append(recordings, models.Recording{
			ID:          f.ID,
			Name:        f.Name,
			MimeType:    f.MimeType,
			CreatedTime: f.CreatedTime,
		})
	}
	return recordings, nil
}

// Download writes the file to dir as <id>.webm or <id>.mp4 and returns its
// path and MIME type. An existing file is reused.
func (d *DriveSource) Download(ctx context.Context, fileID, dir string) (string, string, error) {
	if !driveFileIDPattern.MatchString(fileID) {
		return "", "", common.NewWrongInputError("file_uri is not a valid Drive file id")
	}

	client, err := d.rest()
	if err != nil {
		return "", "", err
	}

	var meta driveFile
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParam("fields", "id, name, mimeType").
		SetResult(&meta).
		Get("/files/" + fileID)
	if err != nil {
		return "", "", common.NewRequestError(err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", "", common.NewHTTPError(resp.StatusCode(), resp.String())
	}

	ext := ".mp4"
	if meta.MimeType == "video/webm" {
		ext = ".webm"
	}
	if meta.MimeType == "" {
		meta.MimeType = "video/mp4"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create download directory: %w", err)
	}
	target := filepath.Join(dir, fileID+ext)
	if _, err := os.Stat(target); err == nil {
		d.logger.Info().Str("file", target).Msg("Recording already downloaded")
		return target, meta.MimeType, nil
	}

	media, err := client.R().
		SetContext(ctx).
		SetQueryParam("alt", "media").
		SetDoNotParseResponse(true).
		Get("/files/" + fileID)
	if err != nil {
		return "", "", common.NewRequestError(err)
	}
	body := media.RawBody()
	defer body.Close()

	if media.StatusCode() != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
		return "", "", common.NewHTTPError(media.StatusCode(), string(snippet))
	}

	if err := writeFileAtomic(target, body); err != nil {
		return "", "", err
	}

	d.logger.Info().Str("file_id", fileID).Str("file", target).Msg("Recording downloaded")
	return target, meta.MimeType, nil
}

// writeFileAtomic streams r into path through a temporary sibling.
func writeFileAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return common.NewRequestError(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

func escapeDriveQuery(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
