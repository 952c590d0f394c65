// Package drive implements the sink gateway against the Google Drive v3 API.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fimiwatch/tweetvault/internal/core"
	apperrors "github.com/fimiwatch/tweetvault/internal/errors"
)

const (
	defaultBaseURL   = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	folderMimeType = "application/vnd.google-apps.folder"
	rootFolderID   = "root"
)

// Config holds configuration for the Drive gateway.
type Config struct {
	BaseURL   string
	UploadURL string
	Timeout   time.Duration
	Client    *http.Client
	Logger    *slog.Logger
}

// Client talks to the Drive v3 files API. Folder creation is idempotent:
// lookup by name under the parent happens before any create.
type Client struct {
	baseURL   string
	uploadURL string
	client    *http.Client
	logger    *slog.Logger

	// serviceAuth is set when an injected http.Client carries its own auth
	// (oauth2 transport); empty per-call credentials are then allowed.
	serviceAuth bool
}

// NewClient builds a Drive gateway client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	uploadURL := strings.TrimRight(strings.TrimSpace(cfg.UploadURL), "/")
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:     baseURL,
		uploadURL:   uploadURL,
		client:      hc,
		logger:      cfg.Logger,
		serviceAuth: cfg.Client != nil,
	}, nil
}

// MustNewClient builds a Drive gateway client and panics on invalid config.
func MustNewClient(cfg Config) *Client {
	c, err := NewClient(cfg)
	if err != nil {
		panic(fmt.Sprintf("drive.NewClient: %v", err))
	}
	return c
}

type fileResource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	Size         string `json:"size,omitempty"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

type fileListResponse struct {
	Files []fileResource `json:"files"`
}

// EnsureFolder resolves the folder at the given path segments under the
// root, creating any missing segments. Repeated calls with the same path
// return the same folder.
func (c *Client) EnsureFolder(ctx context.Context, credential string, path []string) (*core.Folder, error) {
	if len(path) == 0 {
		return nil, apperrors.Validation("folder path must have at least one segment")
	}

	parentID := rootFolderID
	var resolved []string
	for _, segment := range path {
		name := strings.TrimSpace(segment)
		if name == "" {
			return nil, apperrors.Validation("folder path segments must be non-empty")
		}

		id, err := c.findFolder(ctx, credential, name, parentID)
		if err != nil {
			return nil, err
		}
		if id == "" {
			id, err = c.createFolder(ctx, credential, name, parentID)
			if err != nil {
				return nil, err
			}
		}
		parentID = id
		resolved = append(resolved, name)
	}

	return &core.Folder{ID: parentID, Path: "/" + strings.Join(resolved, "/")}, nil
}

func (c *Client) findFolder(ctx context.Context, credential, name, parentID string) (string, error) {
	query := fmt.Sprintf("mimeType='%s' and name='%s' and '%s' in parents and trashed=false",
		folderMimeType, escapeQueryValue(name), parentID)

	q := url.Values{}
	q.Set("q", query)
	q.Set("spaces", "drive")
	q.Set("fields", "files(id, name)")

	body, err := c.do(ctx, credential, http.MethodGet, c.baseURL+"/files?"+q.Encode(), "", nil)
	if err != nil {
		return "", err
	}

	var list fileListResponse
	if decodeErr := json.Unmarshal(body, &list); decodeErr != nil {
		return "", apperrors.Wrap(decodeErr, apperrors.ErrCodeMalformed, "decode folder lookup response")
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].ID, nil
}

func (c *Client) createFolder(ctx context.Context, credential, name, parentID string) (string, error) {
	metadata := map[string]any{
		"name":     name,
		"mimeType": folderMimeType,
		"parents":  []string{parentID},
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal folder metadata: %w", err)
	}

	body, err := c.do(ctx, credential, http.MethodPost, c.baseURL+"/files?fields=id", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	var created fileResource
	if decodeErr := json.Unmarshal(body, &created); decodeErr != nil {
		return "", apperrors.Wrap(decodeErr, apperrors.ErrCodeMalformed, "decode folder create response")
	}
	if created.ID == "" {
		return "", apperrors.Malformed("folder create response missing id")
	}

	if c.logger != nil {
		c.logger.InfoContext(ctx, "created sink folder", "name", name, "folder_id", created.ID)
	}
	return created.ID, nil
}

// Upload writes a file into the given folder via a multipart/related request
// and returns the new file id.
func (c *Client) Upload(ctx context.Context, credential string, params core.UploadParams) (string, error) {
	if params.FolderID == "" {
		return "", apperrors.Validation("upload folder id is required")
	}
	if strings.TrimSpace(params.Filename) == "" {
		return "", apperrors.Validation("upload filename is required")
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/json"
	}

	metadata := map[string]any{
		"name":    params.Filename,
		"parents": []string{params.FolderID},
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal upload metadata: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", fmt.Errorf("create metadata part: %w", err)
	}
	if _, writeErr := metaPart.Write(metadataJSON); writeErr != nil {
		return "", fmt.Errorf("write metadata part: %w", writeErr)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return "", fmt.Errorf("create media part: %w", err)
	}
	if _, writeErr := mediaPart.Write(params.Content); writeErr != nil {
		return "", fmt.Errorf("write media part: %w", writeErr)
	}
	if closeErr := writer.Close(); closeErr != nil {
		return "", fmt.Errorf("close multipart writer: %w", closeErr)
	}

	contentType := "multipart/related; boundary=" + writer.Boundary()
	body, err := c.do(ctx, credential, http.MethodPost, c.uploadURL+"/files?uploadType=multipart&fields=id", contentType, &buf)
	if err != nil {
		return "", err
	}

	var uploaded fileResource
	if decodeErr := json.Unmarshal(body, &uploaded); decodeErr != nil {
		return "", apperrors.Wrap(decodeErr, apperrors.ErrCodeMalformed, "decode upload response")
	}
	if uploaded.ID == "" {
		return "", apperrors.Malformed("upload response missing file id")
	}
	return uploaded.ID, nil
}

// ListFolder returns the entries directly under the given folder.
func (c *Client) ListFolder(ctx context.Context, credential string, folderID string) ([]core.SinkEntry, error) {
	parent := strings.TrimSpace(folderID)
	if parent == "" {
		parent = rootFolderID
	}

	q := url.Values{}
	q.Set("q", fmt.Sprintf("'%s' in parents and trashed=false", escapeQueryValue(parent)))
	q.Set("pageSize", "1000")
	q.Set("fields", "files(id, name, mimeType, size, modifiedTime)")

	body, err := c.do(ctx, credential, http.MethodGet, c.baseURL+"/files?"+q.Encode(), "", nil)
	if err != nil {
		return nil, err
	}

	var list fileListResponse
	if decodeErr := json.Unmarshal(body, &list); decodeErr != nil {
		return nil, apperrors.Wrap(decodeErr, apperrors.ErrCodeMalformed, "decode folder listing")
	}

	entries := make([]core.SinkEntry, 0, len(list.Files))
	for _, f := range list.Files {
		entry := core.SinkEntry{
			ID:       f.ID,
			Name:     f.Name,
			IsFolder: f.MimeType == folderMimeType,
		}
		if f.Size != "" {
			if size, sizeErr := strconv.ParseInt(f.Size, 10, 64); sizeErr == nil {
				entry.Size = size
			}
		}
		if f.ModifiedTime != "" {
			if modified, timeErr := time.Parse(time.RFC3339, f.ModifiedTime); timeErr == nil {
				entry.Modified = modified
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// do performs one authenticated request and classifies error statuses.
func (c *Client) do(ctx context.Context, credential, method, fullURL, contentType string, body io.Reader) ([]byte, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" && !c.serviceAuth {
		return nil, apperrors.Auth("sink credential is required")
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUpload, "sink request failed")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			_ = closeErr
		}
	}()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, apperrors.Wrap(readErr, apperrors.ErrCodeUpload, "read sink response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apperrors.Auth("sink rejected credentials")
	case resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.Upload("sink denied the operation (quota or permissions): " + truncateBody(respBody))
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("sink folder or file not found")
	default:
		return nil, apperrors.Upload(fmt.Sprintf("sink error %d: %s", resp.StatusCode, truncateBody(respBody)))
	}
}

// escapeQueryValue escapes single quotes for embedding in a Drive query string.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(v, `'`, `\'`)
}

func truncateBody(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
