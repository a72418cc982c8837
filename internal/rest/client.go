package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/errs"
	"github.com/artisan-platform/live-session/internal/model"
	"github.com/artisan-platform/live-session/pkg/constants"
)

const (
	endStreamAttempts = 3
	endStreamDelay    = time.Second
)

// Client talks to the platform REST API: exhibition snapshots, media token
// issuance, end-of-stream marking and recording upload. The API belongs to
// the marketplace backend; this is the live session's view of it.
type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

// New creates a REST client for the given base URL.
func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}
}

// GetExhibition fetches the exhibition snapshot that seeds session state.
func (c *Client) GetExhibition(ctx context.Context, id string) (*model.Exhibition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+fmt.Sprintf(constants.PathExhibitionFmt, id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rest: get exhibition: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errs.ErrExhibitionNotFound
	default:
		return nil, fmt.Errorf("rest: get exhibition: unexpected status %d", resp.StatusCode)
	}
	var ex model.Exhibition
	if err := json.NewDecoder(resp.Body).Decode(&ex); err != nil {
		return nil, fmt.Errorf("rest: decode exhibition: %w", err)
	}
	return &ex, nil
}

// RequestToken requests a fresh media credential for one join attempt.
// Never cached: every (re)join asks again.
func (c *Client) RequestToken(ctx context.Context, exhibitionID string, role model.Role) (model.Credential, error) {
	body, _ := json.Marshal(map[string]string{"role": string(role)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+fmt.Sprintf(constants.PathLiveTokenFmt, exhibitionID), bytes.NewReader(body))
	if err != nil {
		return model.Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return model.Credential{}, fmt.Errorf("rest: request token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return model.Credential{}, fmt.Errorf("rest: request token: unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return model.Credential{}, fmt.Errorf("rest: read token: %w", err)
	}
	return model.ParseCredential(raw, exhibitionID, role)
}

// EndLiveStream marks the stream ended server-side. Idempotent on the server;
// retried a bounded number of times with a fixed delay.
func (c *Client) EndLiveStream(ctx context.Context, exhibitionID string) error {
	var lastErr error
	for attempt := 1; attempt <= endStreamAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(endStreamDelay):
			}
		}
		lastErr = c.endLiveOnce(ctx, exhibitionID)
		if lastErr == nil {
			return nil
		}
		c.log.Warn("rest: end live stream failed",
			zap.String("exhibition_id", exhibitionID),
			zap.Int("attempt", attempt), zap.Error(lastErr))
	}
	return fmt.Errorf("rest: end live stream after %d attempts: %w", endStreamAttempts, lastErr)
}

func (c *Client) endLiveOnce(ctx context.Context, exhibitionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+fmt.Sprintf(constants.PathEndLiveFmt, exhibitionID), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// UploadRecording uploads the locally captured blob as multipart form data.
// Best-effort: callers log the error and continue teardown.
func (c *Client) UploadRecording(ctx context.Context, exhibitionID, filename string, blob io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("recording", filename)
	if err != nil {
		return fmt.Errorf("rest: multipart: %w", err)
	}
	if _, err := io.Copy(part, blob); err != nil {
		return fmt.Errorf("rest: copy blob: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("rest: multipart close: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+fmt.Sprintf(constants.PathRecordingFmt, exhibitionID), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: upload recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("rest: upload recording: unexpected status %d", resp.StatusCode)
	}
	return nil
}
