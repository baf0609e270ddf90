package collabclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// APIError is a non-2xx answer from the server. It matches the apperror
// sentinels with errors.Is, so callers handle it like a local error.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("collabclient: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusBadRequest:
		return target == apperror.ErrValidation
	case http.StatusUnauthorized:
		return target == apperror.ErrUnauthorized
	case http.StatusForbidden:
		return target == apperror.ErrForbidden
	case http.StatusNotFound:
		return target == apperror.ErrNotFound
	case http.StatusConflict:
		return target == apperror.ErrConflict
	case http.StatusServiceUnavailable:
		return target == apperror.ErrUnavailable
	default:
		return false
	}
}

// SnippetView is a snippet as the server shows it to the caller.
type SnippetView struct {
	model.Snippet
	Role    model.Role `json:"role"`
	Actions []string   `json:"actions"`
	Liked   bool       `json:"liked"`
}

// APIClient talks to the REST API with a bearer token.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient returns a client for baseURL (for example
// "http://localhost:8080"). httpClient may be nil.
func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// SnippetChannel returns the session config for a snippet's realtime
// channel. Retryer is left for the caller to choose.
func (c *APIClient) SnippetChannel(snippetID string) Config {
	return c.channel("/api/realtime/snippets/" + url.PathEscape(snippetID))
}

// NotificationChannel returns the session config for the caller's inbox.
func (c *APIClient) NotificationChannel() Config {
	return c.channel("/api/realtime/notifications")
}

func (c *APIClient) channel(path string) Config {
	wsURL := c.baseURL + path
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return Config{URL: wsURL, Header: h}
}

// Snippet loads a snippet without counting a view.
func (c *APIClient) Snippet(ctx context.Context, id string) (*SnippetView, error) {
	var out SnippetView
	if err := c.do(ctx, http.MethodGet, "/api/snippets/"+url.PathEscape(id)+"?view=false", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Collaborators(ctx context.Context, snippetID string) ([]model.Collaborator, error) {
	var out []model.Collaborator
	err := c.do(ctx, http.MethodGet, "/api/snippets/"+url.PathEscape(snippetID)+"/collaborators", nil, &out)
	return out, err
}

// Notifications fetches every notification of the caller, newest first, one
// full page at a time until the server returns a short page. A notification
// that arrives mid-walk shifts the offsets, so ids already seen are skipped.
func (c *APIClient) Notifications(ctx context.Context) ([]model.Notification, error) {
	out := []model.Notification{}
	seen := make(map[string]struct{})
	for offset := 0; ; offset += repository.MaxLimit {
		var page []model.Notification
		path := fmt.Sprintf("/api/notifications?limit=%d&offset=%d", repository.MaxLimit, offset)
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, n := range page {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, n)
		}
		if len(page) < repository.MaxLimit {
			return out, nil
		}
	}
}

func (c *APIClient) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *APIClient) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil)
}

func (c *APIClient) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/"+url.PathEscape(id), nil, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("collabclient: encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("collabclient: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("collabclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("collabclient: reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			if payload.Error != "" {
				apiErr.Code = payload.Error
			}
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("collabclient: decoding response: %w", err)
	}
	return nil
}
