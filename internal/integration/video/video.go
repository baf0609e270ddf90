// Package video generates tutorial videos through a Tavus-compatible API.
//
// Generation is asynchronous: Create returns an id straight away and the
// video moves pending → processing → completed | failed on the vendor side.
// Await polls until the video reaches a terminal state.
package video

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/breaker"
	"github.com/sakif/vinstackcode/internal/integration"
)

const (
	vendor = "video generation"

	DefaultBaseURL      = "https://tavusapi.com"
	DefaultPollInterval = 5 * time.Second

	MaxScriptLength = 10000
)

// Status is where a video is in its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusPending, StatusProcessing:
		return false
	default:
		return false
	}
}

// ParseStatus maps the vendor's status words onto Status. Unknown words are
// treated as still processing so Await keeps polling until its context ends.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "":
		return StatusPending
	case "generating", "processing", "rendering":
		return StatusProcessing
	case "ready", "completed", "done":
		return StatusCompleted
	case "error", "failed", "deleted":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// Video is the vendor's view of one generation job.
type Video struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	URL    string `json:"url,omitempty"`
}

type Config struct {
	APIKey       string
	BaseURL      string
	ReplicaID    string
	PollInterval time.Duration
	Timeout      time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker.Breaker
	logger  *slog.Logger
}

func New(cfg Config, b *breaker.Breaker, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: b,
		logger:  logger,
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.APIKey != "" && c.cfg.ReplicaID != ""
}

type createRequest struct {
	ReplicaID string `json:"replica_id"`
	Script    string `json:"script"`
	VideoName string `json:"video_name,omitempty"`
}

type videoResponse struct {
	VideoID     string `json:"video_id"`
	Status      string `json:"status"`
	HostedURL   string `json:"hosted_url"`
	DownloadURL string `json:"download_url"`
}

func (r videoResponse) toVideo() *Video {
	v := &Video{ID: r.VideoID, Status: ParseStatus(r.Status), URL: r.HostedURL}
	if v.URL == "" {
		v.URL = r.DownloadURL
	}
	return v
}

// Create starts generating a video that reads script.
func (c *Client) Create(ctx context.Context, script, name string) (*Video, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, apperror.ValidationFailed("script", "script is required")
	}
	if len(script) > MaxScriptLength {
		return nil, apperror.ValidationFailed("script",
			fmt.Sprintf("script must be %d characters or less", MaxScriptLength))
	}
	if !c.Enabled() {
		return nil, apperror.Unavailable(vendor)
	}

	body, err := json.Marshal(createRequest{ReplicaID: c.cfg.ReplicaID, Script: script, VideoName: strings.TrimSpace(name)})
	if err != nil {
		return nil, fmt.Errorf("video: encoding request: %w", err)
	}

	return breaker.Execute(c.breaker, func() (*Video, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v2/videos"), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("video: building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.cfg.APIKey)

		var out videoResponse
		if err := integration.SendJSON(c.http, vendor, req, &out, c.logger); err != nil {
			return nil, err
		}
		if out.VideoID == "" {
			c.logger.Warn("video vendor returned no id")
			return nil, apperror.Unavailable(vendor)
		}
		return out.toVideo(), nil
	})
}

// Get returns the current state of a video.
func (c *Client) Get(ctx context.Context, id string) (*Video, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "video id is required")
	}
	if !c.Enabled() {
		return nil, apperror.Unavailable(vendor)
	}

	return breaker.Execute(c.breaker, func() (*Video, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v2/videos/"+url.PathEscape(id)), nil)
		if err != nil {
			return nil, fmt.Errorf("video: building request: %w", err)
		}
		req.Header.Set("x-api-key", c.cfg.APIKey)

		var out videoResponse
		if err := integration.SendJSON(c.http, vendor, req, &out, c.logger); err != nil {
			return nil, err
		}
		if out.VideoID == "" {
			out.VideoID = id
		}
		return out.toVideo(), nil
	})
}

// Await polls Get until the video is completed or failed, or ctx is done.
// It returns the last state seen together with ctx's error in that case.
func (c *Client) Await(ctx context.Context, id string) (*Video, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		v, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if v.Status.Terminal() {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}
