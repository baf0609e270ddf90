// Package tts turns text into speech through an ElevenLabs-compatible API.
package tts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/breaker"
	"github.com/sakif/vinstackcode/internal/integration"
)

const (
	vendor = "text-to-speech"

	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultModelID = "eleven_monolingual_v1"

	// MaxTextLength keeps one request to a few minutes of audio.
	MaxTextLength = 5000

	maxAudioBytes = 32 << 20
)

type Config struct {
	APIKey          string
	BaseURL         string
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Timeout         time.Duration
	// CacheTTL is how long generated audio is kept. Zero keeps it forever.
	CacheTTL time.Duration
}

// Cache is the subset of cache.Store the client needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Client synthesizes speech. Identical requests are served from the cache,
// so replaying a tutorial narration costs one API call, not one per listen.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker.Breaker
	cache   Cache
	logger  *slog.Logger
}

// New returns a client. cache may be nil.
func New(cfg Config, b *breaker.Breaker, cache Cache, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: b,
		cache:   cache,
		logger:  logger,
	}
}

// Enabled reports whether an API key and voice are configured.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != "" && c.cfg.VoiceID != ""
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns MPEG audio for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "text is required")
	}
	if len(text) > MaxTextLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("text must be %d characters or less", MaxTextLength))
	}
	if !c.Enabled() {
		return nil, apperror.Unavailable(vendor)
	}

	key := c.cacheKey(text)
	if c.cache != nil {
		audio, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("tts cache read failed", slog.String("error", err.Error()))
		} else if ok {
			return audio, nil
		}
	}

	audio, err := breaker.Execute(c.breaker, func() ([]byte, error) {
		return c.synthesize(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, audio, c.cfg.CacheTTL); err != nil {
			c.logger.Warn("tts cache write failed", slog.String("error", err.Error()))
		}
	}
	return audio, nil
}

func (c *Client) synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: c.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       c.cfg.Stability,
			SimilarityBoost: c.cfg.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tts: encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := integration.Send(c.http, vendor, req, c.logger)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, integration.AsUnavailable(vendor, err, c.logger)
	}
	if len(audio) == 0 {
		return nil, apperror.Unavailable(vendor)
	}
	return audio, nil
}

// cacheKey covers every input that changes the audio.
func (c *Client) cacheKey(text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%.3f\x00%.3f\x00%s", c.cfg.VoiceID, c.cfg.ModelID, c.cfg.Stability, c.cfg.SimilarityBoost, text)
	return hex.EncodeToString(h.Sum(nil))
}
