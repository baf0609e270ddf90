package mentor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/breaker"
	"github.com/sakif/vinstackcode/internal/integration"
)

// Anthropic asks Claude through the Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	breaker   *breaker.Breaker
	logger    *slog.Logger
}

func NewAnthropic(cfg Config, b *breaker.Breaker, logger *slog.Logger) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.AnthropicAPIKey),
		// The breaker decides when to stop trying.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := anthropic.ModelClaude3_7SonnetLatest
	if cfg.Model != "" {
		model = anthropic.Model(cfg.Model)
	}
	return &Anthropic{
		client:    &client,
		model:     model,
		maxTokens: int64(cfg.MaxTokens),
		breaker:   b,
		logger:    logger,
	}
}

func (a *Anthropic) Provider() string { return ProviderAnthropic }

func (a *Anthropic) Ask(ctx context.Context, p Prompt) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	return breaker.Execute(a.breaker, func() (string, error) {
		message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     a.model,
			MaxTokens: a.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(p.userMessage())),
			},
		})
		if err != nil {
			return "", a.mapError(err)
		}

		var answer strings.Builder
		for _, content := range message.Content {
			if content.Type == "text" {
				answer.WriteString(content.Text)
			}
		}
		if answer.Len() == 0 {
			return "", emptyAnswer(a.logger, ProviderAnthropic)
		}
		return answer.String(), nil
	})
}

// mapError keeps "the prompt was rejected" apart from "the vendor is down".
func (a *Anthropic) mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
		a.logger.Warn("mentor rejected the prompt",
			slog.String("provider", ProviderAnthropic),
			slog.String("error", err.Error()),
		)
		return apperror.ValidationFailed("question", "the mentor could not process this question")
	}
	return integration.AsUnavailable(vendor, err, a.logger)
}
