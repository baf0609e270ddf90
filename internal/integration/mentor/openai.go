package mentor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/breaker"
	"github.com/sakif/vinstackcode/internal/integration"
)

// OpenAI asks a chat-completions model.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	breaker   *breaker.Breaker
	logger    *slog.Logger
}

func NewOpenAI(cfg Config, b *breaker.Breaker, logger *slog.Logger) *OpenAI {
	oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := openai.GPT4oMini
	if cfg.Model != "" {
		model = cfg.Model
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: cfg.MaxTokens,
		breaker:   b,
		logger:    logger,
	}
}

func (o *OpenAI) Provider() string { return ProviderOpenAI }

func (o *OpenAI) Ask(ctx context.Context, p Prompt) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	return breaker.Execute(o.breaker, func() (string, error) {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     o.model,
			MaxTokens: o.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: p.userMessage()},
			},
		})
		if err != nil {
			return "", o.mapError(err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", emptyAnswer(o.logger, ProviderOpenAI)
		}
		return resp.Choices[0].Message.Content, nil
	})
}

func (o *OpenAI) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusBadRequest {
		o.logger.Warn("mentor rejected the prompt",
			slog.String("provider", ProviderOpenAI),
			slog.String("error", err.Error()),
		)
		return apperror.ValidationFailed("question", "the mentor could not process this question")
	}
	return integration.AsUnavailable(vendor, err, o.logger)
}
