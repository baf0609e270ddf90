// Package mentor answers coding questions with a hosted language model.
//
// Two providers sit behind one Client interface. Anthropic is the default;
// OpenAI is selected with mentor.provider=openai. Both share the system
// prompt, the prompt layout and the error policy from the integration
// package, so callers never see which one answered.
package mentor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/breaker"
)

const (
	vendor = "AI mentor"

	DefaultMaxTokens = 1024

	MaxQuestionLength = 2000
	MaxCodeLength     = 20000
)

// Providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const systemPrompt = `You are a patient programming mentor inside a code-snippet workspace.
Explain ideas step by step for a learner. Prefer hints and small examples over
complete solutions unless the learner asks for one. Keep answers under 300
words and use fenced code blocks for code.`

// Prompt is one question, optionally about a piece of code.
type Prompt struct {
	Question string
	Code     string
	Language string
}

// Validate trims the prompt in place and checks its limits.
func (p *Prompt) Validate() error {
	p.Question = strings.TrimSpace(p.Question)
	p.Language = strings.TrimSpace(p.Language)
	if p.Question == "" {
		return apperror.ValidationFailed("question", "question is required")
	}
	if len(p.Question) > MaxQuestionLength {
		return apperror.ValidationFailed("question",
			fmt.Sprintf("question must be %d characters or less", MaxQuestionLength))
	}
	if len(p.Code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	return nil
}

// userMessage lays the prompt out the same way for every provider.
func (p Prompt) userMessage() string {
	if strings.TrimSpace(p.Code) == "" {
		return p.Question
	}
	var b strings.Builder
	b.WriteString(p.Question)
	b.WriteString("\n\n```")
	b.WriteString(p.Language)
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(p.Code, "\n"))
	b.WriteString("\n```")
	return b.String()
}

// Client answers a prompt.
type Client interface {
	Ask(ctx context.Context, p Prompt) (string, error)
	Provider() string
}

// Config selects and configures a provider.
type Config struct {
	Provider        string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	Model           string
	MaxTokens       int
	// BaseURL overrides the provider endpoint. Tests point it at httptest.
	BaseURL string
}

// New returns the configured provider. It returns nil when the chosen
// provider has no API key, and the caller treats the mentor as disabled.
func New(cfg Config, b *breaker.Breaker, logger *slog.Logger) (Client, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, nil
		}
		return NewAnthropic(cfg, b, logger), nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, nil
		}
		return NewOpenAI(cfg, b, logger), nil
	default:
		return nil, fmt.Errorf("mentor: unknown provider %q", cfg.Provider)
	}
}

func emptyAnswer(logger *slog.Logger, provider string) error {
	logger.Warn("mentor returned no text", slog.String("provider", provider))
	return apperror.Unavailable(vendor)
}
