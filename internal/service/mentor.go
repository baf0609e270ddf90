package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/integration/mentor"
)

// Answer is the mentor's reply and which provider gave it.
type Answer struct {
	Answer   string `json:"answer"`
	Provider string `json:"provider"`
}

type MentorService struct {
	client mentor.Client
	logger *slog.Logger
}

// NewMentorService accepts a nil client when no provider is configured.
func NewMentorService(client mentor.Client, logger *slog.Logger) *MentorService {
	return &MentorService{client: client, logger: logger}
}

func (s *MentorService) Ask(ctx context.Context, userID string, p mentor.Prompt) (*Answer, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to ask the mentor")
	}
	// Bad input is reported even when the mentor is switched off.
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, apperror.Unavailable("AI mentor")
	}

	start := time.Now()
	text, err := s.client.Ask(ctx, p)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("mentor answered",
		slog.String("userId", userID),
		slog.String("provider", s.client.Provider()),
		slog.Duration("duration", time.Since(start)),
	)
	return &Answer{Answer: text, Provider: s.client.Provider()}, nil
}
