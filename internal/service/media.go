package service

import (
	"context"
	"log/slog"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/integration/video"
)

// SpeechSynthesizer turns text into audio bytes (audio/mpeg).
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// VideoGenerator starts and inspects tutorial video jobs.
type VideoGenerator interface {
	Create(ctx context.Context, script, name string) (*video.Video, error)
	Get(ctx context.Context, id string) (*video.Video, error)
}

// MediaService fronts the speech and video vendors for signed-in users.
// Either vendor may be nil when it is not configured.
type MediaService struct {
	speech SpeechSynthesizer
	videos VideoGenerator
	logger *slog.Logger
}

func NewMediaService(speech SpeechSynthesizer, videos VideoGenerator, logger *slog.Logger) *MediaService {
	return &MediaService{speech: speech, videos: videos, logger: logger}
}

func (s *MediaService) Speech(ctx context.Context, userID, text string) ([]byte, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to use text to speech")
	}
	if s.speech == nil {
		return nil, apperror.Unavailable("text to speech")
	}
	return s.speech.Synthesize(ctx, text)
}

func (s *MediaService) CreateVideo(ctx context.Context, userID, script, name string) (*video.Video, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to generate videos")
	}
	if s.videos == nil {
		return nil, apperror.Unavailable("video generation")
	}
	v, err := s.videos.Create(ctx, script, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("video generation started", slog.String("userId", userID), slog.String("videoId", v.ID))
	return v, nil
}

func (s *MediaService) Video(ctx context.Context, userID, id string) (*video.Video, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to view videos")
	}
	if s.videos == nil {
		return nil, apperror.Unavailable("video generation")
	}
	return s.videos.Get(ctx, id)
}
