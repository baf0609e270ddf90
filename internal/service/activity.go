package service

import (
	"context"
	"fmt"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// ActivityService reads the feed the other services write through
// sideEffects.recordActivity.
type ActivityService struct {
	repo repository.ActivityRepository
}

func NewActivityService(repo repository.ActivityRepository) *ActivityService {
	return &ActivityService{repo: repo}
}

// Feed returns the user's own activity, newest first.
func (s *ActivityService) Feed(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Activity, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to see your activity")
	}
	list, err := s.repo.ListActivities(ctx, userID, opts.Normalize())
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	return list, nil
}
