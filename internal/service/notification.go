package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/events"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// NotificationService owns a user's inbox.
//
// ONE-WAY STATES:
// A notification goes unread → read and present → deleted, never back. The
// repository scopes every write by user id, so touching someone else's
// notification looks exactly like touching one that does not exist.
//
// Every change is published on the user's private room, which is how a
// second browser tab learns that the first one marked everything read.
type NotificationService struct {
	repo   repository.NotificationRepository
	fx     sideEffects
	logger *slog.Logger
}

var _ Notifier = (*NotificationService)(nil)

func NewNotificationService(repo repository.NotificationRepository, publisher events.Publisher, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		repo:   repo,
		fx:     sideEffects{publisher: publisher, logger: logger},
		logger: logger,
	}
}

// Notify stores n and pushes it to the recipient.
func (s *NotificationService) Notify(ctx context.Context, n *model.Notification) error {
	if n.UserID == "" {
		return apperror.ValidationFailed("userId", "notification needs a recipient")
	}
	if !n.Type.Valid() {
		return apperror.ValidationFailed("type", fmt.Sprintf("unknown notification type %q", n.Type))
	}
	n.IsRead = false
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	s.fx.userChanged(ctx, events.TableNotifications, events.ActionInsert, n.UserID, n.ID, n)
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Notification, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to see notifications")
	}
	list, err := s.repo.ListNotifications(ctx, userID, opts.Normalize())
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return list, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, apperror.Unauthorized("sign in to see notifications")
	}
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one notification read. Marking it again is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if userID == "" {
		return apperror.Unauthorized("sign in to manage notifications")
	}
	if err := s.repo.MarkNotificationRead(ctx, userID, id); err != nil {
		return err
	}
	s.fx.userChanged(ctx, events.TableNotifications, events.ActionUpdate, userID, id, map[string]bool{"isRead": true})
	return nil
}

// MarkAllRead returns how many notifications changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, apperror.Unauthorized("sign in to manage notifications")
	}
	n, err := s.repo.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	if n > 0 {
		s.logger.Debug("notifications marked read", slog.String("userId", userID), slog.Int("count", n))
		s.fx.userChanged(ctx, events.TableNotifications, events.ActionUpdate, userID, "*", map[string]bool{"isRead": true})
	}
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return apperror.Unauthorized("sign in to manage notifications")
	}
	if err := s.repo.DeleteNotification(ctx, userID, id); err != nil {
		return err
	}
	s.fx.userChanged(ctx, events.TableNotifications, events.ActionDelete, userID, id, nil)
	return nil
}
