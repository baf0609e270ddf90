package collabclient

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
)

// NotificationAPI is the server side of the notification center.
type NotificationAPI interface {
	Notifications(ctx context.Context) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// NotificationCenter holds the user's notifications.
//
// OPTIMISTIC UPDATES:
// Every mutation changes the local list first so the screen reacts at once,
// then calls the server. If the server refuses, exactly that change is
// undone (not the whole list, which may have moved on in the meantime) and
// the error is returned.
//
// It is also a Reconciler, so a Session on the notification channel keeps
// it fresh.
type NotificationCenter struct {
	api    NotificationAPI
	logger *slog.Logger

	mu    sync.RWMutex
	items []model.Notification
}

func NewNotificationCenter(api NotificationAPI, logger *slog.Logger) *NotificationCenter {
	return &NotificationCenter{api: api, logger: logger}
}

// Reconcile replaces the list with the server's.
func (nc *NotificationCenter) Reconcile(ctx context.Context) error {
	items, err := nc.api.Notifications(ctx)
	if err != nil {
		return err
	}
	nc.mu.Lock()
	nc.items = items
	nc.mu.Unlock()
	return nil
}

// Items returns a copy of the list, newest first as the server sent it.
func (nc *NotificationCenter) Items() []model.Notification {
	nc.mu.RLock()
	defer nc.mu.RUnlock()
	return slices.Clone(nc.items)
}

// UnreadCount is derived from the list; it is never stored.
func (nc *NotificationCenter) UnreadCount() int {
	nc.mu.RLock()
	defer nc.mu.RUnlock()
	n := 0
	for _, it := range nc.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// MarkRead marks one notification read.
func (nc *NotificationCenter) MarkRead(ctx context.Context, id string) error {
	nc.mu.Lock()
	i := nc.indexLocked(id)
	if i < 0 {
		nc.mu.Unlock()
		return apperror.NotFound("notification", id)
	}
	wasRead := nc.items[i].IsRead
	nc.items[i].IsRead = true
	nc.mu.Unlock()

	if wasRead {
		return nil
	}
	if err := nc.api.MarkRead(ctx, id); err != nil {
		nc.mu.Lock()
		if j := nc.indexLocked(id); j >= 0 {
			nc.items[j].IsRead = false
		}
		nc.mu.Unlock()
		nc.logger.Warn("mark read failed, rolled back", slog.String("notificationId", id), slog.String("error", err.Error()))
		return err
	}
	return nil
}

// MarkAllRead marks every notification read. Afterwards UnreadCount is 0.
// The server is always asked, even when the local list has nothing unread:
// the list can be stale, and the server owns the rows. A failure rolls back
// only the items this call flipped.
func (nc *NotificationCenter) MarkAllRead(ctx context.Context) error {
	nc.mu.Lock()
	var flipped []string
	for i := range nc.items {
		if !nc.items[i].IsRead {
			nc.items[i].IsRead = true
			flipped = append(flipped, nc.items[i].ID)
		}
	}
	nc.mu.Unlock()

	if err := nc.api.MarkAllRead(ctx); err != nil {
		nc.mu.Lock()
		for _, id := range flipped {
			if j := nc.indexLocked(id); j >= 0 {
				nc.items[j].IsRead = false
			}
		}
		nc.mu.Unlock()
		nc.logger.Warn("mark all read failed, rolled back", slog.Int("count", len(flipped)), slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Delete removes a notification. A notification the server no longer has
// stays deleted locally.
func (nc *NotificationCenter) Delete(ctx context.Context, id string) error {
	nc.mu.Lock()
	i := nc.indexLocked(id)
	if i < 0 {
		nc.mu.Unlock()
		return apperror.NotFound("notification", id)
	}
	removed := nc.items[i]
	nc.items = slices.Delete(nc.items, i, i+1)
	nc.mu.Unlock()

	err := nc.api.DeleteNotification(ctx, id)
	if err == nil || errors.Is(err, apperror.ErrNotFound) {
		return nil
	}

	nc.mu.Lock()
	if nc.indexLocked(id) < 0 {
		at := min(i, len(nc.items))
		nc.items = slices.Insert(nc.items, at, removed)
	}
	nc.mu.Unlock()
	nc.logger.Warn("delete failed, rolled back", slog.String("notificationId", id), slog.String("error", err.Error()))
	return err
}

func (nc *NotificationCenter) indexLocked(id string) int {
	return slices.IndexFunc(nc.items, func(n model.Notification) bool { return n.ID == id })
}
