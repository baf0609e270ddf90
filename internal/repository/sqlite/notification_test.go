package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

func createTestNotification(t *testing.T, db *DB, userID, title string) *model.Notification {
	t.Helper()
	n := &model.Notification{UserID: userID, Type: model.NotificationComment, Title: title,
		Data: map[string]string{"snippetId": "s1"}}
	if err := db.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}
	return n
}

func TestNotifications_ReadFlow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestProfile(t, db, "ada")

	first := createTestNotification(t, db, ada.ID, "one")
	createTestNotification(t, db, ada.ID, "two")
	createTestNotification(t, db, ada.ID, "three")

	unread, err := db.CountUnread(ctx, ada.ID)
	if err != nil || unread != 3 {
		t.Fatalf("CountUnread() = %d, %v; want 3", unread, err)
	}

	if err := db.MarkNotificationRead(ctx, ada.ID, first.ID); err != nil {
		t.Fatalf("MarkNotificationRead() error = %v", err)
	}
	// Marking an already-read notification is fine.
	if err := db.MarkNotificationRead(ctx, ada.ID, first.ID); err != nil {
		t.Fatalf("second MarkNotificationRead() error = %v", err)
	}

	changed, err := db.MarkAllNotificationsRead(ctx, ada.ID)
	if err != nil {
		t.Fatalf("MarkAllNotificationsRead() error = %v", err)
	}
	if changed != 2 {
		t.Errorf("MarkAllNotificationsRead() changed %d, want 2", changed)
	}
	if unread, _ := db.CountUnread(ctx, ada.ID); unread != 0 {
		t.Errorf("CountUnread() after read-all = %d, want 0", unread)
	}

	list, err := db.ListNotifications(ctx, ada.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(list) != 3 || list[0].Title != "three" {
		t.Errorf("ListNotifications() = %d rows starting %q, want 3 newest first", len(list), list[0].Title)
	}
	if list[2].Data["snippetId"] != "s1" {
		t.Errorf("Data = %v, want snippetId=s1", list[2].Data)
	}
}

func TestNotifications_ScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestProfile(t, db, "ada")
	eve := createTestProfile(t, db, "eve")
	n := createTestNotification(t, db, ada.ID, "private")

	if err := db.MarkNotificationRead(ctx, eve.ID, n.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("MarkNotificationRead() by another user error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteNotification(ctx, eve.ID, n.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteNotification() by another user error = %v, want ErrNotFound", err)
	}

	if err := db.DeleteNotification(ctx, ada.ID, n.ID); err != nil {
		t.Fatalf("DeleteNotification() error = %v", err)
	}
	if _, err := db.GetNotification(ctx, n.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetNotification() after delete error = %v, want ErrNotFound", err)
	}
}
