package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

var _ repository.NotificationRepository = (*DB)(nil)

const notificationColumns = `id, user_id, type, title, message, data, is_read, created_at`

func scanNotification(r rowScanner) (model.Notification, error) {
	var n model.Notification
	var data string
	if err := r.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data,
		&n.IsRead, &n.CreatedAt); err != nil {
		return n, err
	}
	var err error
	if n.Data, err = decodeStringMap(data); err != nil {
		return n, fmt.Errorf("decoding data of notification %s: %w", n.ID, err)
	}
	return n, nil
}

func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	data, err := encodeJSON(nonNilMap(n.Data))
	if err != nil {
		return fmt.Errorf("sqlite: encoding notification data: %w", err)
	}
	n.ID = xid.New().String()
	n.CreatedAt = time.Now().UTC()
	n.IsRead = false

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, data, n.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("profile", n.UserID)
		}
		return fmt.Errorf("sqlite: creating notification for %s: %w", n.UserID, err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Notification, error) {
	opts = opts.Normalize()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications of %s: %w", userID, err)
	}
	defer rows.Close()

	out := make([]model.Notification, 0, opts.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notifications: %w", err)
	}
	return out, nil
}

func (db *DB) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("notification", id)
		}
		return nil, fmt.Errorf("sqlite: getting notification %s: %w", id, err)
	}
	return &n, nil
}

// MarkNotificationRead is scoped by user_id, so another user's notification
// looks exactly like a missing one. Marking twice is not an error.
func (db *DB) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
	}
	return rowsAffected(res, apperror.NotFound("notification", id))
}

func (db *DB) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marking notifications of %s read: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return int(n), nil
}

func (db *DB) DeleteNotification(ctx context.Context, userID, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting notification %s: %w", id, err)
	}
	return rowsAffected(res, apperror.NotFound("notification", id))
}

func (db *DB) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting unread notifications of %s: %w", userID, err)
	}
	return n, nil
}
