package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

var _ repository.CollaboratorRepository = (*DB)(nil)

const collaboratorSelect = `SELECT c.snippet_id, c.user_id, COALESCE(p.username, ''), c.role, c.invited_by,
	c.accepted_at, c.created_at
	FROM snippet_collaborators c
	LEFT JOIN profiles p ON p.id = c.user_id`

func scanCollaborator(r rowScanner) (model.Collaborator, error) {
	var c model.Collaborator
	var accepted sql.NullTime
	if err := r.Scan(&c.SnippetID, &c.UserID, &c.Username, &c.Role, &c.InvitedBy,
		&accepted, &c.CreatedAt); err != nil {
		return c, err
	}
	if accepted.Valid {
		t := accepted.Time
		c.AcceptedAt = &t
	}
	return c, nil
}

// AddCollaborator inserts a pending invitation. Inviting the same user twice
// is a conflict.
func (db *DB) AddCollaborator(ctx context.Context, c *model.Collaborator) error {
	c.CreatedAt = time.Now().UTC()

	var accepted sql.NullTime
	if c.AcceptedAt != nil {
		accepted = sql.NullTime{Time: *c.AcceptedAt, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippet_collaborators (snippet_id, user_id, role, invited_by, accepted_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.SnippetID, c.UserID, c.Role, c.InvitedBy, accepted, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflictf("user %s is already a collaborator", c.UserID)
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("snippet or user", c.SnippetID+"/"+c.UserID)
		}
		return fmt.Errorf("sqlite: adding collaborator to snippet %s: %w", c.SnippetID, err)
	}
	return nil
}

func (db *DB) GetCollaborator(ctx context.Context, snippetID, userID string) (*model.Collaborator, error) {
	row := db.conn.QueryRowContext(ctx,
		collaboratorSelect+` WHERE c.snippet_id = ? AND c.user_id = ?`, snippetID, userID)
	c, err := scanCollaborator(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("collaborator", userID)
		}
		return nil, fmt.Errorf("sqlite: getting collaborator %s on snippet %s: %w", userID, snippetID, err)
	}
	return &c, nil
}

// ListCollaborators returns the roster in invitation order.
func (db *DB) ListCollaborators(ctx context.Context, snippetID string) ([]model.Collaborator, error) {
	rows, err := db.conn.QueryContext(ctx,
		collaboratorSelect+` WHERE c.snippet_id = ? ORDER BY c.created_at, c.user_id`, snippetID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing collaborators of snippet %s: %w", snippetID, err)
	}
	defer rows.Close()

	var out []model.Collaborator
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning collaborator row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating collaborators: %w", err)
	}
	return out, nil
}

// AcceptCollaborator stamps accepted_at. Accepting twice keeps the first
// timestamp.
func (db *DB) AcceptCollaborator(ctx context.Context, snippetID, userID string) (*model.Collaborator, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE snippet_collaborators SET accepted_at = COALESCE(accepted_at, ?)
		 WHERE snippet_id = ? AND user_id = ?`,
		time.Now().UTC(), snippetID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: accepting invitation on snippet %s: %w", snippetID, err)
	}
	if err := rowsAffected(res, apperror.NotFound("invitation", snippetID)); err != nil {
		return nil, err
	}
	return db.GetCollaborator(ctx, snippetID, userID)
}

func (db *DB) RemoveCollaborator(ctx context.Context, snippetID, userID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM snippet_collaborators WHERE snippet_id = ? AND user_id = ?`, snippetID, userID)
	if err != nil {
		return fmt.Errorf("sqlite: removing collaborator %s from snippet %s: %w", userID, snippetID, err)
	}
	return rowsAffected(res, apperror.NotFound("collaborator", userID))
}
