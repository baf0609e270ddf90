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

var _ repository.CommentRepository = (*DB)(nil)

const commentColumns = `id, snippet_id, author_id, parent_id, content, line, is_resolved, created_at, updated_at`

func scanComment(r rowScanner) (model.Comment, error) {
	var c model.Comment
	var parent sql.NullString
	var line sql.NullInt64
	if err := r.Scan(&c.ID, &c.SnippetID, &c.AuthorID, &parent, &c.Content, &line,
		&c.IsResolved, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	c.ParentID = parent.String
	if line.Valid {
		n := int(line.Int64)
		c.Line = &n
	}
	return c, nil
}

// CreateComment inserts c. A ParentID that does not exist is rejected by the
// foreign key, which is what keeps orphans out of the table.
func (db *DB) CreateComment(ctx context.Context, c *model.Comment) error {
	now := time.Now().UTC()
	c.ID = xid.New().String()
	c.CreatedAt = now
	c.UpdatedAt = now

	var line sql.NullInt64
	if c.Line != nil {
		line = sql.NullInt64{Int64: int64(*c.Line), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippet_comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SnippetID, c.AuthorID, nullString(c.ParentID), c.Content, line, c.IsResolved,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("snippet or parent comment", c.SnippetID)
		}
		return fmt.Errorf("sqlite: creating comment on snippet %s: %w", c.SnippetID, err)
	}
	return nil
}

func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM snippet_comments WHERE id = ?`, id)
	c, err := scanComment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return &c, nil
}

// ListComments returns flat rows, oldest first. Thread assembly happens in
// the service.
func (db *DB) ListComments(ctx context.Context, snippetID string) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM snippet_comments
		 WHERE snippet_id = ? ORDER BY created_at, id`, snippetID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments of snippet %s: %w", snippetID, err)
	}
	defer rows.Close()

	var out []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return out, nil
}

func (db *DB) SetCommentResolved(ctx context.Context, id string, resolved bool) (*model.Comment, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE snippet_comments SET is_resolved = ?, updated_at = ? WHERE id = ?`,
		resolved, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: resolving comment %s: %w", id, err)
	}
	if err := rowsAffected(res, apperror.NotFound("comment", id)); err != nil {
		return nil, err
	}
	return db.GetComment(ctx, id)
}

// DeleteComment removes a comment. ON DELETE CASCADE on parent_id removes
// the whole reply subtree with it.
func (db *DB) DeleteComment(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM snippet_comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
	}
	return rowsAffected(res, apperror.NotFound("comment", id))
}
