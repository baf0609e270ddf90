package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` fails the build if *Y stops implementing X, instead
// of failing later at the first call site that needs it.
var _ repository.SnippetRepository = (*DB)(nil)

const snippetColumns = `s.id, s.title, s.description, s.content, s.language, s.tags, s.visibility,
	s.owner_id, s.team_id, s.folder_id, s.custom_fields, s.like_count, s.view_count,
	s.created_at, s.updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnippet(r rowScanner) (model.Snippet, error) {
	var s model.Snippet
	var tags, fields string
	var teamID, folderID sql.NullString

	if err := r.Scan(&s.ID, &s.Title, &s.Description, &s.Content, &s.Language, &tags,
		&s.Visibility, &s.OwnerID, &teamID, &folderID, &fields, &s.LikeCount, &s.ViewCount,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		return s, err
	}
	s.TeamID = teamID.String
	s.FolderID = folderID.String

	var err error
	if s.Tags, err = decodeStrings(tags); err != nil {
		return s, fmt.Errorf("decoding tags of snippet %s: %w", s.ID, err)
	}
	if s.CustomFields, err = decodeStringMap(fields); err != nil {
		return s, fmt.Errorf("decoding custom fields of snippet %s: %w", s.ID, err)
	}
	return s, nil
}

// CreateSnippet inserts s and version 1 in one transaction.
//
// Tags and custom fields are stored as JSON text. SQLite's json_each can
// still look inside them, which is how the tag filter works.
func (db *DB) CreateSnippet(ctx context.Context, s *model.Snippet, v *model.SnippetVersion) error {
	if v == nil {
		return fmt.Errorf("sqlite: creating snippet: initial version is required")
	}

	tags, err := encodeJSON(nonNilStrings(s.Tags))
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	fields, err := encodeJSON(nonNilMap(s.CustomFields))
	if err != nil {
		return fmt.Errorf("sqlite: encoding custom fields: %w", err)
	}

	now := time.Now().UTC()
	s.ID = xid.New().String()
	s.CreatedAt = now
	s.UpdatedAt = now

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snippets (id, title, description, content, language, tags, visibility,
				owner_id, team_id, folder_id, custom_fields, like_count, view_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
			s.ID, s.Title, s.Description, s.Content, s.Language, tags, s.Visibility,
			s.OwnerID, nullString(s.TeamID), nullString(s.FolderID), fields, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.ValidationFailed("folderId", "owner, team or folder does not exist")
			}
			return fmt.Errorf("sqlite: creating snippet: %w", err)
		}
		return insertVersion(ctx, tx, s.ID, v, 1)
	})
}

func (db *DB) GetSnippet(ctx context.Context, id string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets s WHERE s.id = ?`, id)
	s, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}
	return &s, nil
}

// ListAccessibleSnippets runs the full access rule:
//
//	public
//	OR owned by the user
//	OR the user is an accepted collaborator
//	OR visibility is team and the user belongs to that team
func (db *DB) ListAccessibleSnippets(ctx context.Context, userID string, f repository.SnippetFilter) ([]model.Snippet, error) {
	access := `(s.visibility = 'public'
		OR s.owner_id = ?
		OR EXISTS (SELECT 1 FROM snippet_collaborators c
			WHERE c.snippet_id = s.id AND c.user_id = ? AND c.accepted_at IS NOT NULL)
		OR (s.visibility = 'team' AND s.team_id IS NOT NULL AND EXISTS (
			SELECT 1 FROM team_members m WHERE m.team_id = s.team_id AND m.user_id = ?)))`

	out, err := db.listSnippets(ctx, access, []any{userID, userID, userID}, f)
	if err != nil && isRecursionLimit(err) {
		return nil, fmt.Errorf("sqlite: listing accessible snippets: %w: %w", repository.ErrPolicyRecursion, err)
	}
	return out, err
}

// ListOwnedOrPublicSnippets is the fallback access rule.
func (db *DB) ListOwnedOrPublicSnippets(ctx context.Context, userID string, f repository.SnippetFilter) ([]model.Snippet, error) {
	return db.listSnippets(ctx, `(s.visibility = 'public' OR s.owner_id = ?)`, []any{userID}, f)
}

func (db *DB) listSnippets(ctx context.Context, access string, args []any, f repository.SnippetFilter) ([]model.Snippet, error) {
	where := []string{access}

	if f.Language != "" {
		where = append(where, "s.language = ?")
		args = append(args, f.Language)
	}
	if f.Visibility != "" {
		where = append(where, "s.visibility = ?")
		args = append(args, f.Visibility)
	}
	if f.OwnerID != "" {
		where = append(where, "s.owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.FolderID != "" {
		where = append(where, "s.folder_id = ?")
		args = append(args, f.FolderID)
	}
	if f.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(s.tags) WHERE json_each.value = ?)")
		args = append(args, f.Tag)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "(s.title LIKE ? ESCAPE '\\' OR s.description LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(q) + "%"
		args = append(args, pattern, pattern)
	}

	opts := f.ListOptions.Normalize()
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets s
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY s.updated_at DESC, s.id DESC
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0, opts.Limit)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	return snippets, nil
}

// UpdateSnippet saves s and appends v as the next version. Last write wins:
// there is no version check on the snippet row itself.
func (db *DB) UpdateSnippet(ctx context.Context, s *model.Snippet, v *model.SnippetVersion) error {
	if v == nil {
		return fmt.Errorf("sqlite: updating snippet %s: version is required", s.ID)
	}

	tags, err := encodeJSON(nonNilStrings(s.Tags))
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	fields, err := encodeJSON(nonNilMap(s.CustomFields))
	if err != nil {
		return fmt.Errorf("sqlite: encoding custom fields: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE snippets
			 SET title = ?, description = ?, content = ?, language = ?, tags = ?, visibility = ?,
			     team_id = ?, folder_id = ?, custom_fields = ?, updated_at = ?
			 WHERE id = ?`,
			s.Title, s.Description, s.Content, s.Language, tags, s.Visibility,
			nullString(s.TeamID), nullString(s.FolderID), fields, s.UpdatedAt, s.ID,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.ValidationFailed("folderId", "team or folder does not exist")
			}
			return fmt.Errorf("sqlite: updating snippet %s: %w", s.ID, err)
		}
		if err := rowsAffected(res, apperror.NotFound("snippet", s.ID)); err != nil {
			return err
		}

		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version_number), 0) + 1 FROM snippet_versions WHERE snippet_id = ?`,
			s.ID,
		).Scan(&next); err != nil {
			return fmt.Errorf("sqlite: next version of snippet %s: %w", s.ID, err)
		}
		return insertVersion(ctx, tx, s.ID, v, next)
	})
}

func (db *DB) DeleteSnippet(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}
	return rowsAffected(res, apperror.NotFound("snippet", id))
}

// =========================================================================
// LIKES AND VIEWS
// =========================================================================

// LikeSnippet records one like per user. The counter on the snippet row is
// only bumped when the like row is new, so repeated likes are harmless.
func (db *DB) LikeSnippet(ctx context.Context, snippetID, userID string) (bool, error) {
	var liked bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO snippet_likes (snippet_id, user_id, created_at) VALUES (?, ?, ?)`,
			snippetID, userID, time.Now().UTC(),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("snippet", snippetID)
			}
			return fmt.Errorf("sqlite: liking snippet %s: %w", snippetID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		liked = true
		_, err = tx.ExecContext(ctx,
			`UPDATE snippets SET like_count = like_count + 1 WHERE id = ?`, snippetID)
		if err != nil {
			return fmt.Errorf("sqlite: counting like on snippet %s: %w", snippetID, err)
		}
		return nil
	})
	return liked, err
}

func (db *DB) UnlikeSnippet(ctx context.Context, snippetID, userID string) (bool, error) {
	var removed bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM snippet_likes WHERE snippet_id = ? AND user_id = ?`, snippetID, userID)
		if err != nil {
			return fmt.Errorf("sqlite: unliking snippet %s: %w", snippetID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		removed = true
		_, err = tx.ExecContext(ctx,
			`UPDATE snippets SET like_count = MAX(like_count - 1, 0) WHERE id = ?`, snippetID)
		if err != nil {
			return fmt.Errorf("sqlite: uncounting like on snippet %s: %w", snippetID, err)
		}
		return nil
	})
	return removed, err
}

func (db *DB) HasLiked(ctx context.Context, snippetID, userID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snippet_likes WHERE snippet_id = ? AND user_id = ?`,
		snippetID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking like on snippet %s: %w", snippetID, err)
	}
	return n > 0, nil
}

// RecordView appends a view row and bumps the counter.
func (db *DB) RecordView(ctx context.Context, snippetID, userID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snippet_views (snippet_id, user_id, viewed_at) VALUES (?, ?, ?)`,
			snippetID, nullString(userID), time.Now().UTC(),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("snippet", snippetID)
			}
			return fmt.Errorf("sqlite: recording view of snippet %s: %w", snippetID, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE snippets SET view_count = view_count + 1 WHERE id = ?`, snippetID)
		if err != nil {
			return fmt.Errorf("sqlite: counting view of snippet %s: %w", snippetID, err)
		}
		return nil
	})
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
