package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
)

// insertVersion writes v as version number n of snippetID. Versions are
// append-only: nothing in this package updates or deletes a version row
// except the cascade when the snippet itself goes away.
func insertVersion(ctx context.Context, tx *sql.Tx, snippetID string, v *model.SnippetVersion, n int) error {
	v.ID = xid.New().String()
	v.SnippetID = snippetID
	v.VersionNumber = n
	v.CreatedAt = time.Now().UTC()

	_, err := tx.ExecContext(ctx,
		`INSERT INTO snippet_versions (id, snippet_id, version_number, content, change_message, author_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SnippetID, v.VersionNumber, v.Content, v.ChangeMessage, v.AuthorID, v.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflictf("version %d of snippet %s already exists", n, snippetID)
		}
		return fmt.Errorf("sqlite: inserting version %d of snippet %s: %w", n, snippetID, err)
	}
	return nil
}

// ListVersions returns a snippet's history, newest first.
func (db *DB) ListVersions(ctx context.Context, snippetID string) ([]model.SnippetVersion, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, snippet_id, version_number, content, change_message, author_id, created_at
		 FROM snippet_versions WHERE snippet_id = ?
		 ORDER BY version_number DESC`,
		snippetID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing versions of snippet %s: %w", snippetID, err)
	}
	defer rows.Close()

	var versions []model.SnippetVersion
	for rows.Next() {
		var v model.SnippetVersion
		if err := rows.Scan(&v.ID, &v.SnippetID, &v.VersionNumber, &v.Content,
			&v.ChangeMessage, &v.AuthorID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning version row: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating versions: %w", err)
	}
	return versions, nil
}

func (db *DB) GetVersion(ctx context.Context, snippetID string, number int) (*model.SnippetVersion, error) {
	var v model.SnippetVersion
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, snippet_id, version_number, content, change_message, author_id, created_at
		 FROM snippet_versions WHERE snippet_id = ? AND version_number = ?`,
		snippetID, number,
	).Scan(&v.ID, &v.SnippetID, &v.VersionNumber, &v.Content, &v.ChangeMessage, &v.AuthorID, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet version", snippetID+"@"+strconv.Itoa(number))
		}
		return nil, fmt.Errorf("sqlite: getting version %d of snippet %s: %w", number, snippetID, err)
	}
	return &v, nil
}
