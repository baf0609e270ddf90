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

var _ repository.ProfileRepository = (*DB)(nil)

const profileColumns = `id, github_id, username, email, avatar_url, password_hash, created_at, updated_at`

// UpsertGitHubProfile inserts or refreshes a profile keyed by GitHub ID.
//
// The internal ID of an existing profile is kept: snippets, comments and
// notifications all point at it. Only the fields GitHub owns (username,
// email, avatar) are refreshed.
func (db *DB) UpsertGitHubProfile(ctx context.Context, p *model.Profile) error {
	if p.GitHubID == 0 {
		return apperror.ValidationFailed("githubId", "github id is required")
	}

	var existingID string
	var createdAt time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM profiles WHERE github_id = ?`, p.GitHubID,
	).Scan(&existingID, &createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up profile by github_id %d: %w", p.GitHubID, err)
	}

	now := time.Now().UTC()
	if existingID != "" {
		p.ID = existingID
		p.CreatedAt = createdAt
		p.UpdatedAt = now
		_, err = db.conn.ExecContext(ctx,
			`UPDATE profiles SET username = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			p.Username, p.Email, p.AvatarURL, p.UpdatedAt, p.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflictf("username %q is already taken", p.Username)
			}
			return fmt.Errorf("sqlite: updating profile %s: %w", p.ID, err)
		}
		return nil
	}

	return db.insertProfile(ctx, p, now)
}

// CreateProfile inserts a password-registered profile.
func (db *DB) CreateProfile(ctx context.Context, p *model.Profile) error {
	return db.insertProfile(ctx, p, time.Now().UTC())
}

func (db *DB) insertProfile(ctx context.Context, p *model.Profile, now time.Time) error {
	p.ID = xid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullInt64(p.GitHubID), p.Username, p.Email, p.AvatarURL, p.PasswordHash,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflictf("username %q is already taken", p.Username)
		}
		return fmt.Errorf("sqlite: inserting profile %q: %w", p.Username, err)
	}
	return nil
}

func (db *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	return db.getProfile(ctx, "id", id)
}

func (db *DB) GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error) {
	return db.getProfile(ctx, "username", username)
}

func (db *DB) GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return db.getProfile(ctx, "email", email)
}

// getProfile looks a profile up by one column. column is always a literal
// from this file, never user input.
func (db *DB) getProfile(ctx context.Context, column, value string) (*model.Profile, error) {
	var p model.Profile
	var githubID sql.NullInt64

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE `+column+` = ? LIMIT 1`, value,
	).Scan(&p.ID, &githubID, &p.Username, &p.Email, &p.AvatarURL, &p.PasswordHash,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", value)
		}
		return nil, fmt.Errorf("sqlite: getting profile by %s: %w", column, err)
	}
	p.GitHubID = githubID.Int64
	return &p, nil
}
