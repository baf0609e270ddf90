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

var (
	_ repository.TeamRepository   = (*DB)(nil)
	_ repository.FolderRepository = (*DB)(nil)
)

// =========================================================================
// TEAMS
// =========================================================================

// CreateTeam inserts the team and its owner's membership together, so a
// team never exists without someone able to manage it.
func (db *DB) CreateTeam(ctx context.Context, t *model.Team) error {
	t.ID = xid.New().String()
	t.CreatedAt = time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO teams (id, name, owner_id, created_at) VALUES (?, ?, ?, ?)`,
			t.ID, t.Name, t.OwnerID, t.CreatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("profile", t.OwnerID)
			}
			return fmt.Errorf("sqlite: creating team: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
			t.ID, t.OwnerID, model.TeamRoleOwner, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("sqlite: adding owner to team %s: %w", t.ID, err)
		}
		return nil
	})
}

func (db *DB) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	var t model.Team
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM teams WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.OwnerID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("team", id)
		}
		return nil, fmt.Errorf("sqlite: getting team %s: %w", id, err)
	}
	return &t, nil
}

func (db *DB) ListTeamsForUser(ctx context.Context, userID string) ([]model.Team, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.id, t.name, t.owner_id, t.created_at
		 FROM teams t JOIN team_members m ON m.team_id = t.id
		 WHERE m.user_id = ? ORDER BY t.name, t.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing teams of %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.Team
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.OwnerID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning team row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating teams: %w", err)
	}
	return out, nil
}

func (db *DB) AddTeamMember(ctx context.Context, m *model.TeamMember) error {
	m.JoinedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		m.TeamID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflictf("user %s is already a member", m.UserID)
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("team or user", m.TeamID+"/"+m.UserID)
		}
		return fmt.Errorf("sqlite: adding member to team %s: %w", m.TeamID, err)
	}
	return nil
}

func (db *DB) GetTeamMember(ctx context.Context, teamID, userID string) (*model.TeamMember, error) {
	var m model.TeamMember
	err := db.conn.QueryRowContext(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	).Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("team member", userID)
		}
		return nil, fmt.Errorf("sqlite: getting member %s of team %s: %w", userID, teamID, err)
	}
	return &m, nil
}

func (db *DB) ListTeamMembers(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_members
		 WHERE team_id = ? ORDER BY joined_at, user_id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing members of team %s: %w", teamID, err)
	}
	defer rows.Close()

	var out []model.TeamMember
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning team member row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating team members: %w", err)
	}
	return out, nil
}

func (db *DB) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
	if err != nil {
		return fmt.Errorf("sqlite: removing member %s from team %s: %w", userID, teamID, err)
	}
	return rowsAffected(res, apperror.NotFound("team member", userID))
}

// =========================================================================
// FOLDERS
// =========================================================================

func (db *DB) CreateFolder(ctx context.Context, f *model.Folder) error {
	f.ID = xid.New().String()
	f.CreatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO folders (id, owner_id, name, parent_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.OwnerID, f.Name, nullString(f.ParentID), f.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("parent folder", f.ParentID)
		}
		return fmt.Errorf("sqlite: creating folder: %w", err)
	}
	return nil
}

func (db *DB) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	var f model.Folder
	var parent sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, owner_id, name, parent_id, created_at FROM folders WHERE id = ?`, id,
	).Scan(&f.ID, &f.OwnerID, &f.Name, &parent, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("folder", id)
		}
		return nil, fmt.Errorf("sqlite: getting folder %s: %w", id, err)
	}
	f.ParentID = parent.String
	return &f, nil
}

func (db *DB) ListFolders(ctx context.Context, ownerID string) ([]model.Folder, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, owner_id, name, parent_id, created_at FROM folders
		 WHERE owner_id = ? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing folders of %s: %w", ownerID, err)
	}
	defer rows.Close()

	var out []model.Folder
	for rows.Next() {
		var f model.Folder
		var parent sql.NullString
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &parent, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning folder row: %w", err)
		}
		f.ParentID = parent.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating folders: %w", err)
	}
	return out, nil
}
