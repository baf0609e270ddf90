// Package sqlite implements the repository interfaces on SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite. No CGo, no C compiler, and the
// binary cross-compiles like any other Go program.
//
// ONE DB, MANY INTERFACES:
// *DB implements every repository interface (profiles, snippets, comments,
// notifications, ...). Method names carry the entity (CreateSnippet,
// CreateComment) so they can live on one type. Each file holds one entity.
//
// PRAGMAS IN THE DSN:
// foreign_keys and busy_timeout are per-connection settings. Running
// "PRAGMA foreign_keys=ON" once would only configure whichever pooled
// connection happened to run it, so they are passed as _pragma parameters
// and applied to every connection the pool opens.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// DB wraps a sql.DB connection pool and implements the repositories.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
//   - "data/vinstackcode.db" is a file database in WAL mode
//   - ":memory:" is an in-memory database, used by tests
func New(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:"

	conn, err := sql.Open("sqlite", dbPath+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate empty database, so the
	// pool must never open a second one.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if !memory {
		// WAL lets readers proceed while a write is in progress. The mode is
		// stored in the file, so setting it once is enough.
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping backs the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates every table. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	for _, m := range migrations {
		if _, err := db.conn.Exec(m.sql); err != nil {
			return fmt.Errorf("creating %s: %w", m.name, err)
		}
	}
	return nil
}

var migrations = []struct {
	name string
	sql  string
}{
	{"profiles", `
		CREATE TABLE IF NOT EXISTS profiles (
			id            TEXT PRIMARY KEY,
			github_id     INTEGER UNIQUE,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles(email);
	`},
	{"folders", `
		CREATE TABLE IF NOT EXISTS folders (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			parent_id  TEXT REFERENCES folders(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_folders_owner ON folders(owner_id);
	`},
	{"teams", `
		CREATE TABLE IF NOT EXISTS teams (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			owner_id   TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS team_members (
			team_id   TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			user_id   TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			role      TEXT NOT NULL,
			joined_at DATETIME NOT NULL,
			PRIMARY KEY (team_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_team_members_user ON team_members(user_id);
	`},
	{"snippets", `
		CREATE TABLE IF NOT EXISTS snippets (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			content       TEXT NOT NULL DEFAULT '',
			language      TEXT NOT NULL,
			tags          TEXT NOT NULL DEFAULT '[]',
			visibility    TEXT NOT NULL,
			owner_id      TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			team_id       TEXT REFERENCES teams(id) ON DELETE SET NULL,
			folder_id     TEXT REFERENCES folders(id) ON DELETE SET NULL,
			custom_fields TEXT NOT NULL DEFAULT '{}',
			like_count    INTEGER NOT NULL DEFAULT 0,
			view_count    INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_owner ON snippets(owner_id);
		CREATE INDEX IF NOT EXISTS idx_snippets_visibility ON snippets(visibility);
		CREATE INDEX IF NOT EXISTS idx_snippets_updated_at ON snippets(updated_at);
	`},
	{"snippet_versions", `
		CREATE TABLE IF NOT EXISTS snippet_versions (
			id             TEXT PRIMARY KEY,
			snippet_id     TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			version_number INTEGER NOT NULL,
			content        TEXT NOT NULL,
			change_message TEXT NOT NULL DEFAULT '',
			author_id      TEXT NOT NULL,
			created_at     DATETIME NOT NULL,
			UNIQUE (snippet_id, version_number)
		);
	`},
	{"snippet_collaborators", `
		CREATE TABLE IF NOT EXISTS snippet_collaborators (
			snippet_id  TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			user_id     TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			role        TEXT NOT NULL,
			invited_by  TEXT NOT NULL,
			accepted_at DATETIME,
			created_at  DATETIME NOT NULL,
			PRIMARY KEY (snippet_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_collaborators_user ON snippet_collaborators(user_id);
	`},
	{"snippet_comments", `
		CREATE TABLE IF NOT EXISTS snippet_comments (
			id          TEXT PRIMARY KEY,
			snippet_id  TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			author_id   TEXT NOT NULL,
			parent_id   TEXT REFERENCES snippet_comments(id) ON DELETE CASCADE,
			content     TEXT NOT NULL,
			line        INTEGER,
			is_resolved INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_comments_snippet ON snippet_comments(snippet_id, created_at);
	`},
	{"snippet_likes", `
		CREATE TABLE IF NOT EXISTS snippet_likes (
			snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (snippet_id, user_id)
		);
	`},
	{"snippet_views", `
		CREATE TABLE IF NOT EXISTS snippet_views (
			snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			user_id    TEXT,
			viewed_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_views_snippet ON snippet_views(snippet_id);
	`},
	{"notifications", `
		CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			message    TEXT NOT NULL DEFAULT '',
			data       TEXT NOT NULL DEFAULT '{}',
			is_read    INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
	`},
	{"activities", `
		CREATE TABLE IF NOT EXISTS activities (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			kind       TEXT NOT NULL,
			subject_id TEXT NOT NULL DEFAULT '',
			summary    TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id, created_at);
	`},
	{"subscriptions", `
		CREATE TABLE IF NOT EXISTS subscriptions (
			user_id             TEXT PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
			customer_id         TEXT NOT NULL DEFAULT '',
			checkout_session_id TEXT NOT NULL DEFAULT '',
			price_id            TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL,
			updated_at          DATETIME NOT NULL
		);
	`},
	{"players", `
		CREATE TABLE IF NOT EXISTS players (
			user_id    TEXT PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
			level      INTEGER NOT NULL DEFAULT 1,
			experience INTEGER NOT NULL DEFAULT 0,
			code_coins INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS player_quests (
			user_id      TEXT NOT NULL REFERENCES players(user_id) ON DELETE CASCADE,
			quest_id     TEXT NOT NULL,
			score        INTEGER NOT NULL,
			completed_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, quest_id)
		);
	`},
}

// =========================================================================
// HELPERS
// =========================================================================

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY failure.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Primary code only, when extended codes are off.
		msg := se.Error()
		return strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "PRIMARY KEY")
	default:
		return false
	}
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY failure.
func isForeignKeyViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY ||
		(se.Code() == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "FOREIGN KEY"))
}

// isRecursionLimit reports whether SQLite refused a statement for nesting
// too deeply.
func isRecursionLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "recursion") ||
		strings.Contains(msg, "expression tree is too large")
}

// nullString stores "" as NULL so optional references stay valid.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeStringMap(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// rowsAffected turns a zero-row write into NotFound.
func rowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// withTx runs fn inside a transaction and commits when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}
