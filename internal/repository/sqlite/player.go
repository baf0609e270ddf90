package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/game"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

var (
	_ repository.PlayerRepository       = (*DB)(nil)
	_ repository.ActivityRepository     = (*DB)(nil)
	_ repository.SubscriptionRepository = (*DB)(nil)
)

// =========================================================================
// PLAYERS
// =========================================================================

// GetPlayer loads the progression row and the ids of completed quests in
// completion order.
func (db *DB) GetPlayer(ctx context.Context, userID string) (*model.Player, error) {
	p := model.Player{UserID: userID, CompletedQuests: []string{}}
	err := db.conn.QueryRowContext(ctx,
		`SELECT level, experience, code_coins FROM players WHERE user_id = ?`, userID,
	).Scan(&p.Level, &p.Experience, &p.CodeCoins)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("player", userID)
		}
		return nil, fmt.Errorf("sqlite: getting player %s: %w", userID, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT quest_id FROM player_quests WHERE user_id = ? ORDER BY completed_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing quests of player %s: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning quest row: %w", err)
		}
		p.CompletedQuests = append(p.CompletedQuests, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating quests: %w", err)
	}
	return &p, nil
}

// RecordCompletion adds the gains to the player row in SQL, so the stored
// totals never depend on a snapshot the caller read earlier. The level is
// recomputed from the new experience in the same statement. The
// (user_id, quest_id) primary key rejects a second completion of the same
// quest and the whole transaction rolls back with it.
func (db *DB) RecordCompletion(ctx context.Context, c repository.Completion) (*model.Player, error) {
	now := time.Now().UTC()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO players (user_id, level, experience, code_coins, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
			   experience = players.experience + excluded.experience,
			   code_coins = players.code_coins + excluded.code_coins,
			   level = (players.experience + excluded.experience) / ? + 1,
			   updated_at = excluded.updated_at`,
			c.UserID, game.LevelFor(c.XPGained), c.XPGained, c.CoinsGained, now, game.ExperiencePerLevel)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("profile", c.UserID)
			}
			return fmt.Errorf("sqlite: saving player %s: %w", c.UserID, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO player_quests (user_id, quest_id, score, completed_at) VALUES (?, ?, ?, ?)`,
			c.UserID, c.QuestID, c.Score, now)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflictf("quest %s is already completed", c.QuestID)
			}
			return fmt.Errorf("sqlite: recording quest %s for %s: %w", c.QuestID, c.UserID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db.GetPlayer(ctx, c.UserID)
}

// =========================================================================
// ACTIVITIES
// =========================================================================

func (db *DB) AddActivity(ctx context.Context, a *model.Activity) error {
	a.ID = xid.New().String()
	a.CreatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO activities (id, user_id, kind, subject_id, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Kind, a.SubjectID, a.Summary, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: adding activity for %s: %w", a.UserID, err)
	}
	return nil
}

// ListActivities returns a user's feed, newest first.
func (db *DB) ListActivities(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Activity, error) {
	opts = opts.Normalize()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, kind, subject_id, summary, created_at FROM activities
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing activities of %s: %w", userID, err)
	}
	defer rows.Close()

	out := make([]model.Activity, 0, opts.Limit)
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Kind, &a.SubjectID, &a.Summary, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning activity row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating activities: %w", err)
	}
	return out, nil
}

// =========================================================================
// SUBSCRIPTIONS
// =========================================================================

// UpsertSubscription keeps one row per user. An empty customer id never
// overwrites a stored one: the portal needs it.
func (db *DB) UpsertSubscription(ctx context.Context, s *model.Subscription) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, customer_id, checkout_session_id, price_id, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   customer_id = CASE WHEN excluded.customer_id = '' THEN subscriptions.customer_id ELSE excluded.customer_id END,
		   checkout_session_id = excluded.checkout_session_id,
		   price_id = excluded.price_id,
		   status = excluded.status,
		   updated_at = excluded.updated_at`,
		s.UserID, s.CustomerID, s.CheckoutSessionID, s.PriceID, s.Status, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: saving subscription of %s: %w", s.UserID, err)
	}
	return nil
}

func (db *DB) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	var s model.Subscription
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, customer_id, checkout_session_id, price_id, status, updated_at
		 FROM subscriptions WHERE user_id = ?`, userID,
	).Scan(&s.UserID, &s.CustomerID, &s.CheckoutSessionID, &s.PriceID, &s.Status, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("subscription", userID)
		}
		return nil, fmt.Errorf("sqlite: getting subscription of %s: %w", userID, err)
	}
	return &s, nil
}
