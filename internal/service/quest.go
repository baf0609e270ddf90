package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/executor"
	"github.com/sakif/vinstackcode/internal/game"
	"github.com/sakif/vinstackcode/internal/metrics"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// SubmitInput is an attempt at a quest. Code is used by challenges, Place by
// races; tutorials need neither.
type SubmitInput struct {
	Code  string
	Place int
}

// TestResult is the verdict on one test case of a challenge.
type TestResult struct {
	Name     string          `json:"name"`
	Passed   bool            `json:"passed"`
	Status   executor.Status `json:"status"`
	Stdout   string          `json:"stdout"`
	Stderr   string          `json:"stderr,omitempty"`
	Expected string          `json:"expected"`
}

// Submission is what a quest attempt produced. Completed is false when the
// attempt scored nothing; such attempts are not recorded, so the quest can be
// tried again.
type Submission struct {
	QuestID   string       `json:"questId"`
	Score     int          `json:"score"`
	Completed bool         `json:"completed"`
	Reward    *game.Reward `json:"reward,omitempty"`
	Player    model.Player `json:"player"`
	Tests     []TestResult `json:"tests,omitempty"`
}

// QuestService runs quest attempts and keeps player progression.
type QuestService struct {
	catalog *game.Catalog
	players repository.PlayerRepository
	runner  *ExecutionService
	fx      sideEffects
	logger  *slog.Logger
}

func NewQuestService(
	catalog *game.Catalog,
	players repository.PlayerRepository,
	runner *ExecutionService,
	notifier Notifier,
	activities repository.ActivityRepository,
	logger *slog.Logger,
) *QuestService {
	return &QuestService{
		catalog: catalog,
		players: players,
		runner:  runner,
		fx:      sideEffects{notifier: notifier, activities: activities, logger: logger},
		logger:  logger,
	}
}

// Quests lists the catalog, optionally narrowed to one kind.
func (s *QuestService) Quests(kind string) ([]model.Quest, error) {
	if kind == "" {
		return s.catalog.List(), nil
	}
	k := model.QuestKind(kind)
	if !k.Valid() {
		return nil, apperror.ValidationFailed("kind", fmt.Sprintf("unknown quest kind %q", kind))
	}
	return s.catalog.ByKind(k), nil
}

func (s *QuestService) Quest(id string) (*model.Quest, error) {
	q, ok := s.catalog.Get(id)
	if !ok {
		return nil, apperror.NotFound("quest", id)
	}
	return &q, nil
}

// Player returns the user's progression. A user who has never finished a
// quest is a fresh level 1 player.
func (s *QuestService) Player(ctx context.Context, userID string) (*model.Player, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to see your progress")
	}
	p, err := s.players.GetPlayer(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			fresh := game.NewPlayer(userID)
			return &fresh, nil
		}
		return nil, fmt.Errorf("loading player: %w", err)
	}
	return p, nil
}

// Submit scores an attempt and, when it scores anything, completes the quest.
//
// COMPLETING TWICE:
// A quest can be completed once. The second attempt is a conflict and awards
// nothing. game.CompleteQuest checks this on the loaded player and the store
// checks it again when recording, which catches the same quest submitted
// twice at once.
//
// OVERLAPPING SUBMISSIONS:
// A challenge spends seconds in the sandbox, so two different quests can be
// scored against the same loaded player. Only the gains go to the store,
// which adds them to whatever totals it holds by then. The player returned
// to the caller is the one the store ended up with.
func (s *QuestService) Submit(ctx context.Context, userID, questID string, in SubmitInput) (*Submission, error) {
	player, err := s.Player(ctx, userID)
	if err != nil {
		return nil, err
	}
	q, err := s.Quest(questID)
	if err != nil {
		return nil, err
	}
	if player.HasCompleted(q.ID) {
		return nil, apperror.Conflictf("quest %s is already completed", q.ID)
	}

	var (
		outcome game.Outcome
		tests   []TestResult
	)
	switch q.Kind {
	case model.QuestChallenge:
		tests, err = s.runTests(ctx, q, in.Code)
		if err != nil {
			return nil, err
		}
		passed := 0
		for _, t := range tests {
			if t.Passed {
				passed++
			}
		}
		outcome = game.TestOutcome{Passed: passed, Total: len(tests)}
	case model.QuestTutorial:
		outcome = game.TutorialOutcome{}
	case model.QuestRace:
		if in.Place < 1 {
			return nil, apperror.ValidationFailed("place", "finishing place starts at 1")
		}
		outcome = game.RaceOutcome{Place: in.Place}
	default:
		return nil, fmt.Errorf("quest %s has unknown kind %q", q.ID, q.Kind)
	}

	score, err := game.Score(*q, outcome)
	if err != nil {
		return nil, fmt.Errorf("scoring quest: %w", err)
	}
	sub := &Submission{QuestID: q.ID, Score: score, Player: *player, Tests: tests}
	if score == 0 {
		return sub, nil
	}

	_, reward, err := game.CompleteQuest(*player, *q, score)
	if err != nil {
		if errors.Is(err, game.ErrAlreadyCompleted) {
			return nil, apperror.Conflictf("quest %s is already completed", q.ID)
		}
		return nil, fmt.Errorf("completing quest: %w", err)
	}
	next, err := s.players.RecordCompletion(ctx, repository.Completion{
		UserID:      userID,
		QuestID:     q.ID,
		Score:       reward.Score,
		XPGained:    reward.XPGained,
		CoinsGained: reward.CoinsGained,
	})
	if err != nil {
		return nil, fmt.Errorf("recording completion: %w", err)
	}
	reward.LevelBefore = game.LevelFor(next.Experience - reward.XPGained)
	reward.LevelAfter = next.Level

	metrics.QuestCompletions.WithLabelValues(string(q.Kind)).Inc()
	s.logger.Info("quest completed",
		slog.String("userId", userID),
		slog.String("questId", q.ID),
		slog.Int("score", score),
		slog.Int("xpGained", reward.XPGained),
		slog.Bool("leveledUp", reward.LeveledUp()),
	)

	summary := fmt.Sprintf("Completed %s (+%d XP, +%d coins)", q.Title, reward.XPGained, reward.CoinsGained)
	s.fx.recordActivity(ctx, userID, model.ActivityQuestCompleted, q.ID, summary)
	message := summary
	if reward.LeveledUp() {
		message = fmt.Sprintf("%s and reached level %d", summary, reward.LevelAfter)
	}
	// The player notifies themselves, so no actor is passed.
	s.fx.notify(ctx, "", &model.Notification{
		UserID:  userID,
		Type:    model.NotificationQuest,
		Title:   "Quest completed",
		Message: message,
		Data:    map[string]string{"questId": q.ID, "score": fmt.Sprint(score)},
	})

	sub.Completed = true
	sub.Reward = &reward
	sub.Player = *next
	return sub, nil
}

// runTests runs code once per test case. A test passes when the run exits
// cleanly and its trimmed stdout equals the trimmed expectation.
func (s *QuestService) runTests(ctx context.Context, q *model.Quest, code string) ([]TestResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperror.ValidationFailed("code", "submit some code first")
	}
	if len(q.Tests) == 0 {
		return nil, fmt.Errorf("challenge %s has no test cases", q.ID)
	}

	results := make([]TestResult, 0, len(q.Tests))
	for _, tc := range q.Tests {
		res, err := s.runner.Run(ctx, executor.Request{Language: q.Language, Code: code, Stdin: tc.Stdin})
		if err != nil {
			return nil, err
		}
		stdout := strings.TrimSpace(res.Stdout)
		expected := strings.TrimSpace(tc.Expected)
		results = append(results, TestResult{
			Name:     tc.Name,
			Passed:   res.Status == executor.StatusOK && stdout == expected,
			Status:   res.Status,
			Stdout:   stdout,
			Stderr:   res.Stderr,
			Expected: expected,
		})
	}
	return results, nil
}
