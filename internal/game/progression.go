// Package game holds the pure bookkeeping behind quests: rewards, levels and
// scoring. Nothing here touches storage or the network, so every rule can be
// tested with plain values.
package game

import (
	"errors"
	"fmt"

	"github.com/sakif/vinstackcode/internal/model"
)

// ExperiencePerLevel is how much XP separates two levels.
const ExperiencePerLevel = 1000

// ErrAlreadyCompleted is returned when a quest is completed a second time.
// The player record is left untouched so XP and coins are never awarded twice.
var ErrAlreadyCompleted = errors.New("game: quest already completed")

// Reward is what a single completion granted.
type Reward struct {
	QuestID     string `json:"questId"`
	Score       int    `json:"score"`
	XPGained    int    `json:"xpGained"`
	CoinsGained int    `json:"coinsGained"`
	LevelBefore int    `json:"levelBefore"`
	LevelAfter  int    `json:"levelAfter"`
}

// LeveledUp reports whether the completion crossed a level boundary.
func (r Reward) LeveledUp() bool {
	return r.LevelAfter > r.LevelBefore
}

// LevelFor returns floor(experience/1000)+1. Negative experience counts as 0.
func LevelFor(experience int) int {
	if experience < 0 {
		experience = 0
	}
	return experience/ExperiencePerLevel + 1
}

// NewPlayer returns a level 1 player with nothing completed.
func NewPlayer(userID string) model.Player {
	return model.Player{
		UserID:          userID,
		Level:           1,
		CompletedQuests: []string{},
	}
}

// CompleteQuest applies a completion to a copy of p and returns it.
//
// score is clamped to [0, 100]. Gains are floor(reward*score/100), which with
// non-negative integers is plain integer division.
func CompleteQuest(p model.Player, q model.Quest, score int) (model.Player, Reward, error) {
	if q.ID == "" {
		return p, Reward{}, fmt.Errorf("game: quest has no id")
	}
	if p.HasCompleted(q.ID) {
		return p, Reward{}, ErrAlreadyCompleted
	}

	score = clampScore(score)
	reward := Reward{
		QuestID:     q.ID,
		Score:       score,
		XPGained:    q.XPReward * score / 100,
		CoinsGained: q.CoinReward * score / 100,
		LevelBefore: LevelFor(p.Experience),
	}

	next := p
	// Copy the slice so the caller's player is never mutated through aliasing.
	next.CompletedQuests = append(make([]string, 0, len(p.CompletedQuests)+1), p.CompletedQuests...)
	next.CompletedQuests = append(next.CompletedQuests, q.ID)
	next.Experience += reward.XPGained
	next.CodeCoins += reward.CoinsGained
	next.Level = LevelFor(next.Experience)

	reward.LevelAfter = next.Level
	return next, reward, nil
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
