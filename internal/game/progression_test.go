package game

import (
	"errors"
	"testing"

	"github.com/sakif/vinstackcode/internal/model"
)

func testQuest() model.Quest {
	return model.Quest{ID: "q1", Kind: model.QuestChallenge, XPReward: 100, CoinReward: 50}
}

// =========================================================================
// COMPLETE QUEST
// =========================================================================

func TestCompleteQuest_RewardScalesWithScore(t *testing.T) {
	p := NewPlayer("u1")

	next, reward, err := CompleteQuest(p, testQuest(), 80)
	if err != nil {
		t.Fatalf("CompleteQuest() error = %v", err)
	}

	if reward.XPGained != 80 {
		t.Errorf("XPGained = %d, want 80", reward.XPGained)
	}
	if reward.CoinsGained != 40 {
		t.Errorf("CoinsGained = %d, want 40", reward.CoinsGained)
	}
	if next.Experience != 80 || next.CodeCoins != 40 {
		t.Errorf("player = %+v, want experience 80 and coins 40", next)
	}
	if len(next.CompletedQuests) != 1 || next.CompletedQuests[0] != "q1" {
		t.Errorf("CompletedQuests = %v, want [q1]", next.CompletedQuests)
	}
}

func TestCompleteQuest_SecondCompletionRejected(t *testing.T) {
	p := NewPlayer("u1")

	p, _, err := CompleteQuest(p, testQuest(), 80)
	if err != nil {
		t.Fatalf("first CompleteQuest() error = %v", err)
	}

	again, reward, err := CompleteQuest(p, testQuest(), 100)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("second CompleteQuest() error = %v, want ErrAlreadyCompleted", err)
	}
	if reward.XPGained != 0 {
		t.Errorf("second completion awarded %d XP", reward.XPGained)
	}
	if again.Experience != 80 {
		t.Errorf("Experience = %d after rejected completion, want 80", again.Experience)
	}

	count := 0
	for _, id := range again.CompletedQuests {
		if id == "q1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("q1 appears %d times in CompletedQuests, want 1", count)
	}
}

func TestCompleteQuest_DoesNotMutateInput(t *testing.T) {
	p := NewPlayer("u1")
	p.CompletedQuests = make([]string, 0, 4) // spare capacity would expose aliasing

	next, _, err := CompleteQuest(p, testQuest(), 100)
	if err != nil {
		t.Fatalf("CompleteQuest() error = %v", err)
	}
	if len(p.CompletedQuests) != 0 {
		t.Errorf("input player was mutated: %v", p.CompletedQuests)
	}
	next.CompletedQuests[0] = "changed"
	if p.HasCompleted("changed") {
		t.Error("result shares backing array with input")
	}
}

func TestCompleteQuest_ClampsScore(t *testing.T) {
	tests := []struct {
		name   string
		score  int
		wantXP int
	}{
		{"negative", -20, 0},
		{"zero", 0, 0},
		{"over one hundred", 250, 100},
		{"partial floors", 33, 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, reward, err := CompleteQuest(NewPlayer("u1"), testQuest(), tt.score)
			if err != nil {
				t.Fatalf("CompleteQuest() error = %v", err)
			}
			if reward.XPGained != tt.wantXP {
				t.Errorf("XPGained = %d, want %d", reward.XPGained, tt.wantXP)
			}
		})
	}
}

func TestCompleteQuest_FloorsOddRewards(t *testing.T) {
	q := model.Quest{ID: "odd", XPReward: 75, CoinReward: 15}

	_, reward, err := CompleteQuest(NewPlayer("u1"), q, 50)
	if err != nil {
		t.Fatalf("CompleteQuest() error = %v", err)
	}
	// 75*50/100 = 37.5 → 37, 15*50/100 = 7.5 → 7
	if reward.XPGained != 37 || reward.CoinsGained != 7 {
		t.Errorf("reward = %+v, want xp 37 coins 7", reward)
	}
}

func TestCompleteQuest_LevelsUp(t *testing.T) {
	p := NewPlayer("u1")
	p.Experience = 950
	p.Level = LevelFor(p.Experience)

	next, reward, err := CompleteQuest(p, testQuest(), 100)
	if err != nil {
		t.Fatalf("CompleteQuest() error = %v", err)
	}
	if next.Level != 2 {
		t.Errorf("Level = %d, want 2", next.Level)
	}
	if !reward.LeveledUp() {
		t.Error("LeveledUp() = false, want true")
	}
}

func TestCompleteQuest_EmptyID(t *testing.T) {
	_, _, err := CompleteQuest(NewPlayer("u1"), model.Quest{}, 100)
	if err == nil {
		t.Fatal("CompleteQuest() should reject a quest without an id")
	}
}

// =========================================================================
// LEVELS
// =========================================================================

func TestLevelFor(t *testing.T) {
	tests := []struct {
		experience int
		want       int
	}{
		{0, 1},
		{999, 1},
		{1000, 2},
		{1999, 2},
		{5000, 6},
		{-10, 1},
	}

	for _, tt := range tests {
		if got := LevelFor(tt.experience); got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.experience, got, tt.want)
		}
	}
}
