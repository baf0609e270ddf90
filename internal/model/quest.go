package model

// QuestKind distinguishes how a quest is scored.
type QuestKind string

const (
	// QuestChallenge is scored by the share of test cases the submission passes.
	QuestChallenge QuestKind = "challenge"
	// QuestTutorial is a guided walkthrough; finishing it scores 100.
	QuestTutorial QuestKind = "tutorial"
	// QuestRace is a timed multiplayer round scored by finishing place.
	QuestRace QuestKind = "race"
)

func (k QuestKind) Valid() bool {
	switch k {
	case QuestChallenge, QuestTutorial, QuestRace:
		return true
	default:
		return false
	}
}

// TestCase feeds Stdin to the submission and compares trimmed stdout.
type TestCase struct {
	Name     string `json:"name"`
	Stdin    string `json:"stdin,omitempty"`
	Expected string `json:"expected"`
}

// Quest is a gamified coding exercise.
type Quest struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Kind        QuestKind  `json:"kind"`
	Language    string     `json:"language"`
	StarterCode string     `json:"starterCode"`
	Tests       []TestCase `json:"tests,omitempty"`
	XPReward    int        `json:"xpReward"`
	CoinReward  int        `json:"coinReward"`
}

// Player is a user's progression record.
type Player struct {
	UserID          string   `json:"userId"`
	Level           int      `json:"level"`
	Experience      int      `json:"experience"`
	CodeCoins       int      `json:"codeCoins"`
	CompletedQuests []string `json:"completedQuests"`
}

// HasCompleted reports whether questID is already in the completed list.
func (p Player) HasCompleted(questID string) bool {
	for _, id := range p.CompletedQuests {
		if id == questID {
			return true
		}
	}
	return false
}
