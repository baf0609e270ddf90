package game

import (
	"fmt"

	"github.com/sakif/vinstackcode/internal/model"
)

// Outcome is the result of attempting a quest. The set of implementations is
// closed: one per model.QuestKind.
type Outcome interface {
	outcome()
}

// TestOutcome is the result of running a challenge's test cases.
type TestOutcome struct {
	Passed int
	Total  int
}

// TutorialOutcome marks a tutorial as walked through.
type TutorialOutcome struct{}

// RaceOutcome records the finishing place in a race, starting at 1.
type RaceOutcome struct {
	Place int
}

func (TestOutcome) outcome()     {}
func (TutorialOutcome) outcome() {}
func (RaceOutcome) outcome()     {}

// racePlaceScores maps finishing place to score; anyone past the table scores
// the participation value.
var racePlaceScores = []int{100, 75, 50}

const raceParticipationScore = 25

// Score converts an outcome into a 0–100 score for q. The outcome variant must
// match the quest kind.
func Score(q model.Quest, o Outcome) (int, error) {
	switch q.Kind {
	case model.QuestChallenge:
		t, ok := o.(TestOutcome)
		if !ok {
			return 0, fmt.Errorf("game: challenge %s needs a test outcome, got %T", q.ID, o)
		}
		if t.Total <= 0 {
			return 0, fmt.Errorf("game: challenge %s has no test cases", q.ID)
		}
		if t.Passed < 0 || t.Passed > t.Total {
			return 0, fmt.Errorf("game: passed %d out of range for %d tests", t.Passed, t.Total)
		}
		return t.Passed * 100 / t.Total, nil

	case model.QuestTutorial:
		if _, ok := o.(TutorialOutcome); !ok {
			return 0, fmt.Errorf("game: tutorial %s needs a tutorial outcome, got %T", q.ID, o)
		}
		return 100, nil

	case model.QuestRace:
		r, ok := o.(RaceOutcome)
		if !ok {
			return 0, fmt.Errorf("game: race %s needs a race outcome, got %T", q.ID, o)
		}
		if r.Place < 1 {
			return 0, fmt.Errorf("game: race place must be 1 or more, got %d", r.Place)
		}
		if r.Place <= len(racePlaceScores) {
			return racePlaceScores[r.Place-1], nil
		}
		return raceParticipationScore, nil

	default:
		return 0, fmt.Errorf("game: unknown quest kind %q", q.Kind)
	}
}
