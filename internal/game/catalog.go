package game

import (
	"sort"

	"github.com/sakif/vinstackcode/internal/model"
)

// Catalog is the read-only set of quests shipped with the binary.
type Catalog struct {
	quests map[string]model.Quest
	order  []string
}

// NewCatalog indexes quests by id. Later duplicates replace earlier ones.
func NewCatalog(quests []model.Quest) *Catalog {
	c := &Catalog{quests: make(map[string]model.Quest, len(quests))}
	for _, q := range quests {
		if _, seen := c.quests[q.ID]; !seen {
			c.order = append(c.order, q.ID)
		}
		c.quests[q.ID] = q
	}
	return c
}

// Get returns the quest with the given id.
func (c *Catalog) Get(id string) (model.Quest, bool) {
	q, ok := c.quests[id]
	return q, ok
}

// List returns quests in catalog order.
func (c *Catalog) List() []model.Quest {
	out := make([]model.Quest, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.quests[id])
	}
	return out
}

// ByKind returns the quests of one kind, sorted by id.
func (c *Catalog) ByKind(kind model.QuestKind) []model.Quest {
	var out []model.Quest
	for _, q := range c.quests {
		if q.Kind == kind {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultQuests is the starter curriculum.
func DefaultQuests() []model.Quest {
	return []model.Quest{
		{
			ID:          "hello-world",
			Title:       "Hello, World",
			Description: "Print exactly: Hello, World!",
			Kind:        model.QuestChallenge,
			Language:    "python",
			StarterCode: "# print a greeting\n",
			Tests: []model.TestCase{
				{Name: "greets", Expected: "Hello, World!"},
			},
			XPReward:   100,
			CoinReward: 50,
		},
		{
			ID:          "sum-two",
			Title:       "Add Two Numbers",
			Description: "Read two integers on one line and print their sum.",
			Kind:        model.QuestChallenge,
			Language:    "python",
			StarterCode: "a, b = map(int, input().split())\n",
			Tests: []model.TestCase{
				{Name: "small", Stdin: "1 2\n", Expected: "3"},
				{Name: "negative", Stdin: "-4 9\n", Expected: "5"},
				{Name: "zeros", Stdin: "0 0\n", Expected: "0"},
				{Name: "large", Stdin: "1000000 2000000\n", Expected: "3000000"},
			},
			XPReward:   200,
			CoinReward: 80,
		},
		{
			ID:          "reverse-js",
			Title:       "Reverse a String",
			Description: "Read a line from stdin and print it reversed.",
			Kind:        model.QuestChallenge,
			Language:    "javascript",
			StarterCode: "const input = require('fs').readFileSync(0, 'utf8').trim();\n",
			Tests: []model.TestCase{
				{Name: "word", Stdin: "abc\n", Expected: "cba"},
				{Name: "palindrome", Stdin: "level\n", Expected: "level"},
			},
			XPReward:   250,
			CoinReward: 100,
		},
		{
			ID:          "async-basics",
			Title:       "Async Basics",
			Description: "Walk through promises and async/await.",
			Kind:        model.QuestTutorial,
			Language:    "javascript",
			XPReward:    150,
			CoinReward:  30,
		},
		{
			ID:          "fizzbuzz-race",
			Title:       "FizzBuzz Race",
			Description: "First to a correct FizzBuzz wins.",
			Kind:        model.QuestRace,
			Language:    "python",
			XPReward:    400,
			CoinReward:  200,
		},
	}
}
