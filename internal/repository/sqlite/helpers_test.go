package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/vinstackcode/internal/model"
)

// newTestDB opens a fresh in-memory database. Each test gets its own, and
// t.Cleanup closes it when the test (and its subtests) finish.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestProfile(t *testing.T, db *DB, username string) *model.Profile {
	t.Helper()
	p := &model.Profile{Username: username, Email: username + "@example.com"}
	if err := db.CreateProfile(context.Background(), p); err != nil {
		t.Fatalf("failed to create profile %q: %v", username, err)
	}
	return p
}

func createTestSnippet(t *testing.T, db *DB, ownerID, title string, vis model.Visibility) *model.Snippet {
	t.Helper()
	s := &model.Snippet{
		Title:      title,
		Content:    "print('" + title + "')",
		Language:   "python",
		Tags:       []string{"python"},
		Visibility: vis,
		OwnerID:    ownerID,
	}
	v := &model.SnippetVersion{Content: s.Content, ChangeMessage: "Initial version", AuthorID: ownerID}
	if err := db.CreateSnippet(context.Background(), s, v); err != nil {
		t.Fatalf("failed to create snippet %q: %v", title, err)
	}
	return s
}
