package collabclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/sakif/vinstackcode/internal/model"
)

// SnippetFetcher loads what a snippet screen shows.
type SnippetFetcher interface {
	Snippet(ctx context.Context, id string) (*SnippetView, error)
	Collaborators(ctx context.Context, snippetID string) ([]model.Collaborator, error)
}

// SnippetCache is the local copy of a snippet and its collaborator roster.
// It is a Reconciler: every Reconcile replaces both with a fresh fetch.
type SnippetCache struct {
	snippetID string
	fetcher   SnippetFetcher

	mu            sync.RWMutex
	snippet       *SnippetView
	collaborators []model.Collaborator
}

func NewSnippetCache(snippetID string, fetcher SnippetFetcher) *SnippetCache {
	return &SnippetCache{snippetID: snippetID, fetcher: fetcher}
}

// Reconcile re-fetches the snippet and the roster. On error the previous
// copy is kept.
func (c *SnippetCache) Reconcile(ctx context.Context) error {
	snippet, err := c.fetcher.Snippet(ctx, c.snippetID)
	if err != nil {
		return fmt.Errorf("fetching snippet: %w", err)
	}
	collaborators, err := c.fetcher.Collaborators(ctx, c.snippetID)
	if err != nil {
		return fmt.Errorf("fetching collaborators: %w", err)
	}

	c.mu.Lock()
	c.snippet = snippet
	c.collaborators = collaborators
	c.mu.Unlock()
	return nil
}

// Snippet returns the last fetched snippet, or nil before the first fetch.
func (c *SnippetCache) Snippet() *SnippetView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snippet == nil {
		return nil
	}
	cp := *c.snippet
	return &cp
}

// Collaborators returns a copy of the last fetched roster.
func (c *SnippetCache) Collaborators() []model.Collaborator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Collaborator(nil), c.collaborators...)
}
