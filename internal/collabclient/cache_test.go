package collabclient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/vinstackcode/internal/collabclient"
	"github.com/sakif/vinstackcode/internal/model"
)

type stubFetcher struct {
	title string
	err   error
}

func (f *stubFetcher) Snippet(_ context.Context, id string) (*collabclient.SnippetView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &collabclient.SnippetView{Snippet: model.Snippet{ID: id, Title: f.title}}, nil
}

func (f *stubFetcher) Collaborators(_ context.Context, snippetID string) ([]model.Collaborator, error) {
	return []model.Collaborator{{SnippetID: snippetID, UserID: "bob", Role: model.RoleEditor}}, nil
}

func TestSnippetCache_Reconcile(t *testing.T) {
	f := &stubFetcher{title: "v1"}
	c := collabclient.NewSnippetCache("s1", f)
	assert.Nil(t, c.Snippet())

	require.NoError(t, c.Reconcile(context.Background()))
	assert.Equal(t, "v1", c.Snippet().Title)
	assert.Len(t, c.Collaborators(), 1)

	f.title = "v2"
	require.NoError(t, c.Reconcile(context.Background()))
	assert.Equal(t, "v2", c.Snippet().Title)

	f.err = errors.New("offline")
	require.Error(t, c.Reconcile(context.Background()))
	assert.Equal(t, "v2", c.Snippet().Title, "a failed fetch keeps the last copy")
}
