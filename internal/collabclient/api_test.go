package collabclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/collabclient"
	"github.com/sakif/vinstackcode/internal/model"
)

func TestAPIClient_Snippet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snippets/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "false", r.URL.Query().Get("view"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"` + r.PathValue("id") + `","title":"Hello","role":"editor","actions":["read","edit"]}`))
	})
	mux.HandleFunc("GET /api/snippets/{id}/collaborators", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"snippetId":"s1","userId":"bob","role":"viewer"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := collabclient.NewAPIClient(srv.URL+"/", "tok", nil)
	view, err := c.Snippet(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", view.ID)
	assert.Equal(t, "Hello", view.Title)
	assert.Equal(t, model.RoleEditor, view.Role)
	assert.Equal(t, []string{"read", "edit"}, view.Actions)

	collabs, err := c.Collaborators(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, collabs, 1)
	assert.Equal(t, model.RoleViewer, collabs[0].Role)
}

func TestAPIClient_ErrorsMatchSentinels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/notifications/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found","message":"notification not found"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)

	c := collabclient.NewAPIClient(srv.URL, "", nil)

	err := c.DeleteNotification(context.Background(), "missing")
	require.ErrorIs(t, err, apperror.ErrNotFound)
	var apiErr *collabclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "notification not found", apiErr.Message)

	err = c.MarkAllRead(context.Background())
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
	assert.NotErrorIs(t, err, apperror.ErrNotFound)
}

func TestAPIClient_ChannelURLs(t *testing.T) {
	c := collabclient.NewAPIClient("https://vin.example", "tok", nil)
	cfg := c.SnippetChannel("s 1")
	assert.Equal(t, "wss://vin.example/api/realtime/snippets/s%201", cfg.URL)
	assert.Equal(t, "Bearer tok", cfg.Header.Get("Authorization"))

	c = collabclient.NewAPIClient("http://localhost:8080", "", nil)
	cfg = c.NotificationChannel()
	assert.Equal(t, "ws://localhost:8080/api/realtime/notifications", cfg.URL)
	assert.Empty(t, cfg.Header.Get("Authorization"))
}
