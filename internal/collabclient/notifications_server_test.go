package collabclient_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/vinstackcode/internal/auth"
	"github.com/sakif/vinstackcode/internal/collabclient"
	"github.com/sakif/vinstackcode/internal/handler"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
	"github.com/sakif/vinstackcode/internal/repository/sqlite"
	"github.com/sakif/vinstackcode/internal/service"
)

// inbox is a real notification server: sqlite behind the HTTP handlers.
type inbox struct {
	svc    *service.NotificationService
	client *collabclient.APIClient
	userID string
}

func newInbox(t *testing.T) *inbox {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ada := &model.Profile{Username: "ada", Email: "ada@example.com"}
	require.NoError(t, db.CreateProfile(context.Background(), ada))

	tokens, err := auth.NewTokenService("collabclient-test-secret-32-chars!", 0)
	require.NoError(t, err)
	token, err := tokens.Generate(auth.Identity{UserID: ada.ID, Username: ada.Username})
	require.NoError(t, err)

	svc := service.NewNotificationService(db, nil, testLogger())
	h := handler.NewNotificationHandler(svc, testLogger())
	r := chi.NewRouter()
	r.Use(auth.RequireAuth(tokens))
	r.Get("/api/notifications", h.HandleList)
	r.Post("/api/notifications/read-all", h.HandleMarkAllRead)
	r.Post("/api/notifications/{id}/read", h.HandleMarkRead)
	r.Delete("/api/notifications/{id}", h.HandleDelete)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &inbox{svc: svc, client: collabclient.NewAPIClient(srv.URL, token, nil), userID: ada.ID}
}

func (ib *inbox) notify(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		title := fmt.Sprintf("comment %d", i)
		require.NoError(t, ib.svc.Notify(context.Background(), &model.Notification{
			UserID: ib.userID, Type: model.NotificationComment, Title: title, Message: title,
		}))
	}
}

func (ib *inbox) serverUnread(t *testing.T) int {
	t.Helper()
	n, err := ib.svc.UnreadCount(context.Background(), ib.userID)
	require.NoError(t, err)
	return n
}

func TestNotificationCenter_SeesEveryPage(t *testing.T) {
	ib := newInbox(t)
	total := repository.MaxLimit + 30
	ib.notify(t, total)

	nc := collabclient.NewNotificationCenter(ib.client, testLogger())
	require.NoError(t, nc.Reconcile(context.Background()))

	items := nc.Items()
	require.Len(t, items, total)
	ids := make(map[string]struct{}, len(items))
	for _, it := range items {
		ids[it.ID] = struct{}{}
	}
	assert.Len(t, ids, total, "no notification is listed twice")
	assert.Equal(t, ib.serverUnread(t), nc.UnreadCount())
}

func TestNotificationCenter_MarkAllReadWithStaleList(t *testing.T) {
	ib := newInbox(t)
	ib.notify(t, 25)

	nc := collabclient.NewNotificationCenter(ib.client, testLogger())
	ctx := context.Background()
	require.NoError(t, nc.Reconcile(ctx))
	require.Equal(t, 25, nc.UnreadCount())

	for _, it := range nc.Items() {
		require.NoError(t, nc.MarkRead(ctx, it.ID))
	}
	assert.Zero(t, nc.UnreadCount())
	assert.Zero(t, ib.serverUnread(t))

	// New rows the local list has not seen yet.
	ib.notify(t, 3)
	require.Zero(t, nc.UnreadCount())

	require.NoError(t, nc.MarkAllRead(ctx))
	assert.Zero(t, ib.serverUnread(t))

	require.NoError(t, nc.Reconcile(ctx))
	assert.Len(t, nc.Items(), 28)
	assert.Zero(t, nc.UnreadCount())
}
