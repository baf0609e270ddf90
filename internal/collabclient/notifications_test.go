package collabclient_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/collabclient"
	"github.com/sakif/vinstackcode/internal/model"
)

type fakeNotificationAPI struct {
	mu    sync.Mutex
	items []model.Notification
	err   error
	calls []string
}

func (f *fakeNotificationAPI) Notifications(context.Context) ([]model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Notification(nil), f.items...), nil
}

func (f *fakeNotificationAPI) MarkRead(_ context.Context, id string) error {
	return f.record("read:" + id)
}

func (f *fakeNotificationAPI) MarkAllRead(context.Context) error {
	return f.record("read-all")
}

func (f *fakeNotificationAPI) DeleteNotification(_ context.Context, id string) error {
	return f.record("delete:" + id)
}

func (f *fakeNotificationAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func seededCenter(t *testing.T) (*collabclient.NotificationCenter, *fakeNotificationAPI) {
	t.Helper()
	api := &fakeNotificationAPI{items: []model.Notification{
		{ID: "n1", Title: "one"},
		{ID: "n2", Title: "two", IsRead: true},
		{ID: "n3", Title: "three"},
	}}
	nc := collabclient.NewNotificationCenter(api, testLogger())
	require.NoError(t, nc.Reconcile(context.Background()))
	return nc, api
}

func TestNotificationCenter_UnreadCountIsDerived(t *testing.T) {
	nc, _ := seededCenter(t)
	assert.Equal(t, 2, nc.UnreadCount())

	require.NoError(t, nc.MarkRead(context.Background(), "n1"))
	assert.Equal(t, 1, nc.UnreadCount())

	require.NoError(t, nc.MarkAllRead(context.Background()))
	assert.Zero(t, nc.UnreadCount())
}

func TestNotificationCenter_MarkReadRollsBack(t *testing.T) {
	nc, api := seededCenter(t)
	api.err = errors.New("offline")

	err := nc.MarkRead(context.Background(), "n1")
	require.Error(t, err)
	assert.Equal(t, 2, nc.UnreadCount())
	assert.False(t, nc.Items()[0].IsRead)
}

func TestNotificationCenter_MarkReadSkipsAlreadyRead(t *testing.T) {
	nc, api := seededCenter(t)
	require.NoError(t, nc.MarkRead(context.Background(), "n2"))
	assert.Empty(t, api.calls)

	assert.ErrorIs(t, nc.MarkRead(context.Background(), "nope"), apperror.ErrNotFound)
}

func TestNotificationCenter_MarkAllReadRollsBackOnlyWhatItFlipped(t *testing.T) {
	nc, api := seededCenter(t)
	api.err = errors.New("offline")

	require.Error(t, nc.MarkAllRead(context.Background()))
	items := nc.Items()
	assert.False(t, items[0].IsRead)
	assert.True(t, items[1].IsRead, "n2 was read before and stays read")
	assert.False(t, items[2].IsRead)
}

func TestNotificationCenter_MarkAllReadAsksServerWhenLocalListIsRead(t *testing.T) {
	nc, api := seededCenter(t)
	require.NoError(t, nc.MarkRead(context.Background(), "n1"))
	require.NoError(t, nc.MarkRead(context.Background(), "n3"))
	require.Zero(t, nc.UnreadCount())

	require.NoError(t, nc.MarkAllRead(context.Background()))
	assert.Equal(t, []string{"read:n1", "read:n3", "read-all"}, api.calls)

	api.err = errors.New("offline")
	require.Error(t, nc.MarkAllRead(context.Background()))
	assert.Zero(t, nc.UnreadCount(), "nothing was flipped, so nothing is rolled back")
}

func TestNotificationCenter_DeleteRestoresPosition(t *testing.T) {
	nc, api := seededCenter(t)
	api.err = errors.New("offline")

	require.Error(t, nc.Delete(context.Background(), "n2"))
	items := nc.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "n2", items[1].ID)
}

func TestNotificationCenter_DeleteOfVanishedNotification(t *testing.T) {
	nc, api := seededCenter(t)
	api.err = apperror.NotFound("notification", "n2")

	require.NoError(t, nc.Delete(context.Background(), "n2"))
	assert.Len(t, nc.Items(), 2)
	assert.Equal(t, []string{"delete:n2"}, api.calls)
}

func TestNotificationCenter_ItemsIsACopy(t *testing.T) {
	nc, _ := seededCenter(t)
	items := nc.Items()
	items[0].IsRead = true
	assert.Equal(t, 2, nc.UnreadCount())
}
