// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces permissions, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// Services accept primitives and small input structs, never *http.Request, so
// the same logic serves the HTTP handlers, the websocket layer and the tests.
// They return apperror values; the handler decides which status code that is.
//
// SIDE EFFECTS AFTER THE WRITE:
// Most writes have three follow-ups: a change event for the realtime layer, a
// notification for another user, and an entry in the actor's activity feed.
// All three happen after the row is committed and none of them can fail the
// request. A lost event only means another browser re-fetches a little later;
// rolling back a saved snippet because NATS hiccuped would be worse.
//
// DEPENDENCY INJECTION:
// Every service takes repository interfaces (see internal/repository), never
// *sqlite.DB. Tests pass the in-memory store from mock_test.go instead.
package service

import (
	"context"
	"log/slog"

	"github.com/sakif/vinstackcode/internal/events"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// Notifier delivers a notification to one user. NotificationService is the
// production implementation.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// sideEffects bundles the post-write follow-ups shared by the services. Any
// of its dependencies may be nil, in which case that follow-up is skipped.
type sideEffects struct {
	publisher  events.Publisher
	notifier   Notifier
	activities repository.ActivityRepository
	logger     *slog.Logger
}

// snippetChanged publishes a change routed to the snippet's room.
func (fx sideEffects) snippetChanged(ctx context.Context, table string, action events.Action, snippetID, recordID, actorID string, payload any) {
	ev, err := events.NewChange(table, action, recordID, payload)
	if err != nil {
		fx.logger.Error("failed to build change event",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return
	}
	ev.SnippetID = snippetID
	ev.ActorID = actorID
	fx.publish(ctx, ev)
}

// userChanged publishes a change routed to one user's private room.
func (fx sideEffects) userChanged(ctx context.Context, table string, action events.Action, userID, recordID string, payload any) {
	ev, err := events.NewChange(table, action, recordID, payload)
	if err != nil {
		fx.logger.Error("failed to build change event",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return
	}
	ev.UserID = userID
	ev.ActorID = userID
	fx.publish(ctx, ev)
}

func (fx sideEffects) publish(ctx context.Context, ev events.ChangeEvent) {
	if fx.publisher == nil {
		return
	}
	if err := fx.publisher.Publish(ctx, ev); err != nil {
		fx.logger.Warn("failed to publish change event",
			slog.String("table", ev.Table),
			slog.String("action", string(ev.Action)),
			slog.String("recordId", ev.RecordID),
			slog.String("error", err.Error()),
		)
	}
}

// notify sends n unless it would notify the actor about their own action.
func (fx sideEffects) notify(ctx context.Context, actorID string, n *model.Notification) {
	if fx.notifier == nil || n.UserID == "" || n.UserID == actorID {
		return
	}
	if err := fx.notifier.Notify(ctx, n); err != nil {
		fx.logger.Warn("failed to send notification",
			slog.String("userId", n.UserID),
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func (fx sideEffects) recordActivity(ctx context.Context, userID, kind, subjectID, summary string) {
	if fx.activities == nil {
		return
	}
	a := &model.Activity{UserID: userID, Kind: kind, SubjectID: subjectID, Summary: summary}
	if err := fx.activities.AddActivity(ctx, a); err != nil {
		fx.logger.Warn("failed to record activity",
			slog.String("userId", userID),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}
