// Package events carries row-change events from the services to the realtime
// layer.
//
// WHY A BUS?
// A service that saves a snippet should not know who is watching it. It
// publishes a ChangeEvent; the realtime bridge subscribes and fans the event
// out to websocket rooms. With one server the bus is an in-process watermill
// gochannel. With several servers behind a load balancer it is NATS, so a
// save on one instance reaches clients connected to another.
package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Topic is the single subject all change events travel on.
const Topic = "vinstack.changes"

// Action is the kind of row change.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// Tables that produce change events.
const (
	TableSnippets      = "snippets"
	TableCollaborators = "snippet_collaborators"
	TableComments      = "snippet_comments"
	TableLikes         = "snippet_likes"
	TableVersions      = "snippet_versions"
	TableNotifications = "notifications"
)

// ChangeEvent describes one row change.
//
// SnippetID routes the event to the snippet's room. UserID routes it to a
// user's private room (notifications). At least one of them is set.
type ChangeEvent struct {
	Table      string          `json:"table"`
	Action     Action          `json:"action"`
	RecordID   string          `json:"recordId"`
	SnippetID  string          `json:"snippetId,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	ActorID    string          `json:"actorId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Validate checks that the event can be routed.
func (e ChangeEvent) Validate() error {
	if e.Table == "" {
		return fmt.Errorf("events: table is required")
	}
	if !e.Action.Valid() {
		return fmt.Errorf("events: unknown action %q", e.Action)
	}
	if e.SnippetID == "" && e.UserID == "" {
		return fmt.Errorf("events: event for %s has no snippet or user to route to", e.Table)
	}
	return nil
}

// NewChange builds an event stamped with the current time. payload may be
// nil; otherwise it is JSON encoded.
func NewChange(table string, action Action, recordID string, payload any) (ChangeEvent, error) {
	ev := ChangeEvent{
		Table:      table,
		Action:     action,
		RecordID:   recordID,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("events: encoding payload: %w", err)
		}
		ev.Payload = raw
	}
	return ev, nil
}
