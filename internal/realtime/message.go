package realtime

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/sakif/vinstackcode/internal/model"
)

// MessageType names a wire message. The set is closed.
type MessageType string

const (
	TypeRowChange     MessageType = "row_change"
	TypeCursor        MessageType = "cursor"
	TypePresenceState MessageType = "presence_state"
	TypePresenceJoin  MessageType = "presence_join"
	TypePresenceLeave MessageType = "presence_leave"
	TypeNotification  MessageType = "notification"
	TypePing          MessageType = "ping"
	TypePong          MessageType = "pong"
	TypeError         MessageType = "error"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeRowChange, TypeCursor, TypePresenceState, TypePresenceJoin,
		TypePresenceLeave, TypeNotification, TypePing, TypePong, TypeError:
		return true
	default:
		return false
	}
}

// Message is the envelope for everything sent over a realtime connection.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into a message of type t. data may be nil.
func NewMessage(t MessageType, data any) (Message, error) {
	msg := Message{Type: t}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("realtime: encoding %s: %w", t, err)
	}
	msg.Data = raw
	return msg, nil
}

// Decode unmarshals the message data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("realtime: %s message has no data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("realtime: decoding %s: %w", m.Type, err)
	}
	return nil
}

// Cursor is one user's caret in the editor. Only line, column and color come
// from the sender; the hub fills in who sent it.
type Cursor = model.CursorPosition

// Presence identifies a user in a room.
type Presence struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// PresenceState is the roster a client receives when it joins.
type PresenceState struct {
	Users []Presence `json:"users"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Message string `json:"message"`
}

// Room names.
func SnippetRoom(snippetID string) string { return "snippet:" + snippetID }
func UserRoom(userID string) string       { return "user:" + userID }
