package model

import "time"

// NotificationType says what triggered a notification.
type NotificationType string

const (
	NotificationInvite   NotificationType = "collaborator_invite"
	NotificationAccepted NotificationType = "collaborator_accepted"
	NotificationComment  NotificationType = "comment"
	NotificationReply    NotificationType = "comment_reply"
	NotificationLike     NotificationType = "like"
	NotificationQuest    NotificationType = "quest_completed"
	NotificationTeam     NotificationType = "team_invite"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInvite, NotificationAccepted, NotificationComment, NotificationReply,
		NotificationLike, NotificationQuest, NotificationTeam:
		return true
	default:
		return false
	}
}

// Notification is addressed to exactly one user. IsRead only ever goes from
// false to true.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	IsRead    bool              `json:"isRead"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Activity is one entry in a user's feed.
type Activity struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	SubjectID string    `json:"subjectId"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

// Activity kinds.
const (
	ActivitySnippetCreated = "snippet_created"
	ActivitySnippetUpdated = "snippet_updated"
	ActivityCommented      = "commented"
	ActivityQuestCompleted = "quest_completed"
)
