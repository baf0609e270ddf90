// Package repository defines the storage contracts the services depend on.
//
// WHY INTERFACES HERE AND NOT IN sqlite?
// The consumer owns the interface. Services accept these interfaces, the
// sqlite package provides one implementation, and service tests provide
// in-memory fakes. Nothing in service/ imports database/sql.
package repository

import (
	"context"
	"errors"

	"github.com/sakif/vinstackcode/internal/model"
)

// ErrPolicyRecursion is returned by the full access query when the storage
// engine gives up evaluating it (recursion or expression depth limits). The
// snippet service falls back to the narrower owner-plus-public query.
var ErrPolicyRecursion = errors.New("repository: access policy recursion")

// ListOptions is offset pagination. Implementations clamp Limit to [1, 100]
// and default it to 20.
type ListOptions struct {
	Limit  int
	Offset int
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Normalize returns opts with the limit clamped and a non-negative offset.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// SnippetFilter narrows a snippet listing. Empty fields do not filter.
type SnippetFilter struct {
	Language   string
	Tag        string
	Visibility model.Visibility
	OwnerID    string
	FolderID   string
	Query      string // substring of title or description
	ListOptions
}

type ProfileRepository interface {
	// UpsertGitHubProfile inserts or refreshes a profile keyed by GitHubID and
	// fills in the stored ID and timestamps.
	UpsertGitHubProfile(ctx context.Context, p *model.Profile) error
	CreateProfile(ctx context.Context, p *model.Profile) error
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
}

type SnippetRepository interface {
	// CreateSnippet stores s and its first version atomically.
	CreateSnippet(ctx context.Context, s *model.Snippet, v *model.SnippetVersion) error
	GetSnippet(ctx context.Context, id string) (*model.Snippet, error)
	// ListAccessibleSnippets returns snippets the user owns, collaborates on
	// (accepted), can see through a team, or that are public. An empty userID
	// sees public snippets only.
	ListAccessibleSnippets(ctx context.Context, userID string, f SnippetFilter) ([]model.Snippet, error)
	// ListOwnedOrPublicSnippets is the narrow fallback for ListAccessibleSnippets.
	ListOwnedOrPublicSnippets(ctx context.Context, userID string, f SnippetFilter) ([]model.Snippet, error)
	// UpdateSnippet saves s and appends v with the next version number.
	UpdateSnippet(ctx context.Context, s *model.Snippet, v *model.SnippetVersion) error
	DeleteSnippet(ctx context.Context, id string) error

	ListVersions(ctx context.Context, snippetID string) ([]model.SnippetVersion, error)
	GetVersion(ctx context.Context, snippetID string, number int) (*model.SnippetVersion, error)

	// LikeSnippet reports whether a new like was recorded.
	LikeSnippet(ctx context.Context, snippetID, userID string) (bool, error)
	// UnlikeSnippet reports whether an existing like was removed.
	UnlikeSnippet(ctx context.Context, snippetID, userID string) (bool, error)
	HasLiked(ctx context.Context, snippetID, userID string) (bool, error)
	// RecordView appends a view. userID is empty for anonymous readers.
	RecordView(ctx context.Context, snippetID, userID string) error
}

type CollaboratorRepository interface {
	AddCollaborator(ctx context.Context, c *model.Collaborator) error
	GetCollaborator(ctx context.Context, snippetID, userID string) (*model.Collaborator, error)
	ListCollaborators(ctx context.Context, snippetID string) ([]model.Collaborator, error)
	AcceptCollaborator(ctx context.Context, snippetID, userID string) (*model.Collaborator, error)
	RemoveCollaborator(ctx context.Context, snippetID, userID string) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	// ListComments returns a snippet's comments ordered by creation time.
	ListComments(ctx context.Context, snippetID string) ([]model.Comment, error)
	SetCommentResolved(ctx context.Context, id string, resolved bool) (*model.Comment, error)
	// DeleteComment removes the comment and, through the schema, its replies.
	DeleteComment(ctx context.Context, id string) error
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, opts ListOptions) ([]model.Notification, error)
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	// MarkAllNotificationsRead returns how many rows changed.
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	DeleteNotification(ctx context.Context, userID, id string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

type FolderRepository interface {
	CreateFolder(ctx context.Context, f *model.Folder) error
	GetFolder(ctx context.Context, id string) (*model.Folder, error)
	ListFolders(ctx context.Context, ownerID string) ([]model.Folder, error)
}

type TeamRepository interface {
	// CreateTeam stores t and makes its owner a member with TeamRoleOwner.
	CreateTeam(ctx context.Context, t *model.Team) error
	GetTeam(ctx context.Context, id string) (*model.Team, error)
	ListTeamsForUser(ctx context.Context, userID string) ([]model.Team, error)
	AddTeamMember(ctx context.Context, m *model.TeamMember) error
	GetTeamMember(ctx context.Context, teamID, userID string) (*model.TeamMember, error)
	ListTeamMembers(ctx context.Context, teamID string) ([]model.TeamMember, error)
	RemoveTeamMember(ctx context.Context, teamID, userID string) error
}

type ActivityRepository interface {
	AddActivity(ctx context.Context, a *model.Activity) error
	ListActivities(ctx context.Context, userID string, opts ListOptions) ([]model.Activity, error)
}

type SubscriptionRepository interface {
	UpsertSubscription(ctx context.Context, s *model.Subscription) error
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
}

// Completion is one finished quest and what it awards.
type Completion struct {
	UserID      string
	QuestID     string
	Score       int
	XPGained    int
	CoinsGained int
}

type PlayerRepository interface {
	// GetPlayer returns ErrNotFound when the user has never completed a quest.
	GetPlayer(ctx context.Context, userID string) (*model.Player, error)
	// RecordCompletion adds the gains to the stored totals and records the
	// quest in one transaction, then returns the updated player. Totals are
	// incremented, never overwritten, so completions of different quests
	// that overlap in time all count. A quest recorded twice for the same
	// user is a conflict and changes nothing.
	RecordCompletion(ctx context.Context, c Completion) (*model.Player, error)
}
