package model

import "time"

// Role is a collaborator's permission level on one snippet.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleEditor    Role = "editor"
	RoleCommenter Role = "commenter"
	RoleViewer    Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleCommenter, RoleViewer:
		return true
	default:
		return false
	}
}

// Invitable reports whether r may be granted through an invitation.
// Ownership never changes hands that way.
func (r Role) Invitable() bool {
	switch r {
	case RoleEditor, RoleCommenter, RoleViewer:
		return true
	case RoleOwner:
		return false
	default:
		return false
	}
}

// Collaborator grants a user a role on a snippet. AcceptedAt is nil until the
// invitee accepts.
type Collaborator struct {
	SnippetID  string     `json:"snippetId"`
	UserID     string     `json:"userId"`
	Username   string     `json:"username,omitempty"`
	Role       Role       `json:"role"`
	InvitedBy  string     `json:"invitedBy"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Accepted reports whether the invitation has been accepted.
func (c Collaborator) Accepted() bool {
	return c.AcceptedAt != nil
}

// Comment is one row of a snippet's discussion. ParentID is empty for
// top-level comments.
type Comment struct {
	ID         string    `json:"id"`
	SnippetID  string    `json:"snippetId"`
	AuthorID   string    `json:"authorId"`
	ParentID   string    `json:"parentId,omitempty"`
	Content    string    `json:"content"`
	Line       *int      `json:"line,omitempty"`
	IsResolved bool      `json:"isResolved"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CursorPosition is ephemeral: it only exists in realtime messages and in
// client memory.
type CursorPosition struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Color    string `json:"color"`
}

// Team groups users so that team-visible snippets can be shared.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// TeamRole is a member's role inside a team.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleMember TeamRole = "member"
)

func (r TeamRole) Valid() bool {
	switch r {
	case TeamRoleOwner, TeamRoleAdmin, TeamRoleMember:
		return true
	default:
		return false
	}
}

// CanManage reports whether the role may add or remove members.
func (r TeamRole) CanManage() bool {
	switch r {
	case TeamRoleOwner, TeamRoleAdmin:
		return true
	case TeamRoleMember:
		return false
	default:
		return false
	}
}

type TeamMember struct {
	TeamID   string    `json:"teamId"`
	UserID   string    `json:"userId"`
	Role     TeamRole  `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}
