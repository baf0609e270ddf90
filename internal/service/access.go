package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/authz"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// Access works out which role a user holds on a snippet and whether that
// role allows an action.
//
// WHERE A ROLE COMES FROM:
//
//	owner_id matches            → owner
//	accepted collaborator row   → the row's role
//	team visibility + member    → commenter
//	public, signed in           → commenter
//	public, anonymous           → viewer
//
// When several apply the highest wins, so an editor on a public snippet is
// still an editor. A pending invitation grants nothing until it is accepted.
type Access struct {
	snippets      repository.SnippetRepository
	collaborators repository.CollaboratorRepository
	teams         repository.TeamRepository
	enforcer      *authz.Enforcer
}

func NewAccess(
	snippets repository.SnippetRepository,
	collaborators repository.CollaboratorRepository,
	teams repository.TeamRepository,
	enforcer *authz.Enforcer,
) *Access {
	return &Access{
		snippets:      snippets,
		collaborators: collaborators,
		teams:         teams,
		enforcer:      enforcer,
	}
}

func roleRank(r model.Role) int {
	switch r {
	case model.RoleViewer:
		return 1
	case model.RoleCommenter:
		return 2
	case model.RoleEditor:
		return 3
	case model.RoleOwner:
		return 4
	default:
		return 0
	}
}

func higherRole(a, b model.Role) model.Role {
	if roleRank(b) > roleRank(a) {
		return b
	}
	return a
}

// RoleFor returns the role userID holds on s, or "" when the user cannot see
// it at all. userID is empty for anonymous callers.
func (a *Access) RoleFor(ctx context.Context, s *model.Snippet, userID string) (model.Role, error) {
	if userID != "" && s.OwnerID == userID {
		return model.RoleOwner, nil
	}

	var role model.Role
	switch s.Visibility {
	case model.VisibilityPublic:
		role = model.RoleViewer
		if userID != "" {
			role = model.RoleCommenter
		}
	case model.VisibilityTeam:
		if userID != "" && s.TeamID != "" {
			_, err := a.teams.GetTeamMember(ctx, s.TeamID, userID)
			switch {
			case err == nil:
				role = model.RoleCommenter
			case !errors.Is(err, apperror.ErrNotFound):
				return "", fmt.Errorf("checking team membership: %w", err)
			}
		}
	case model.VisibilityPrivate:
	}

	if userID == "" {
		return role, nil
	}
	c, err := a.collaborators.GetCollaborator(ctx, s.ID, userID)
	switch {
	case err == nil:
		if c.Accepted() {
			role = higherRole(role, c.Role)
		}
	case !errors.Is(err, apperror.ErrNotFound):
		return "", fmt.Errorf("checking collaborator: %w", err)
	}
	return role, nil
}

// Authorize loads the snippet and checks that userID may perform action on
// it. A snippet the user cannot see at all is reported as not found so its
// existence does not leak.
func (a *Access) Authorize(ctx context.Context, snippetID, userID string, action authz.Action) (*model.Snippet, model.Role, error) {
	if snippetID == "" {
		return nil, "", apperror.ValidationFailed("id", "snippet ID is required")
	}
	s, err := a.snippets.GetSnippet(ctx, snippetID)
	if err != nil {
		return nil, "", err
	}

	role, err := a.RoleFor(ctx, s, userID)
	if err != nil {
		return nil, "", err
	}
	if role == "" {
		return nil, "", apperror.NotFound("snippet", snippetID)
	}
	if !a.enforcer.Can(role, action) {
		if userID == "" {
			return nil, "", apperror.Unauthorized(fmt.Sprintf("sign in to %s this snippet", action))
		}
		return nil, "", apperror.Forbidden(fmt.Sprintf("a %s cannot %s this snippet", role, action))
	}
	return s, role, nil
}
