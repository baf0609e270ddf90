package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/authz"
	"github.com/sakif/vinstackcode/internal/events"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// CollaboratorService manages invitations and the per-snippet roster.
//
// LIFECYCLE OF A COLLABORATOR ROW:
//
//	invite  → row inserted, accepted_at NULL (grants nothing yet)
//	accept  → accepted_at set by the invitee
//	remove  → row deleted, by the owner or by the collaborator leaving
//
// Every step publishes a change on the snippet's room. Clients do not patch
// their roster from the event; they re-fetch it.
type CollaboratorService struct {
	repo     repository.CollaboratorRepository
	profiles repository.ProfileRepository
	access   *Access
	fx       sideEffects
	logger   *slog.Logger
}

func NewCollaboratorService(
	repo repository.CollaboratorRepository,
	profiles repository.ProfileRepository,
	access *Access,
	publisher events.Publisher,
	notifier Notifier,
	logger *slog.Logger,
) *CollaboratorService {
	return &CollaboratorService{
		repo:     repo,
		profiles: profiles,
		access:   access,
		fx:       sideEffects{publisher: publisher, notifier: notifier, logger: logger},
		logger:   logger,
	}
}

// List returns the roster with the owner first. Pending invitations are
// included and can be told apart by a nil AcceptedAt.
func (s *CollaboratorService) List(ctx context.Context, userID, snippetID string) ([]model.Collaborator, error) {
	snippet, _, err := s.access.Authorize(ctx, snippetID, userID, authz.ActionRead)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListCollaborators(ctx, snippet.ID)
	if err != nil {
		return nil, fmt.Errorf("listing collaborators: %w", err)
	}

	created := snippet.CreatedAt
	owner := model.Collaborator{
		SnippetID:  snippet.ID,
		UserID:     snippet.OwnerID,
		Role:       model.RoleOwner,
		InvitedBy:  snippet.OwnerID,
		AcceptedAt: &created,
		CreatedAt:  created,
	}
	if p, err := s.profiles.GetProfile(ctx, snippet.OwnerID); err == nil {
		owner.Username = p.Username
	}
	return append([]model.Collaborator{owner}, rows...), nil
}

// Invite adds username to the snippet with role. Only the owner may invite,
// and ownership cannot be handed out this way.
func (s *CollaboratorService) Invite(ctx context.Context, actorID, snippetID, username string, role model.Role) (*model.Collaborator, error) {
	if !role.Invitable() {
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("role %q cannot be granted by invitation", role))
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}

	snippet, _, err := s.access.Authorize(ctx, snippetID, actorID, authz.ActionManage)
	if err != nil {
		return nil, err
	}

	invitee, err := s.profiles.GetProfileByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("username", fmt.Sprintf("no user named %s", username))
		}
		return nil, fmt.Errorf("looking up invitee: %w", err)
	}
	if invitee.ID == snippet.OwnerID {
		return nil, apperror.ValidationFailed("username", "the owner is already on this snippet")
	}

	c := &model.Collaborator{
		SnippetID: snippet.ID,
		UserID:    invitee.ID,
		Username:  invitee.Username,
		Role:      role,
		InvitedBy: actorID,
	}
	if err := s.repo.AddCollaborator(ctx, c); err != nil {
		return nil, fmt.Errorf("inviting collaborator: %w", err)
	}

	s.logger.Info("collaborator invited",
		slog.String("snippetId", snippet.ID),
		slog.String("userId", invitee.ID),
		slog.String("role", string(role)),
	)
	s.fx.snippetChanged(ctx, events.TableCollaborators, events.ActionInsert, snippet.ID, invitee.ID, actorID, c)
	s.fx.notify(ctx, actorID, &model.Notification{
		UserID:  invitee.ID,
		Type:    model.NotificationInvite,
		Title:   "Collaboration invite",
		Message: fmt.Sprintf("You were invited to %s as %s", snippet.Title, role),
		Data:    map[string]string{"snippetId": snippet.ID, "role": string(role), "invitedBy": actorID},
	})
	return c, nil
}

// Accept marks the caller's own invitation as accepted. Accepting twice
// keeps the first timestamp.
func (s *CollaboratorService) Accept(ctx context.Context, userID, snippetID string) (*model.Collaborator, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to accept invitations")
	}
	if _, err := s.repo.GetCollaborator(ctx, snippetID, userID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("invitation", snippetID)
		}
		return nil, fmt.Errorf("loading invitation: %w", err)
	}

	c, err := s.repo.AcceptCollaborator(ctx, snippetID, userID)
	if err != nil {
		return nil, fmt.Errorf("accepting invitation: %w", err)
	}

	s.logger.Info("invitation accepted", slog.String("snippetId", snippetID), slog.String("userId", userID))
	s.fx.snippetChanged(ctx, events.TableCollaborators, events.ActionUpdate, snippetID, userID, userID, c)
	s.fx.notify(ctx, userID, &model.Notification{
		UserID:  c.InvitedBy,
		Type:    model.NotificationAccepted,
		Title:   "Invitation accepted",
		Message: fmt.Sprintf("%s joined as %s", displayName(c.Username, userID), c.Role),
		Data:    map[string]string{"snippetId": snippetID, "userId": userID},
	})
	return c, nil
}

// Remove deletes a collaborator. The owner may remove anyone; anyone may
// remove themselves.
func (s *CollaboratorService) Remove(ctx context.Context, actorID, snippetID, userID string) error {
	if actorID == "" {
		return apperror.Unauthorized("sign in to manage collaborators")
	}
	if actorID != userID {
		if _, _, err := s.access.Authorize(ctx, snippetID, actorID, authz.ActionManage); err != nil {
			return err
		}
	}
	if err := s.repo.RemoveCollaborator(ctx, snippetID, userID); err != nil {
		return fmt.Errorf("removing collaborator: %w", err)
	}

	s.logger.Info("collaborator removed",
		slog.String("snippetId", snippetID),
		slog.String("userId", userID),
		slog.String("actorId", actorID),
	)
	s.fx.snippetChanged(ctx, events.TableCollaborators, events.ActionDelete, snippetID, userID, actorID, nil)
	return nil
}

func displayName(username, fallback string) string {
	if username != "" {
		return username
	}
	return fallback
}
