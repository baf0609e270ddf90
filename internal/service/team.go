package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

const MaxTeamNameLength = 100

// TeamView is a team with its roster.
type TeamView struct {
	model.Team
	Members []model.TeamMember `json:"members"`
}

// TeamService manages teams. Team membership is what makes team-visible
// snippets readable, so it is guarded like a permission.
type TeamService struct {
	repo     repository.TeamRepository
	profiles repository.ProfileRepository
	fx       sideEffects
	logger   *slog.Logger
}

func NewTeamService(
	repo repository.TeamRepository,
	profiles repository.ProfileRepository,
	notifier Notifier,
	logger *slog.Logger,
) *TeamService {
	return &TeamService{
		repo:     repo,
		profiles: profiles,
		fx:       sideEffects{notifier: notifier, logger: logger},
		logger:   logger,
	}
}

// Create makes a team owned by userID, who becomes its first member.
func (s *TeamService) Create(ctx context.Context, userID, name string) (*model.Team, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to create teams")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "team name is required")
	}
	if len(name) > MaxTeamNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("team name must be %d characters or less", MaxTeamNameLength))
	}

	t := &model.Team{Name: name, OwnerID: userID}
	if err := s.repo.CreateTeam(ctx, t); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}
	s.logger.Info("team created", slog.String("id", t.ID), slog.String("ownerId", userID))
	return t, nil
}

func (s *TeamService) List(ctx context.Context, userID string) ([]model.Team, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to see teams")
	}
	teams, err := s.repo.ListTeamsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	return teams, nil
}

// Get returns the team and its members. Only members may look.
func (s *TeamService) Get(ctx context.Context, userID, teamID string) (*TeamView, error) {
	if _, err := s.membership(ctx, teamID, userID); err != nil {
		return nil, err
	}
	t, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing team members: %w", err)
	}
	return &TeamView{Team: *t, Members: members}, nil
}

// AddMember adds username to the team. Owners and admins may add members;
// nobody can be added as a second owner.
func (s *TeamService) AddMember(ctx context.Context, actorID, teamID, username string, role model.TeamRole) (*model.TeamMember, error) {
	if role == "" {
		role = model.TeamRoleMember
	}
	switch role {
	case model.TeamRoleAdmin, model.TeamRoleMember:
	case model.TeamRoleOwner:
		return nil, apperror.ValidationFailed("role", "a team has exactly one owner")
	default:
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("unknown team role %q", role))
	}

	actor, err := s.membership(ctx, teamID, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanManage() {
		return nil, apperror.Forbidden("only team owners and admins can add members")
	}

	p, err := s.profiles.GetProfileByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("username", fmt.Sprintf("no user named %s", username))
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	m := &model.TeamMember{TeamID: teamID, UserID: p.ID, Role: role}
	if err := s.repo.AddTeamMember(ctx, m); err != nil {
		return nil, fmt.Errorf("adding team member: %w", err)
	}

	s.logger.Info("team member added",
		slog.String("teamId", teamID),
		slog.String("userId", p.ID),
		slog.String("role", string(role)),
	)
	team, err := s.repo.GetTeam(ctx, teamID)
	name := teamID
	if err == nil {
		name = team.Name
	}
	s.fx.notify(ctx, actorID, &model.Notification{
		UserID:  p.ID,
		Type:    model.NotificationTeam,
		Title:   "Added to a team",
		Message: fmt.Sprintf("You were added to %s as %s", name, role),
		Data:    map[string]string{"teamId": teamID, "role": string(role)},
	})
	return m, nil
}

// RemoveMember removes userID. Managers may remove anyone but the owner, and
// members may leave on their own. The owner cannot leave their own team.
func (s *TeamService) RemoveMember(ctx context.Context, actorID, teamID, userID string) error {
	actor, err := s.membership(ctx, teamID, actorID)
	if err != nil {
		return err
	}
	target, err := s.repo.GetTeamMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if target.Role == model.TeamRoleOwner {
		return apperror.Forbidden("the team owner cannot be removed")
	}
	if actorID != userID && !actor.Role.CanManage() {
		return apperror.Forbidden("only team owners and admins can remove members")
	}

	if err := s.repo.RemoveTeamMember(ctx, teamID, userID); err != nil {
		return fmt.Errorf("removing team member: %w", err)
	}
	s.logger.Info("team member removed",
		slog.String("teamId", teamID),
		slog.String("userId", userID),
		slog.String("actorId", actorID),
	)
	return nil
}

// membership returns the caller's member row. Non-members get NotFound so
// private teams do not leak.
func (s *TeamService) membership(ctx context.Context, teamID, userID string) (*model.TeamMember, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to manage teams")
	}
	m, err := s.repo.GetTeamMember(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("team", teamID)
		}
		return nil, fmt.Errorf("checking team membership: %w", err)
	}
	return m, nil
}
