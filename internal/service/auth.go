package service

// AuthService is the business logic layer for authentication:
//
//	AuthHandler (HTTP) → AuthService (business rules) → ProfileRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// TWO WAYS IN, ONE SESSION:
// GitHub OAuth upserts a profile keyed by GitHub ID. Password registration
// creates a profile with a bcrypt hash. Both end with the same signed token,
// so nothing downstream cares how the user logged in.
//
// WHAT THIS FILE DOES NOT DO:
// It never sets cookies or reads requests. That is the handler's job.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/auth"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// usernamePattern follows GitHub's rules closely enough that GitHub logins
// always pass it.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{1,38}$`)

// AuthService handles login, registration and the current-user lookup.
type AuthService struct {
	profiles  repository.ProfileRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	profiles repository.ProfileRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		profiles:  profiles,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the profile and the issued token so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	Profile *model.Profile `json:"profile"`
	Token   string         `json:"token"`
}

// RegisterInput is a password sign-up.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginGitHub handles the OAuth callback after the code exchange.
//
// A GitHub login can collide with a username someone registered with a
// password. The GitHub account then gets "<login>-<githubID>" instead; the
// numeric id makes that one unique.
func (s *AuthService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	p := &model.Profile{
		GitHubID:  gh.ID,
		Username:  gh.Login,
		Email:     gh.Email,
		AvatarURL: gh.AvatarURL,
	}
	err := s.profiles.UpsertGitHubProfile(ctx, p)
	if errors.Is(err, apperror.ErrConflict) {
		p.Username = fmt.Sprintf("%s-%d", gh.Login, gh.ID)
		err = s.profiles.UpsertGitHubProfile(ctx, p)
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting profile (githubID=%d): %w", gh.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userId", p.ID),
		slog.String("username", p.Username),
	)
	return s.issue(p)
}

// Register creates a password account and logs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return nil, apperror.ValidationFailed("username",
			"username must be 2-39 letters, digits, dashes or underscores and start with a letter or digit")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "a valid email is required")
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	if _, err := s.profiles.GetProfileByEmail(ctx, email); err == nil {
		return nil, apperror.Conflictf("an account with that email already exists")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	p := &model.Profile{Username: username, Email: email, PasswordHash: hash}
	if err := s.profiles.CreateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("service/auth: creating profile: %w", err)
	}

	s.logger.Info("user registered", slog.String("userId", p.ID), slog.String("username", p.Username))
	return s.issue(p)
}

// Login checks a password against the account named by identifier, which is
// a username or an email address. Every failure looks the same to the caller
// so the endpoint cannot be used to discover accounts.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	identifier = strings.TrimSpace(identifier)
	invalid := apperror.Unauthorized("invalid username or password")
	if identifier == "" || password == "" {
		return nil, invalid
	}

	var (
		p   *model.Profile
		err error
	)
	if strings.Contains(identifier, "@") {
		p, err = s.profiles.GetProfileByEmail(ctx, strings.ToLower(identifier))
	} else {
		p, err = s.profiles.GetProfileByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: loading profile: %w", err)
	}
	// GitHub-only accounts have no password to check.
	if p.PasswordHash == "" {
		return nil, invalid
	}
	if err := s.passwords.Verify(p.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Warn("failed password login", slog.String("userId", p.ID))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	s.logger.Info("user authenticated via password", slog.String("userId", p.ID))
	return s.issue(p)
}

// Me returns the profile behind a validated token.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("not signed in")
	}
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching profile %s: %w", userID, err)
	}
	return p, nil
}

func (s *AuthService) issue(p *model.Profile) (*AuthResult, error) {
	token, err := s.tokens.Generate(auth.Identity{UserID: p.ID, Username: p.Username})
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", p.ID, err)
	}
	return &AuthResult{Profile: p, Token: token}, nil
}
