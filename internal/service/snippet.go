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
	"github.com/sakif/vinstackcode/internal/tagging"
)

// Validation constants.
// Defining these as constants (not magic numbers in code) makes them easy to
// find, self-documenting, and referenceable in error messages.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxContentLength     = 100000 // ~100KB of code
	MaxCustomFields      = 20
	MaxCustomFieldLength = 500
)

// CreateSnippetInput carries the user-supplied fields of a new snippet.
type CreateSnippetInput struct {
	Title        string
	Description  string
	Content      string
	Language     string
	Tags         []string
	Visibility   string
	TeamID       string
	FolderID     string
	CustomFields map[string]string
}

// UpdateSnippetInput is a partial update: nil fields are left unchanged.
type UpdateSnippetInput struct {
	Title         *string
	Description   *string
	Content       *string
	Language      *string
	Tags          []string
	Visibility    *string
	TeamID        *string
	FolderID      *string
	CustomFields  map[string]string
	ChangeMessage string
}

// SnippetDetail is a snippet as seen by one particular user.
type SnippetDetail struct {
	model.Snippet
	Role    model.Role     `json:"role"`
	Actions []authz.Action `json:"actions"`
	Liked   bool           `json:"liked"`
}

// LikeResult is the state after a like or unlike.
type LikeResult struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}

// SnippetService handles snippets, their version history and likes.
type SnippetService struct {
	repo    repository.SnippetRepository
	folders repository.FolderRepository
	teams   repository.TeamRepository
	access  *Access
	fx      sideEffects
	logger  *slog.Logger
}

// NewSnippetService wires the service. publisher, notifier and activities may
// be nil.
func NewSnippetService(
	repo repository.SnippetRepository,
	folders repository.FolderRepository,
	teams repository.TeamRepository,
	access *Access,
	publisher events.Publisher,
	notifier Notifier,
	activities repository.ActivityRepository,
	logger *slog.Logger,
) *SnippetService {
	return &SnippetService{
		repo:    repo,
		folders: folders,
		teams:   teams,
		access:  access,
		fx: sideEffects{
			publisher:  publisher,
			notifier:   notifier,
			activities: activities,
			logger:     logger,
		},
		logger: logger,
	}
}

// SuggestTags runs the tag generator. It needs no storage, so it is a plain
// function exposed through the service for the handler's convenience.
func (s *SnippetService) SuggestTags(code, language string) []string {
	return tagging.Generate(code, language)
}

// Create validates and saves a new snippet together with version 1.
//
// Tags are the caller's tags followed by the generated ones, normalized and
// de-duplicated, capped at tagging.MaxTags.
func (s *SnippetService) Create(ctx context.Context, userID string, in CreateSnippetInput) (*model.Snippet, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to create snippets")
	}

	// === VALIDATION ===
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	language := tagging.NormalizeLanguage(in.Language)
	if language == "" {
		return nil, apperror.ValidationFailed("language", "language is required")
	}
	description := strings.TrimSpace(in.Description)
	if err := validateBody(description, in.Content, in.CustomFields); err != nil {
		return nil, err
	}
	visibility, err := model.ParseVisibility(in.Visibility)
	if err != nil {
		return nil, apperror.ValidationFailed("visibility", err.Error())
	}
	teamID := strings.TrimSpace(in.TeamID)
	if err := s.checkTeam(ctx, userID, visibility, teamID); err != nil {
		return nil, err
	}
	folderID := strings.TrimSpace(in.FolderID)
	if err := s.checkFolder(ctx, userID, folderID); err != nil {
		return nil, err
	}
	userTags, err := validateTags(in.Tags)
	if err != nil {
		return nil, err
	}

	// === BUILD AND SAVE ===
	snippet := &model.Snippet{
		Title:        title,
		Description:  description,
		Content:      in.Content,
		Language:     language,
		Tags:         capTags(tagging.Merge(userTags, tagging.Generate(in.Content, language)...)),
		Visibility:   visibility,
		OwnerID:      userID,
		TeamID:       teamID,
		FolderID:     folderID,
		CustomFields: in.CustomFields,
	}
	version := &model.SnippetVersion{
		Content:       in.Content,
		ChangeMessage: "Initial version",
		AuthorID:      userID,
	}
	if err := s.repo.CreateSnippet(ctx, snippet, version); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("ownerId", userID),
		slog.String("language", language),
	)
	s.fx.snippetChanged(ctx, events.TableSnippets, events.ActionInsert, snippet.ID, snippet.ID, userID, snippet)
	s.fx.recordActivity(ctx, userID, model.ActivitySnippetCreated, snippet.ID, "Created "+snippet.Title)
	return snippet, nil
}

// Get returns a snippet the user may read and records a view.
func (s *SnippetService) Get(ctx context.Context, userID, id string) (*SnippetDetail, error) {
	return s.detail(ctx, userID, id, true)
}

// Peek is Get without the view. Realtime clients re-fetch on every change
// and those reloads are not views.
func (s *SnippetService) Peek(ctx context.Context, userID, id string) (*SnippetDetail, error) {
	return s.detail(ctx, userID, id, false)
}

func (s *SnippetService) detail(ctx context.Context, userID, id string, recordView bool) (*SnippetDetail, error) {
	snippet, role, err := s.access.Authorize(ctx, strings.TrimSpace(id), userID, authz.ActionRead)
	if err != nil {
		return nil, err
	}

	// A failed view count is not worth failing the read for.
	if recordView {
		if err := s.repo.RecordView(ctx, snippet.ID, userID); err != nil {
			s.logger.Warn("failed to record view",
				slog.String("snippetId", snippet.ID),
				slog.String("error", err.Error()),
			)
		} else {
			snippet.ViewCount++
		}
	}

	detail := &SnippetDetail{
		Snippet: *snippet,
		Role:    role,
		Actions: s.access.enforcer.Actions(role),
	}
	if userID != "" {
		liked, err := s.repo.HasLiked(ctx, snippet.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("checking like: %w", err)
		}
		detail.Liked = liked
	}
	return detail, nil
}

// List returns the snippets visible to userID that match the filter.
//
// FALLBACK:
// The full access query joins collaborators and team members. If the storage
// engine refuses it (repository.ErrPolicyRecursion), the user still gets
// their own snippets plus public ones instead of an error page.
func (s *SnippetService) List(ctx context.Context, userID string, f repository.SnippetFilter) ([]model.Snippet, error) {
	f.ListOptions = f.ListOptions.Normalize()
	if f.Visibility != "" && !f.Visibility.Valid() {
		return nil, apperror.ValidationFailed("visibility", fmt.Sprintf("unknown visibility %q", f.Visibility))
	}
	if f.Language != "" {
		f.Language = tagging.NormalizeLanguage(f.Language)
	}
	if f.Tag != "" {
		f.Tag = tagging.Normalize(f.Tag)
	}
	f.Query = strings.TrimSpace(f.Query)

	snippets, err := s.repo.ListAccessibleSnippets(ctx, userID, f)
	if errors.Is(err, repository.ErrPolicyRecursion) {
		s.logger.Warn("access policy query failed, falling back to owned and public snippets",
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
		snippets, err = s.repo.ListOwnedOrPublicSnippets(ctx, userID, f)
	}
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Update applies a partial update and appends a version. Editors may change
// content and metadata; moving the snippet (visibility, team, folder) is an
// owner action.
//
// Concurrent saves are last-write-wins. Every save is kept as a version, so
// an overwritten edit can still be restored.
func (s *SnippetService) Update(ctx context.Context, userID, id string, in UpdateSnippetInput) (*model.Snippet, error) {
	snippet, role, err := s.access.Authorize(ctx, strings.TrimSpace(id), userID, authz.ActionEdit)
	if err != nil {
		return nil, err
	}

	if in.Visibility != nil || in.TeamID != nil || in.FolderID != nil {
		if !s.access.enforcer.Can(role, authz.ActionManage) {
			return nil, apperror.Forbidden("only the owner can move a snippet or change its visibility")
		}
	}

	if in.Title != nil {
		title, err := validateTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		snippet.Title = title
	}
	if in.Description != nil {
		snippet.Description = strings.TrimSpace(*in.Description)
	}
	if in.Content != nil {
		snippet.Content = *in.Content
	}
	if in.Language != nil {
		language := tagging.NormalizeLanguage(*in.Language)
		if language == "" {
			return nil, apperror.ValidationFailed("language", "language cannot be empty")
		}
		snippet.Language = language
	}
	if in.Tags != nil {
		tags, err := validateTags(in.Tags)
		if err != nil {
			return nil, err
		}
		snippet.Tags = tags
	}
	if in.CustomFields != nil {
		snippet.CustomFields = in.CustomFields
	}
	if err := validateBody(snippet.Description, snippet.Content, snippet.CustomFields); err != nil {
		return nil, err
	}

	if in.Visibility != nil {
		v, err := model.ParseVisibility(*in.Visibility)
		if err != nil {
			return nil, apperror.ValidationFailed("visibility", err.Error())
		}
		snippet.Visibility = v
	}
	if in.TeamID != nil {
		snippet.TeamID = strings.TrimSpace(*in.TeamID)
	}
	if in.Visibility != nil || in.TeamID != nil {
		if err := s.checkTeam(ctx, userID, snippet.Visibility, snippet.TeamID); err != nil {
			return nil, err
		}
	}
	if in.FolderID != nil {
		folderID := strings.TrimSpace(*in.FolderID)
		if err := s.checkFolder(ctx, userID, folderID); err != nil {
			return nil, err
		}
		snippet.FolderID = folderID
	}

	message := strings.TrimSpace(in.ChangeMessage)
	if message == "" {
		message = "Updated snippet"
	}
	version := &model.SnippetVersion{
		Content:       snippet.Content,
		ChangeMessage: message,
		AuthorID:      userID,
	}
	if err := s.save(ctx, userID, snippet, version); err != nil {
		return nil, err
	}
	return snippet, nil
}

func (s *SnippetService) save(ctx context.Context, userID string, snippet *model.Snippet, version *model.SnippetVersion) error {
	if err := s.repo.UpdateSnippet(ctx, snippet, version); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", snippet.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated",
		slog.String("id", snippet.ID),
		slog.Int("version", version.VersionNumber),
		slog.String("userId", userID),
	)
	s.fx.snippetChanged(ctx, events.TableSnippets, events.ActionUpdate, snippet.ID, snippet.ID, userID, snippet)
	s.fx.snippetChanged(ctx, events.TableVersions, events.ActionInsert, snippet.ID, version.ID, userID, version)
	s.fx.recordActivity(ctx, userID, model.ActivitySnippetUpdated, snippet.ID,
		fmt.Sprintf("Saved version %d of %s", version.VersionNumber, snippet.Title))
	return nil
}

// Delete removes a snippet. Only the owner may do this; versions, comments,
// collaborators and likes go with it.
func (s *SnippetService) Delete(ctx context.Context, userID, id string) error {
	snippet, _, err := s.access.Authorize(ctx, strings.TrimSpace(id), userID, authz.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSnippet(ctx, snippet.ID); err != nil {
		return fmt.Errorf("deleting snippet: %w", err)
	}

	s.logger.Info("snippet deleted", slog.String("id", snippet.ID), slog.String("userId", userID))
	s.fx.snippetChanged(ctx, events.TableSnippets, events.ActionDelete, snippet.ID, snippet.ID, userID, nil)
	return nil
}

// Versions returns the history, newest first.
func (s *SnippetService) Versions(ctx context.Context, userID, id string) ([]model.SnippetVersion, error) {
	snippet, _, err := s.access.Authorize(ctx, strings.TrimSpace(id), userID, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, snippet.ID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return versions, nil
}

func (s *SnippetService) Version(ctx context.Context, userID, id string, number int) (*model.SnippetVersion, error) {
	if number < 1 {
		return nil, apperror.ValidationFailed("version", "version numbers start at 1")
	}
	snippet, _, err := s.access.Authorize(ctx, strings.TrimSpace(id), userID, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.repo.GetVersion(ctx, snippet.ID, number)
}

// Restore copies an old version's content into the snippet. History is never
// rewritten: the restore is itself a new version.
func (s *SnippetService) Restore(ctx context.Context, userID, id string, number int) (*model.Snippet, error) {
	if number < 1 {
		return nil, apperror.ValidationFailed("version", "version numbers start at 1")
	}
	snippet, _, err := s.access.Authorize(ctx, strings.TrimSpace(id), userID, authz.ActionEdit)
	if err != nil {
		return nil, err
	}
	old, err := s.repo.GetVersion(ctx, snippet.ID, number)
	if err != nil {
		return nil, err
	}

	snippet.Content = old.Content
	version := &model.SnippetVersion{
		Content:       old.Content,
		ChangeMessage: fmt.Sprintf("Restored from version %d", number),
		AuthorID:      userID,
	}
	if err := s.save(ctx, userID, snippet, version); err != nil {
		return nil, err
	}
	return snippet, nil
}

// Like records a like from userID. Liking twice is not an error; the second
// call simply changes nothing.
func (s *SnippetService) Like(ctx context.Context, userID, id string) (*LikeResult, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to like snippets")
	}
	snippet, _, err := s.access.Authorize(ctx, strings.TrimSpace(id), userID, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	added, err := s.repo.LikeSnippet(ctx, snippet.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("liking snippet: %w", err)
	}
	if !added {
		return &LikeResult{Liked: true, LikeCount: snippet.LikeCount}, nil
	}

	result := &LikeResult{Liked: true, LikeCount: snippet.LikeCount + 1}
	s.fx.snippetChanged(ctx, events.TableLikes, events.ActionInsert, snippet.ID, snippet.ID+":"+userID, userID, result)
	s.fx.notify(ctx, userID, &model.Notification{
		UserID:  snippet.OwnerID,
		Type:    model.NotificationLike,
		Title:   "New like",
		Message: fmt.Sprintf("Someone liked %s", snippet.Title),
		Data:    map[string]string{"snippetId": snippet.ID, "userId": userID},
	})
	return result, nil
}

func (s *SnippetService) Unlike(ctx context.Context, userID, id string) (*LikeResult, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to like snippets")
	}
	snippet, _, err := s.access.Authorize(ctx, strings.TrimSpace(id), userID, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	removed, err := s.repo.UnlikeSnippet(ctx, snippet.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("unliking snippet: %w", err)
	}
	if !removed {
		return &LikeResult{Liked: false, LikeCount: snippet.LikeCount}, nil
	}

	result := &LikeResult{Liked: false, LikeCount: max(snippet.LikeCount-1, 0)}
	s.fx.snippetChanged(ctx, events.TableLikes, events.ActionDelete, snippet.ID, snippet.ID+":"+userID, userID, result)
	return result, nil
}

// checkTeam enforces that team visibility names a team the caller belongs to.
func (s *SnippetService) checkTeam(ctx context.Context, userID string, v model.Visibility, teamID string) error {
	switch v {
	case model.VisibilityTeam:
		if teamID == "" {
			return apperror.ValidationFailed("teamId", "team visibility requires a team")
		}
	case model.VisibilityPublic, model.VisibilityPrivate:
		if teamID == "" {
			return nil
		}
	}
	if _, err := s.teams.GetTeamMember(ctx, teamID, userID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.Forbidden("you are not a member of that team")
		}
		return fmt.Errorf("checking team membership: %w", err)
	}
	return nil
}

func (s *SnippetService) checkFolder(ctx context.Context, userID, folderID string) error {
	if folderID == "" {
		return nil
	}
	folder, err := s.folders.GetFolder(ctx, folderID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("folderId", "folder does not exist")
		}
		return fmt.Errorf("checking folder: %w", err)
	}
	if folder.OwnerID != userID {
		return apperror.Forbidden("folder belongs to another user")
	}
	return nil
}

func validateTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return title, nil
}

// validateTags normalizes user tags and rejects more than tagging.MaxTags.
func validateTags(raw []string) ([]string, error) {
	tags := tagging.Merge(nil, raw...)
	if len(tags) > tagging.MaxTags {
		return nil, apperror.ValidationFailed("tags",
			fmt.Sprintf("at most %d tags are allowed", tagging.MaxTags))
	}
	return tags, nil
}

// capTags keeps the first tagging.MaxTags tags. User tags come first, so only
// generated ones are cut.
func capTags(tags []string) []string {
	if len(tags) > tagging.MaxTags {
		return tags[:tagging.MaxTags]
	}
	return tags
}

func validateBody(description, content string, fields map[string]string) error {
	if len(description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if strings.TrimSpace(content) == "" {
		return apperror.ValidationFailed("content", "content is required")
	}
	if len(content) > MaxContentLength {
		return apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or less", MaxContentLength))
	}
	if len(fields) > MaxCustomFields {
		return apperror.ValidationFailed("customFields",
			fmt.Sprintf("at most %d custom fields are allowed", MaxCustomFields))
	}
	for k, v := range fields {
		if strings.TrimSpace(k) == "" {
			return apperror.ValidationFailed("customFields", "custom field names cannot be empty")
		}
		if len(k) > MaxCustomFieldLength || len(v) > MaxCustomFieldLength {
			return apperror.ValidationFailed("customFields",
				fmt.Sprintf("custom fields must be %d characters or less", MaxCustomFieldLength))
		}
	}
	return nil
}
