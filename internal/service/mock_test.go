package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/authz"
	"github.com/sakif/vinstackcode/internal/events"
	"github.com/sakif/vinstackcode/internal/game"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================
//
// memStore implements every repository interface with maps, the same way
// sqlite.DB implements them with tables. The services cannot tell the
// difference, which is the point of depending on interfaces.
//
// It mirrors the sqlite behaviour the services rely on: NotFound for missing
// rows, Conflict for duplicates, newest-first listings, and the owner
// becoming a team member on CreateTeam.
//
// Setting policyRecursion makes ListAccessibleSnippets fail the way SQLite
// does when the access query is too deep, so the fallback path is testable.

type memStore struct {
	mu     sync.Mutex
	nextID int
	clock  time.Time

	profiles      map[string]*model.Profile
	snippets      map[string]*model.Snippet
	versions      map[string][]model.SnippetVersion
	likes         map[string]bool // snippetID + "/" + userID
	views         map[string]int
	collaborators map[string]*model.Collaborator // snippetID + "/" + userID
	comments      map[string]*model.Comment
	notifications map[string]*model.Notification
	folders       map[string]*model.Folder
	teams         map[string]*model.Team
	members       map[string]*model.TeamMember // teamID + "/" + userID
	activities    []model.Activity
	subscriptions map[string]*model.Subscription
	players       map[string]*model.Player

	policyRecursion bool
}

func newMemStore() *memStore {
	return &memStore{
		clock:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		profiles:      make(map[string]*model.Profile),
		snippets:      make(map[string]*model.Snippet),
		versions:      make(map[string][]model.SnippetVersion),
		likes:         make(map[string]bool),
		views:         make(map[string]int),
		collaborators: make(map[string]*model.Collaborator),
		comments:      make(map[string]*model.Comment),
		notifications: make(map[string]*model.Notification),
		folders:       make(map[string]*model.Folder),
		teams:         make(map[string]*model.Team),
		members:       make(map[string]*model.TeamMember),
		subscriptions: make(map[string]*model.Subscription),
		players:       make(map[string]*model.Player),
	}
}

var (
	_ repository.ProfileRepository      = (*memStore)(nil)
	_ repository.SnippetRepository      = (*memStore)(nil)
	_ repository.CollaboratorRepository = (*memStore)(nil)
	_ repository.CommentRepository      = (*memStore)(nil)
	_ repository.NotificationRepository = (*memStore)(nil)
	_ repository.FolderRepository       = (*memStore)(nil)
	_ repository.TeamRepository         = (*memStore)(nil)
	_ repository.ActivityRepository     = (*memStore)(nil)
	_ repository.SubscriptionRepository = (*memStore)(nil)
	_ repository.PlayerRepository       = (*memStore)(nil)
)

// id and now must be called with mu held.
func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func key(a, b string) string { return a + "/" + b }

func page[T any](items []T, opts repository.ListOptions) []T {
	opts = opts.Normalize()
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// =========================================================================
// PROFILES
// =========================================================================

func (m *memStore) usernameTaken(username, exceptID string) bool {
	for _, p := range m.profiles {
		if strings.EqualFold(p.Username, username) && p.ID != exceptID {
			return true
		}
	}
	return false
}

func (m *memStore) UpsertGitHubProfile(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if existing.GitHubID == p.GitHubID {
			if m.usernameTaken(p.Username, existing.ID) {
				return apperror.Conflictf("username %q is already taken", p.Username)
			}
			p.ID, p.CreatedAt, p.UpdatedAt = existing.ID, existing.CreatedAt, m.now()
			stored := *p
			m.profiles[p.ID] = &stored
			return nil
		}
	}
	if m.usernameTaken(p.Username, "") {
		return apperror.Conflictf("username %q is already taken", p.Username)
	}
	p.ID = m.id("user")
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	stored := *p
	m.profiles[p.ID] = &stored
	return nil
}

func (m *memStore) CreateProfile(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usernameTaken(p.Username, "") {
		return apperror.Conflictf("username %q is already taken", p.Username)
	}
	if p.ID == "" {
		p.ID = m.id("user")
	}
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	stored := *p
	m.profiles[p.ID] = &stored
	return nil
}

func (m *memStore) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, apperror.NotFound("profile", id)
	}
	out := *p
	return &out, nil
}

func (m *memStore) GetProfileByUsername(_ context.Context, username string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if strings.EqualFold(p.Username, username) {
			out := *p
			return &out, nil
		}
	}
	return nil, apperror.NotFound("profile", username)
}

func (m *memStore) GetProfileByEmail(_ context.Context, email string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if email != "" && strings.EqualFold(p.Email, email) {
			out := *p
			return &out, nil
		}
	}
	return nil, apperror.NotFound("profile", email)
}

// =========================================================================
// SNIPPETS AND VERSIONS
// =========================================================================

func (m *memStore) CreateSnippet(_ context.Context, s *model.Snippet, v *model.SnippetVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id("snippet")
	s.CreatedAt = m.now()
	s.UpdatedAt = s.CreatedAt
	stored := *s
	m.snippets[s.ID] = &stored

	v.ID = m.id("version")
	v.SnippetID = s.ID
	v.VersionNumber = 1
	v.CreatedAt = s.CreatedAt
	m.versions[s.ID] = []model.SnippetVersion{*v}
	return nil
}

func (m *memStore) GetSnippet(_ context.Context, id string) (*model.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	out := *s
	return &out, nil
}

func (m *memStore) canSee(s *model.Snippet, userID string) bool {
	if s.Visibility == model.VisibilityPublic || (userID != "" && s.OwnerID == userID) {
		return true
	}
	if userID == "" {
		return false
	}
	if c, ok := m.collaborators[key(s.ID, userID)]; ok && c.Accepted() {
		return true
	}
	if s.Visibility == model.VisibilityTeam {
		_, ok := m.members[key(s.TeamID, userID)]
		return ok
	}
	return false
}

func matches(s *model.Snippet, f repository.SnippetFilter) bool {
	switch {
	case f.Language != "" && s.Language != f.Language:
		return false
	case f.Tag != "" && !slices.Contains(s.Tags, f.Tag):
		return false
	case f.Visibility != "" && s.Visibility != f.Visibility:
		return false
	case f.OwnerID != "" && s.OwnerID != f.OwnerID:
		return false
	case f.FolderID != "" && s.FolderID != f.FolderID:
		return false
	case f.Query != "" &&
		!strings.Contains(strings.ToLower(s.Title), strings.ToLower(f.Query)) &&
		!strings.Contains(strings.ToLower(s.Description), strings.ToLower(f.Query)):
		return false
	}
	return true
}

func (m *memStore) listSnippets(userID string, f repository.SnippetFilter, visible func(*model.Snippet) bool) []model.Snippet {
	var out []model.Snippet
	for _, s := range m.snippets {
		if visible(s) && matches(s, f) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, f.ListOptions)
}

func (m *memStore) ListAccessibleSnippets(_ context.Context, userID string, f repository.SnippetFilter) ([]model.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.policyRecursion {
		return nil, fmt.Errorf("listing snippets: %w", repository.ErrPolicyRecursion)
	}
	return m.listSnippets(userID, f, func(s *model.Snippet) bool { return m.canSee(s, userID) }), nil
}

func (m *memStore) ListOwnedOrPublicSnippets(_ context.Context, userID string, f repository.SnippetFilter) ([]model.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listSnippets(userID, f, func(s *model.Snippet) bool {
		return s.Visibility == model.VisibilityPublic || (userID != "" && s.OwnerID == userID)
	}), nil
}

func (m *memStore) UpdateSnippet(_ context.Context, s *model.Snippet, v *model.SnippetVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snippets[s.ID]; !ok {
		return apperror.NotFound("snippet", s.ID)
	}
	s.UpdatedAt = m.now()
	stored := *s
	m.snippets[s.ID] = &stored

	v.ID = m.id("version")
	v.SnippetID = s.ID
	v.VersionNumber = len(m.versions[s.ID]) + 1
	v.CreatedAt = s.UpdatedAt
	m.versions[s.ID] = append(m.versions[s.ID], *v)
	return nil
}

func (m *memStore) DeleteSnippet(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snippets[id]; !ok {
		return apperror.NotFound("snippet", id)
	}
	delete(m.snippets, id)
	delete(m.versions, id)
	for k, c := range m.collaborators {
		if c.SnippetID == id {
			delete(m.collaborators, k)
		}
	}
	for k, c := range m.comments {
		if c.SnippetID == id {
			delete(m.comments, k)
		}
	}
	return nil
}

func (m *memStore) ListVersions(_ context.Context, snippetID string) ([]model.SnippetVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.versions[snippetID])
	slices.Reverse(out)
	return out, nil
}

func (m *memStore) GetVersion(_ context.Context, snippetID string, number int) (*model.SnippetVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.versions[snippetID]
	if number < 1 || number > len(vs) {
		return nil, apperror.NotFound("snippet version", fmt.Sprintf("%s@%d", snippetID, number))
	}
	v := vs[number-1]
	return &v, nil
}

func (m *memStore) LikeSnippet(_ context.Context, snippetID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[snippetID]
	if !ok {
		return false, apperror.NotFound("snippet", snippetID)
	}
	if m.likes[key(snippetID, userID)] {
		return false, nil
	}
	m.likes[key(snippetID, userID)] = true
	s.LikeCount++
	return true, nil
}

func (m *memStore) UnlikeSnippet(_ context.Context, snippetID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.likes[key(snippetID, userID)] {
		return false, nil
	}
	delete(m.likes, key(snippetID, userID))
	if s, ok := m.snippets[snippetID]; ok && s.LikeCount > 0 {
		s.LikeCount--
	}
	return true, nil
}

func (m *memStore) HasLiked(_ context.Context, snippetID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.likes[key(snippetID, userID)], nil
}

func (m *memStore) RecordView(_ context.Context, snippetID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[snippetID]
	if !ok {
		return apperror.NotFound("snippet", snippetID)
	}
	s.ViewCount++
	m.views[snippetID]++
	return nil
}

// =========================================================================
// COLLABORATORS AND COMMENTS
// =========================================================================

func (m *memStore) AddCollaborator(_ context.Context, c *model.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collaborators[key(c.SnippetID, c.UserID)]; ok {
		return apperror.Conflictf("user %s is already a collaborator", c.UserID)
	}
	if _, ok := m.snippets[c.SnippetID]; !ok {
		return apperror.NotFound("snippet or user", c.SnippetID+"/"+c.UserID)
	}
	c.CreatedAt = m.now()
	stored := *c
	m.collaborators[key(c.SnippetID, c.UserID)] = &stored
	return nil
}

func (m *memStore) GetCollaborator(_ context.Context, snippetID, userID string) (*model.Collaborator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collaborators[key(snippetID, userID)]
	if !ok {
		return nil, apperror.NotFound("collaborator", userID)
	}
	out := *c
	return &out, nil
}

func (m *memStore) ListCollaborators(_ context.Context, snippetID string) ([]model.Collaborator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Collaborator
	for _, c := range m.collaborators {
		if c.SnippetID == snippetID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) AcceptCollaborator(_ context.Context, snippetID, userID string) (*model.Collaborator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collaborators[key(snippetID, userID)]
	if !ok {
		return nil, apperror.NotFound("invitation", snippetID)
	}
	if c.AcceptedAt == nil {
		now := m.now()
		c.AcceptedAt = &now
	}
	out := *c
	return &out, nil
}

func (m *memStore) RemoveCollaborator(_ context.Context, snippetID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collaborators[key(snippetID, userID)]; !ok {
		return apperror.NotFound("collaborator", userID)
	}
	delete(m.collaborators, key(snippetID, userID))
	return nil
}

func (m *memStore) CreateComment(_ context.Context, c *model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snippets[c.SnippetID]; !ok {
		return apperror.NotFound("snippet or parent comment", c.SnippetID)
	}
	c.ID = m.id("comment")
	c.CreatedAt = m.now()
	c.UpdatedAt = c.CreatedAt
	stored := *c
	m.comments[c.ID] = &stored
	return nil
}

func (m *memStore) GetComment(_ context.Context, id string) (*model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", id)
	}
	out := *c
	return &out, nil
}

func (m *memStore) ListComments(_ context.Context, snippetID string) ([]model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Comment
	for _, c := range m.comments {
		if c.SnippetID == snippetID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) SetCommentResolved(_ context.Context, id string, resolved bool) (*model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", id)
	}
	c.IsResolved = resolved
	c.UpdatedAt = m.now()
	out := *c
	return &out, nil
}

// DeleteComment cascades to replies like the schema's ON DELETE CASCADE.
func (m *memStore) DeleteComment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return apperror.NotFound("comment", id)
	}
	var drop func(string)
	drop = func(id string) {
		delete(m.comments, id)
		for childID, c := range m.comments {
			if c.ParentID == id {
				drop(childID)
			}
		}
	}
	drop(id)
	return nil
}

// =========================================================================
// NOTIFICATIONS AND ACTIVITY
// =========================================================================

func (m *memStore) CreateNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = m.id("notification")
	n.CreatedAt = m.now()
	stored := *n
	m.notifications[n.ID] = &stored
	return nil
}

func (m *memStore) ListNotifications(_ context.Context, userID string, opts repository.ListOptions) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, opts), nil
}

func (m *memStore) GetNotification(_ context.Context, id string) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, apperror.NotFound("notification", id)
	}
	out := *n
	return &out, nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return apperror.NotFound("notification", id)
	}
	n.IsRead = true
	return nil
}

func (m *memStore) MarkAllNotificationsRead(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (m *memStore) DeleteNotification(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return apperror.NotFound("notification", id)
	}
	delete(m.notifications, id)
	return nil
}

func (m *memStore) CountUnread(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *memStore) AddActivity(_ context.Context, a *model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id("activity")
	a.CreatedAt = m.now()
	m.activities = append(m.activities, *a)
	return nil
}

func (m *memStore) ListActivities(_ context.Context, userID string, opts repository.ListOptions) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Activity
	for i := len(m.activities) - 1; i >= 0; i-- {
		if m.activities[i].UserID == userID {
			out = append(out, m.activities[i])
		}
	}
	return page(out, opts), nil
}

// =========================================================================
// FOLDERS AND TEAMS
// =========================================================================

func (m *memStore) CreateFolder(_ context.Context, f *model.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ParentID != "" {
		if _, ok := m.folders[f.ParentID]; !ok {
			return apperror.NotFound("parent folder", f.ParentID)
		}
	}
	f.ID = m.id("folder")
	f.CreatedAt = m.now()
	stored := *f
	m.folders[f.ID] = &stored
	return nil
}

func (m *memStore) GetFolder(_ context.Context, id string) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok {
		return nil, apperror.NotFound("folder", id)
	}
	out := *f
	return &out, nil
}

func (m *memStore) ListFolders(_ context.Context, ownerID string) ([]model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Folder
	for _, f := range m.folders {
		if f.OwnerID == ownerID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateTeam(_ context.Context, t *model.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id("team")
	t.CreatedAt = m.now()
	stored := *t
	m.teams[t.ID] = &stored
	m.members[key(t.ID, t.OwnerID)] = &model.TeamMember{
		TeamID: t.ID, UserID: t.OwnerID, Role: model.TeamRoleOwner, JoinedAt: t.CreatedAt,
	}
	return nil
}

func (m *memStore) GetTeam(_ context.Context, id string) (*model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, apperror.NotFound("team", id)
	}
	out := *t
	return &out, nil
}

func (m *memStore) ListTeamsForUser(_ context.Context, userID string) ([]model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Team
	for _, t := range m.teams {
		if _, ok := m.members[key(t.ID, userID)]; ok {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) AddTeamMember(_ context.Context, tm *model.TeamMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[key(tm.TeamID, tm.UserID)]; ok {
		return apperror.Conflictf("user %s is already a member", tm.UserID)
	}
	if _, ok := m.teams[tm.TeamID]; !ok {
		return apperror.NotFound("team or user", tm.TeamID+"/"+tm.UserID)
	}
	tm.JoinedAt = m.now()
	stored := *tm
	m.members[key(tm.TeamID, tm.UserID)] = &stored
	return nil
}

func (m *memStore) GetTeamMember(_ context.Context, teamID, userID string) (*model.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.members[key(teamID, userID)]
	if !ok {
		return nil, apperror.NotFound("team member", userID)
	}
	out := *tm
	return &out, nil
}

func (m *memStore) ListTeamMembers(_ context.Context, teamID string) ([]model.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TeamMember
	for _, tm := range m.members {
		if tm.TeamID == teamID {
			out = append(out, *tm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *memStore) RemoveTeamMember(_ context.Context, teamID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[key(teamID, userID)]; !ok {
		return apperror.NotFound("team member", userID)
	}
	delete(m.members, key(teamID, userID))
	return nil
}

// =========================================================================
// BILLING AND PLAYERS
// =========================================================================

func (m *memStore) UpsertSubscription(_ context.Context, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.subscriptions[s.UserID]; ok && s.CustomerID == "" {
		s.CustomerID = existing.CustomerID
	}
	s.UpdatedAt = m.now()
	stored := *s
	m.subscriptions[s.UserID] = &stored
	return nil
}

func (m *memStore) GetSubscription(_ context.Context, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[userID]
	if !ok {
		return nil, apperror.NotFound("subscription", userID)
	}
	out := *s
	return &out, nil
}

func (m *memStore) GetPlayer(_ context.Context, userID string) (*model.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[userID]
	if !ok {
		return nil, apperror.NotFound("player", userID)
	}
	out := *p
	out.CompletedQuests = slices.Clone(p.CompletedQuests)
	return &out, nil
}

func (m *memStore) RecordCompletion(_ context.Context, c repository.Completion) (*model.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[c.UserID]
	if !ok {
		fresh := game.NewPlayer(c.UserID)
		p = &fresh
	}
	if p.HasCompleted(c.QuestID) {
		return nil, apperror.Conflictf("quest %s is already completed", c.QuestID)
	}
	stored := *p
	stored.CompletedQuests = append(slices.Clone(p.CompletedQuests), c.QuestID)
	stored.Experience += c.XPGained
	stored.CodeCoins += c.CoinsGained
	stored.Level = game.LevelFor(stored.Experience)
	m.players[c.UserID] = &stored

	out := stored
	out.CompletedQuests = slices.Clone(stored.CompletedQuests)
	return &out, nil
}

// =========================================================================
// TEST DOUBLES AND HELPERS
// =========================================================================

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Table+":"+string(ev.Action))
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// addUser stores a profile and returns its ID.
func (m *memStore) addUser(t *testing.T, username string) string {
	t.Helper()
	p := &model.Profile{Username: username, Email: username + "@example.com"}
	if err := m.CreateProfile(context.Background(), p); err != nil {
		t.Fatalf("CreateProfile(%s) error = %v", username, err)
	}
	return p.ID
}

// env is a fully wired set of services over one store, so a test can invite
// through one service and check notifications through another.
type env struct {
	store         *memStore
	publisher     *recordingPublisher
	access        *Access
	snippets      *SnippetService
	collaborators *CollaboratorService
	comments      *CommentService
	notifications *NotificationService
	teams         *TeamService
	folders       *FolderService
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	store := newMemStore()
	pub := &recordingPublisher{}
	logger := testLogger()

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	access := NewAccess(store, store, store, enforcer)
	notifications := NewNotificationService(store, pub, logger)

	return &env{
		store:         store,
		publisher:     pub,
		access:        access,
		snippets:      NewSnippetService(store, store, store, access, pub, notifications, store, logger),
		collaborators: NewCollaboratorService(store, store, access, pub, notifications, logger),
		comments:      NewCommentService(store, access, pub, notifications, store, logger),
		notifications: notifications,
		teams:         NewTeamService(store, store, notifications, logger),
		folders:       NewFolderService(store, logger),
	}
}

// newSnippet creates a snippet owned by ownerID with the given visibility.
func (e *env) newSnippet(t *testing.T, ownerID string, visibility model.Visibility) *model.Snippet {
	t.Helper()
	s, err := e.snippets.Create(context.Background(), ownerID, CreateSnippetInput{
		Title:      "Binary search",
		Content:    "def search(xs, x):\n    return xs.index(x)\n",
		Language:   "python",
		Visibility: string(visibility),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s
}

// collaborate invites userID with role and accepts on their behalf.
func (e *env) collaborate(t *testing.T, snippetID, ownerID, username string, role model.Role) {
	t.Helper()
	ctx := context.Background()
	c, err := e.collaborators.Invite(ctx, ownerID, snippetID, username, role)
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}
	if _, err := e.collaborators.Accept(ctx, c.UserID, snippetID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
}
