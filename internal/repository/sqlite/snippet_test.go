package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
)

// =========================================================================
// CREATE / GET
// =========================================================================

func TestCreateSnippet_WritesFirstVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "ada")

	s := &model.Snippet{
		Title:        "hello",
		Content:      "print('hi')",
		Language:     "python",
		Tags:         []string{"python", "basics"},
		Visibility:   model.VisibilityPublic,
		OwnerID:      owner.ID,
		CustomFields: map[string]string{"difficulty": "easy"},
	}
	v := &model.SnippetVersion{Content: s.Content, ChangeMessage: "Initial version", AuthorID: owner.ID}
	if err := db.CreateSnippet(ctx, s, v); err != nil {
		t.Fatalf("CreateSnippet() error = %v", err)
	}
	if s.ID == "" || s.CreatedAt.IsZero() {
		t.Fatal("CreateSnippet() did not fill ID and timestamps")
	}
	if v.VersionNumber != 1 || v.SnippetID != s.ID {
		t.Errorf("version = %d for %q, want 1 for %q", v.VersionNumber, v.SnippetID, s.ID)
	}

	got, err := db.GetSnippet(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSnippet() error = %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[1] != "basics" {
		t.Errorf("Tags = %v, want [python basics]", got.Tags)
	}
	if got.CustomFields["difficulty"] != "easy" {
		t.Errorf("CustomFields = %v, want difficulty=easy", got.CustomFields)
	}
	if got.Visibility != model.VisibilityPublic {
		t.Errorf("Visibility = %q, want public", got.Visibility)
	}
}

func TestCreateSnippet_RequiresVersion(t *testing.T) {
	db := newTestDB(t)
	owner := createTestProfile(t, db, "ada")

	err := db.CreateSnippet(context.Background(), &model.Snippet{Title: "x", Language: "python",
		Visibility: model.VisibilityPrivate, OwnerID: owner.ID}, nil)
	if err == nil {
		t.Fatal("CreateSnippet() without a version should fail")
	}
}

func TestGetSnippet_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetSnippet(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetSnippet() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE / VERSIONS
// =========================================================================

func TestUpdateSnippet_AppendsVersions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "ada")
	s := createTestSnippet(t, db, owner.ID, "draft", model.VisibilityPrivate)

	for i, content := range []string{"v2", "v3"} {
		s.Content = content
		v := &model.SnippetVersion{Content: content, ChangeMessage: "edit", AuthorID: owner.ID}
		if err := db.UpdateSnippet(ctx, s, v); err != nil {
			t.Fatalf("UpdateSnippet() #%d error = %v", i, err)
		}
		if v.VersionNumber != i+2 {
			t.Errorf("VersionNumber = %d, want %d", v.VersionNumber, i+2)
		}
	}

	versions, err := db.ListVersions(ctx, s.ID)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("ListVersions() returned %d, want 3", len(versions))
	}
	if versions[0].VersionNumber != 3 || versions[0].Content != "v3" {
		t.Errorf("newest version = %d %q, want 3 \"v3\"", versions[0].VersionNumber, versions[0].Content)
	}

	v1, err := db.GetVersion(ctx, s.ID, 1)
	if err != nil {
		t.Fatalf("GetVersion(1) error = %v", err)
	}
	if v1.Content != "print('draft')" {
		t.Errorf("version 1 content = %q, want the original", v1.Content)
	}
}

func TestUpdateSnippet_NotFound(t *testing.T) {
	db := newTestDB(t)
	s := &model.Snippet{ID: "missing", Title: "x", Language: "python", Visibility: model.VisibilityPrivate}
	err := db.UpdateSnippet(context.Background(), s, &model.SnippetVersion{Content: "x", AuthorID: "u"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateSnippet() error = %v, want ErrNotFound", err)
	}
}

func TestGetVersion_NotFound(t *testing.T) {
	db := newTestDB(t)
	owner := createTestProfile(t, db, "ada")
	s := createTestSnippet(t, db, owner.ID, "a", model.VisibilityPrivate)

	_, err := db.GetVersion(context.Background(), s.ID, 9)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetVersion() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteSnippet_CascadesVersions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := createTestProfile(t, db, "ada")
	s := createTestSnippet(t, db, owner.ID, "gone", model.VisibilityPrivate)

	if err := db.DeleteSnippet(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSnippet() error = %v", err)
	}
	versions, err := db.ListVersions(ctx, s.ID)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("versions left after delete = %d, want 0", len(versions))
	}
	if err := db.DeleteSnippet(ctx, s.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteSnippet() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// ACCESS RULES
// =========================================================================

func TestListAccessibleSnippets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ada := createTestProfile(t, db, "ada")
	bob := createTestProfile(t, db, "bob")
	eve := createTestProfile(t, db, "eve")

	public := createTestSnippet(t, db, ada.ID, "public", model.VisibilityPublic)
	private := createTestSnippet(t, db, ada.ID, "private", model.VisibilityPrivate)
	shared := createTestSnippet(t, db, ada.ID, "shared", model.VisibilityPrivate)
	pending := createTestSnippet(t, db, ada.ID, "pending", model.VisibilityPrivate)

	team := &model.Team{Name: "core", OwnerID: ada.ID}
	if err := db.CreateTeam(ctx, team); err != nil {
		t.Fatalf("CreateTeam() error = %v", err)
	}
	if err := db.AddTeamMember(ctx, &model.TeamMember{TeamID: team.ID, UserID: bob.ID, Role: model.TeamRoleMember}); err != nil {
		t.Fatalf("AddTeamMember() error = %v", err)
	}
	teamSnippet := createTestSnippet(t, db, ada.ID, "team", model.VisibilityTeam)
	teamSnippet.TeamID = team.ID
	if err := db.UpdateSnippet(ctx, teamSnippet, &model.SnippetVersion{Content: teamSnippet.Content, AuthorID: ada.ID}); err != nil {
		t.Fatalf("UpdateSnippet() error = %v", err)
	}

	addAccepted(t, db, shared.ID, bob.ID, ada.ID)
	if err := db.AddCollaborator(ctx, &model.Collaborator{SnippetID: pending.ID, UserID: bob.ID,
		Role: model.RoleViewer, InvitedBy: ada.ID}); err != nil {
		t.Fatalf("AddCollaborator() error = %v", err)
	}

	tests := []struct {
		name   string
		userID string
		want   []string
	}{
		{"owner sees everything", ada.ID, []string{public.ID, private.ID, shared.ID, pending.ID, teamSnippet.ID}},
		{"collaborator and team member", bob.ID, []string{public.ID, shared.ID, teamSnippet.ID}},
		{"stranger sees public", eve.ID, []string{public.ID}},
		{"anonymous sees public", "", []string{public.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListAccessibleSnippets(ctx, tt.userID, repository.SnippetFilter{})
			if err != nil {
				t.Fatalf("ListAccessibleSnippets() error = %v", err)
			}
			assertSameIDs(t, got, tt.want)
		})
	}
}

func TestListOwnedOrPublicSnippets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestProfile(t, db, "ada")
	bob := createTestProfile(t, db, "bob")

	public := createTestSnippet(t, db, ada.ID, "public", model.VisibilityPublic)
	shared := createTestSnippet(t, db, ada.ID, "shared", model.VisibilityPrivate)
	own := createTestSnippet(t, db, bob.ID, "mine", model.VisibilityPrivate)
	addAccepted(t, db, shared.ID, bob.ID, ada.ID)

	got, err := db.ListOwnedOrPublicSnippets(ctx, bob.ID, repository.SnippetFilter{})
	if err != nil {
		t.Fatalf("ListOwnedOrPublicSnippets() error = %v", err)
	}
	assertSameIDs(t, got, []string{public.ID, own.ID})
}

func TestListSnippets_Filters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestProfile(t, db, "ada")

	py := createTestSnippet(t, db, ada.ID, "Async fetch", model.VisibilityPublic)
	js := &model.Snippet{Title: "promise chain", Description: "50% off", Content: "x", Language: "javascript",
		Tags: []string{"javascript", "async"}, Visibility: model.VisibilityPublic, OwnerID: ada.ID}
	if err := db.CreateSnippet(ctx, js, &model.SnippetVersion{Content: "x", AuthorID: ada.ID}); err != nil {
		t.Fatalf("CreateSnippet() error = %v", err)
	}

	tests := []struct {
		name   string
		filter repository.SnippetFilter
		want   []string
	}{
		{"language", repository.SnippetFilter{Language: "javascript"}, []string{js.ID}},
		{"tag", repository.SnippetFilter{Tag: "python"}, []string{py.ID}},
		{"tag shared by none", repository.SnippetFilter{Tag: "rust"}, nil},
		{"query on title", repository.SnippetFilter{Query: "async"}, []string{py.ID}},
		{"query percent is literal", repository.SnippetFilter{Query: "50%"}, []string{js.ID}},
		{"owner", repository.SnippetFilter{OwnerID: ada.ID}, []string{py.ID, js.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListAccessibleSnippets(ctx, "", tt.filter)
			if err != nil {
				t.Fatalf("ListAccessibleSnippets() error = %v", err)
			}
			assertSameIDs(t, got, tt.want)
		})
	}
}

func TestListSnippets_Pagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestProfile(t, db, "ada")
	for i := 0; i < 25; i++ {
		createTestSnippet(t, db, ada.ID, "s", model.VisibilityPublic)
	}

	page, err := db.ListAccessibleSnippets(ctx, ada.ID, repository.SnippetFilter{})
	if err != nil {
		t.Fatalf("ListAccessibleSnippets() error = %v", err)
	}
	if len(page) != repository.DefaultLimit {
		t.Errorf("default page size = %d, want %d", len(page), repository.DefaultLimit)
	}

	last, err := db.ListAccessibleSnippets(ctx, ada.ID, repository.SnippetFilter{
		ListOptions: repository.ListOptions{Limit: 10, Offset: 20},
	})
	if err != nil {
		t.Fatalf("ListAccessibleSnippets() error = %v", err)
	}
	if len(last) != 5 {
		t.Errorf("last page size = %d, want 5", len(last))
	}
}

// =========================================================================
// LIKES AND VIEWS
// =========================================================================

func TestLikeSnippet_OncePerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestProfile(t, db, "ada")
	s := createTestSnippet(t, db, ada.ID, "liked", model.VisibilityPublic)

	first, err := db.LikeSnippet(ctx, s.ID, ada.ID)
	if err != nil || !first {
		t.Fatalf("first LikeSnippet() = %v, %v; want true, nil", first, err)
	}
	second, err := db.LikeSnippet(ctx, s.ID, ada.ID)
	if err != nil || second {
		t.Fatalf("second LikeSnippet() = %v, %v; want false, nil", second, err)
	}

	got, _ := db.GetSnippet(ctx, s.ID)
	if got.LikeCount != 1 {
		t.Errorf("LikeCount = %d, want 1", got.LikeCount)
	}
	if liked, _ := db.HasLiked(ctx, s.ID, ada.ID); !liked {
		t.Error("HasLiked() = false after like")
	}

	removed, err := db.UnlikeSnippet(ctx, s.ID, ada.ID)
	if err != nil || !removed {
		t.Fatalf("UnlikeSnippet() = %v, %v; want true, nil", removed, err)
	}
	removed, _ = db.UnlikeSnippet(ctx, s.ID, ada.ID)
	if removed {
		t.Error("second UnlikeSnippet() reported a removal")
	}
	got, _ = db.GetSnippet(ctx, s.ID)
	if got.LikeCount != 0 {
		t.Errorf("LikeCount after unlike = %d, want 0", got.LikeCount)
	}
}

func TestLikeSnippet_MissingSnippet(t *testing.T) {
	db := newTestDB(t)
	_, err := db.LikeSnippet(context.Background(), "missing", "u")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("LikeSnippet() error = %v, want ErrNotFound", err)
	}
}

func TestRecordView(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ada := createTestProfile(t, db, "ada")
	s := createTestSnippet(t, db, ada.ID, "viewed", model.VisibilityPublic)

	if err := db.RecordView(ctx, s.ID, ada.ID); err != nil {
		t.Fatalf("RecordView() error = %v", err)
	}
	if err := db.RecordView(ctx, s.ID, ""); err != nil {
		t.Fatalf("anonymous RecordView() error = %v", err)
	}
	got, _ := db.GetSnippet(ctx, s.ID)
	if got.ViewCount != 2 {
		t.Errorf("ViewCount = %d, want 2", got.ViewCount)
	}
}

// =========================================================================
// HELPERS
// =========================================================================

func addAccepted(t *testing.T, db *DB, snippetID, userID, invitedBy string) {
	t.Helper()
	ctx := context.Background()
	c := &model.Collaborator{SnippetID: snippetID, UserID: userID, Role: model.RoleEditor, InvitedBy: invitedBy}
	if err := db.AddCollaborator(ctx, c); err != nil {
		t.Fatalf("AddCollaborator() error = %v", err)
	}
	if _, err := db.AcceptCollaborator(ctx, snippetID, userID); err != nil {
		t.Fatalf("AcceptCollaborator() error = %v", err)
	}
}

func assertSameIDs(t *testing.T, got []model.Snippet, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d snippets, want %d", len(got), len(want))
	}
	seen := make(map[string]bool, len(got))
	for _, s := range got {
		seen[s.ID] = true
	}
	for _, id := range want {
		if !seen[id] {
			t.Errorf("snippet %s missing from result", id)
		}
	}
}
