// Package model defines the core domain types for VinStackCode.
//
// WHY A SEPARATE MODEL PACKAGE?
// Handlers, services, repositories and the realtime layer all speak about the
// same things: snippets, collaborators, comments, notifications. Putting those
// types in one leaf package (it imports nothing from this module) avoids import
// cycles and gives every layer one shared vocabulary.
//
// CLOSED VARIANTS:
// Fields that can only take a handful of values (visibility, role, quest kind)
// are named string types with a Valid() method. Every switch over them lists
// every case, so adding a variant is a compile-visible change at each use site
// once a linter like exhaustive is enabled.
package model

import (
	"fmt"
	"time"
)

// Visibility controls who can read a snippet.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityTeam    Visibility = "team"
)

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityTeam:
		return true
	default:
		return false
	}
}

// ParseVisibility converts user input, treating "" as private.
func ParseVisibility(s string) (Visibility, error) {
	if s == "" {
		return VisibilityPrivate, nil
	}
	v := Visibility(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown visibility %q", s)
	}
	return v, nil
}

// Snippet is a saved unit of code with metadata.
//
// JSON TAGS:
// The API speaks camelCase; the database speaks snake_case. The sqlite package
// maps columns by hand, so the struct only needs json tags.
type Snippet struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Content      string            `json:"content"`
	Language     string            `json:"language"`
	Tags         []string          `json:"tags"`
	Visibility   Visibility        `json:"visibility"`
	OwnerID      string            `json:"ownerId"`
	TeamID       string            `json:"teamId,omitempty"`
	FolderID     string            `json:"folderId,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
	LikeCount    int               `json:"likeCount"`
	ViewCount    int               `json:"viewCount"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// SnippetVersion is an immutable snapshot written on every save.
type SnippetVersion struct {
	ID            string    `json:"id"`
	SnippetID     string    `json:"snippetId"`
	VersionNumber int       `json:"versionNumber"`
	Content       string    `json:"content"`
	ChangeMessage string    `json:"changeMessage"`
	AuthorID      string    `json:"authorId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Folder groups a user's snippets.
type Folder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parentId,omitempty"` // empty for top-level folders
	CreatedAt time.Time `json:"createdAt"`
}
