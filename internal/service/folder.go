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

const MaxFolderNameLength = 100

// FolderService manages a user's folders. Folders are private to their
// owner; nesting is one parent pointer per folder.
type FolderService struct {
	repo   repository.FolderRepository
	logger *slog.Logger
}

func NewFolderService(repo repository.FolderRepository, logger *slog.Logger) *FolderService {
	return &FolderService{repo: repo, logger: logger}
}

func (s *FolderService) Create(ctx context.Context, userID, name, parentID string) (*model.Folder, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to create folders")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "folder name is required")
	}
	if len(name) > MaxFolderNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("folder name must be %d characters or less", MaxFolderNameLength))
	}

	parentID = strings.TrimSpace(parentID)
	if parentID != "" {
		parent, err := s.repo.GetFolder(ctx, parentID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, apperror.ValidationFailed("parentId", "parent folder does not exist")
			}
			return nil, fmt.Errorf("loading parent folder: %w", err)
		}
		if parent.OwnerID != userID {
			return nil, apperror.Forbidden("parent folder belongs to another user")
		}
	}

	f := &model.Folder{OwnerID: userID, Name: name, ParentID: parentID}
	if err := s.repo.CreateFolder(ctx, f); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}
	s.logger.Info("folder created", slog.String("id", f.ID), slog.String("ownerId", userID))
	return f, nil
}

func (s *FolderService) List(ctx context.Context, userID string) ([]model.Folder, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to see folders")
	}
	folders, err := s.repo.ListFolders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}
