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
	"github.com/sakif/vinstackcode/internal/thread"
)

const MaxCommentLength = 5000

// CommentInput is a new comment. ParentID makes it a reply; Line anchors it
// to a line of the snippet.
type CommentInput struct {
	Content  string
	ParentID string
	Line     *int
}

// CommentService stores comments flat and hands them out as threads.
type CommentService struct {
	repo   repository.CommentRepository
	access *Access
	fx     sideEffects
	logger *slog.Logger
}

func NewCommentService(
	repo repository.CommentRepository,
	access *Access,
	publisher events.Publisher,
	notifier Notifier,
	activities repository.ActivityRepository,
	logger *slog.Logger,
) *CommentService {
	return &CommentService{
		repo:   repo,
		access: access,
		fx: sideEffects{
			publisher:  publisher,
			notifier:   notifier,
			activities: activities,
			logger:     logger,
		},
		logger: logger,
	}
}

// Threads returns the snippet's comments as a forest. The tree is rebuilt on
// every call; a row whose parent is gone is dropped.
func (s *CommentService) Threads(ctx context.Context, userID, snippetID string) ([]*thread.Node, error) {
	snippet, _, err := s.access.Authorize(ctx, snippetID, userID, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListComments(ctx, snippet.ID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	roots := thread.Build(rows, thread.DropOrphans)
	if dropped := len(rows) - thread.Count(roots); dropped > 0 {
		s.logger.Warn("dropped orphaned comments",
			slog.String("snippetId", snippet.ID),
			slog.Int("count", dropped),
		)
	}
	return roots, nil
}

// Create posts a comment or a reply. The snippet owner hears about top-level
// comments; the parent's author hears about replies.
func (s *CommentService) Create(ctx context.Context, userID, snippetID string, in CommentInput) (*model.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "comment cannot be empty")
	}
	if len(content) > MaxCommentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}
	if in.Line != nil && *in.Line < 1 {
		return nil, apperror.ValidationFailed("line", "line numbers start at 1")
	}

	snippet, _, err := s.access.Authorize(ctx, snippetID, userID, authz.ActionComment)
	if err != nil {
		return nil, err
	}

	var parent *model.Comment
	if in.ParentID != "" {
		parent, err = s.repo.GetComment(ctx, in.ParentID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, apperror.ValidationFailed("parentId", "the comment being replied to does not exist")
			}
			return nil, fmt.Errorf("loading parent comment: %w", err)
		}
		if parent.SnippetID != snippet.ID {
			return nil, apperror.ValidationFailed("parentId", "replies must stay on the same snippet")
		}
	}

	c := &model.Comment{
		SnippetID: snippet.ID,
		AuthorID:  userID,
		ParentID:  in.ParentID,
		Content:   content,
		Line:      in.Line,
	}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("creating comment: %w", err)
	}

	s.logger.Info("comment created",
		slog.String("id", c.ID),
		slog.String("snippetId", snippet.ID),
	)
	s.fx.snippetChanged(ctx, events.TableComments, events.ActionInsert, snippet.ID, c.ID, userID, c)
	s.fx.recordActivity(ctx, userID, model.ActivityCommented, snippet.ID, "Commented on "+snippet.Title)

	data := map[string]string{"snippetId": snippet.ID, "commentId": c.ID}
	if parent != nil {
		s.fx.notify(ctx, userID, &model.Notification{
			UserID:  parent.AuthorID,
			Type:    model.NotificationReply,
			Title:   "New reply",
			Message: fmt.Sprintf("Someone replied to your comment on %s", snippet.Title),
			Data:    data,
		})
	} else {
		s.fx.notify(ctx, userID, &model.Notification{
			UserID:  snippet.OwnerID,
			Type:    model.NotificationComment,
			Title:   "New comment",
			Message: fmt.Sprintf("Someone commented on %s", snippet.Title),
			Data:    data,
		})
	}
	return c, nil
}

// SetResolved toggles the resolved flag. The comment's author and anyone who
// can edit the snippet may do this.
func (s *CommentService) SetResolved(ctx context.Context, userID, snippetID, commentID string, resolved bool) (*model.Comment, error) {
	c, err := s.authorizeComment(ctx, userID, snippetID, commentID, authz.ActionEdit)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.SetCommentResolved(ctx, c.ID, resolved)
	if err != nil {
		return nil, fmt.Errorf("resolving comment: %w", err)
	}
	s.fx.snippetChanged(ctx, events.TableComments, events.ActionUpdate, snippetID, c.ID, userID, updated)
	return updated, nil
}

// Delete removes a comment and its replies. The author and the snippet owner
// may do this.
func (s *CommentService) Delete(ctx context.Context, userID, snippetID, commentID string) error {
	c, err := s.authorizeComment(ctx, userID, snippetID, commentID, authz.ActionManage)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteComment(ctx, c.ID); err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	s.logger.Info("comment deleted", slog.String("id", c.ID), slog.String("snippetId", snippetID))
	s.fx.snippetChanged(ctx, events.TableComments, events.ActionDelete, snippetID, c.ID, userID, nil)
	return nil
}

// authorizeComment loads the comment and lets the author through, or anyone
// whose snippet role grants elevated.
func (s *CommentService) authorizeComment(ctx context.Context, userID, snippetID, commentID string, elevated authz.Action) (*model.Comment, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("sign in to manage comments")
	}
	snippet, role, err := s.access.Authorize(ctx, snippetID, userID, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.SnippetID != snippet.ID {
		return nil, apperror.NotFound("comment", commentID)
	}
	if c.AuthorID != userID && !s.access.enforcer.Can(role, elevated) {
		return nil, apperror.Forbidden("only the author or a snippet maintainer can do that")
	}
	return c, nil
}
