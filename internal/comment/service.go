// Package comment はコメントの作成・更新・削除とスレッド構造のビジネスロジックを提供する。
package comment

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/keijiban/internal/auth"
	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/repository"
	"github.com/hitoshi/keijiban/internal/security"
)

// maxContentLength はコメント本文の最大文字数。
const maxContentLength = 2000

// CreateCommentInput はコメント作成の入力値。
// ParentIDがnilでない場合は既存コメントへの返信となる。
type CreateCommentInput struct {
	PostID   int64
	ParentID *int64
	Content  string
}

// Service はコメントに関するビジネスロジックを提供する。
type Service struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	sanitizer   security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(commentRepo repository.CommentRepository, postRepo repository.PostRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		sanitizer:   sanitizer,
	}
}

// ListByPost は指定投稿のコメント一覧を古い順に取得する。
// 投稿が存在しないか削除済みの場合はPOST_NOT_FOUNDを返す。
func (s *Service) ListByPost(ctx context.Context, postID int64) ([]*model.Comment, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}

	comments, err := s.commentRepo.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// Create は新規コメントを作成する。
// 返信の場合、親コメントは同じ投稿に属する削除されていないコメントでなければならない。
func (s *Service) Create(ctx context.Context, identity *model.Identity, input CreateCommentInput) (*model.Comment, error) {
	if identity == nil {
		return nil, model.NewUnauthenticatedError()
	}

	if err := s.requirePost(ctx, input.PostID); err != nil {
		return nil, err
	}

	if input.ParentID != nil {
		parent, err := s.commentRepo.FindByID(ctx, *input.ParentID)
		if err != nil {
			return nil, fmt.Errorf("親コメントの取得に失敗しました: %w", err)
		}
		if parent == nil || parent.IsDeleted {
			return nil, model.NewCommentNotFoundError(*input.ParentID)
		}
		if parent.PostID != input.PostID {
			return nil, model.NewInvalidRequestError("親コメントが別の投稿に属しています")
		}
	}

	content := s.sanitizer.SanitizeContent(input.Content)
	if err := validateContent(content); err != nil {
		return nil, err
	}

	now := time.Now()
	comment := &model.Comment{
		PostID:    input.PostID,
		UserID:    identity.UserID,
		ParentID:  input.ParentID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	id, err := s.commentRepo.Create(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	comment.ID = id

	slog.Info("comment created",
		slog.Int64("comment_id", comment.ID),
		slog.Int64("post_id", input.PostID),
		slog.Int64("user_id", identity.UserID),
	)

	return comment, nil
}

// Update はコメント本文を更新する。
// コメントの存在確認を先に行い、存在する場合のみ所有者チェックを行う。
// 存在しないコメントはCOMMENT_NOT_FOUND、他人のコメントはFORBIDDENとなる。
func (s *Service) Update(ctx context.Context, identity *model.Identity, id int64, rawContent string) (*model.Comment, error) {
	comment, err := s.commentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if comment == nil || comment.IsDeleted {
		return nil, model.NewCommentNotFoundError(id)
	}

	if err := auth.Authorize(identity, comment.UserID); err != nil {
		return nil, err
	}

	content := s.sanitizer.SanitizeContent(rawContent)
	if err := validateContent(content); err != nil {
		return nil, err
	}

	comment.Content = content
	comment.UpdatedAt = time.Now()

	if err := s.commentRepo.Update(ctx, comment); err != nil {
		return nil, fmt.Errorf("コメントの更新に失敗しました: %w", err)
	}

	slog.Info("comment updated",
		slog.Int64("comment_id", comment.ID),
		slog.Int64("user_id", identity.UserID),
	)

	return comment, nil
}

// Delete はコメントを論理削除する。
// コメントの存在確認を先に行い、存在する場合のみ所有者チェックを行う。
func (s *Service) Delete(ctx context.Context, identity *model.Identity, id int64) error {
	comment, err := s.commentRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if comment == nil || comment.IsDeleted {
		return model.NewCommentNotFoundError(id)
	}

	if err := auth.Authorize(identity, comment.UserID); err != nil {
		return err
	}

	if err := s.commentRepo.SoftDeleteByID(ctx, id); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}

	slog.Info("comment deleted",
		slog.Int64("comment_id", id),
		slog.Int64("user_id", identity.UserID),
	)

	return nil
}

// requirePost は指定投稿が存在し削除されていないことを確認する。
func (s *Service) requirePost(ctx context.Context, postID int64) error {
	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil || post.IsDeleted {
		return model.NewPostNotFoundError(postID)
	}
	return nil
}

// validateContent はサニタイズ後のコメント本文を検証する。
func validateContent(content string) error {
	if content == "" {
		return model.NewInvalidRequestError("コメント本文は必須です")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return model.NewInvalidRequestError(fmt.Sprintf("コメントは%d文字以内で指定してください", maxContentLength))
	}
	return nil
}
