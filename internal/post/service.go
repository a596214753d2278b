// Package post は投稿のCRUDと閲覧数管理のビジネスロジックを提供する。
package post

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

const (
	// maxTitleLength はタイトルの最大文字数。
	maxTitleLength = 200
	// maxContentLength は本文の最大文字数。
	maxContentLength = 10000

	// defaultPageSize は1ページあたりのデフォルト件数。
	defaultPageSize = 20
	// maxPageSize は1ページあたりの最大件数。
	maxPageSize = 100
)

// CreatePostInput は投稿作成の入力値。
type CreatePostInput struct {
	Title    string
	Content  string
	ImageURL string
}

// UpdatePostInput は投稿更新の入力値。
type UpdatePostInput struct {
	Title    string
	Content  string
	ImageURL string
}

// Service は投稿に関するビジネスロジックを提供する。
type Service struct {
	postRepo  repository.PostRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(postRepo repository.PostRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		postRepo:  postRepo,
		sanitizer: sanitizer,
	}
}

// Create は新規投稿を作成する。
// タイトルと本文はサニタイズした上で長さを検証する。
func (s *Service) Create(ctx context.Context, identity *model.Identity, input CreatePostInput) (*model.Post, error) {
	if identity == nil {
		return nil, model.NewUnauthenticatedError()
	}

	title := s.sanitizer.SanitizePlain(input.Title)
	content := s.sanitizer.SanitizeContent(input.Content)
	if err := validateTitleAndContent(title, content); err != nil {
		return nil, err
	}

	now := time.Now()
	post := &model.Post{
		UserID:    identity.UserID,
		Title:     title,
		Content:   content,
		ImageURL:  input.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	id, err := s.postRepo.Create(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	post.ID = id

	slog.Info("post created",
		slog.Int64("post_id", post.ID),
		slog.Int64("user_id", identity.UserID),
	)

	return post, nil
}

// List は投稿一覧を新しい順にページネーションで取得する。
// pageが1未満の場合は1ページ目、sizeが範囲外の場合はデフォルト値に丸める。
func (s *Service) List(ctx context.Context, page, size int) (*model.PostPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}

	posts, total, err := s.postRepo.List(ctx, page, size)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}

	totalPages := int((total + int64(size) - 1) / int64(size))

	return &model.PostPage{
		Posts:      posts,
		Page:       page,
		Size:       size,
		TotalCount: total,
		TotalPages: totalPages,
	}, nil
}

// Get は投稿の詳細を取得し、閲覧数を1増やす。
// 存在しない投稿と論理削除済みの投稿はいずれもPOST_NOT_FOUNDとなる。
func (s *Service) Get(ctx context.Context, id int64) (*model.Post, error) {
	post, err := s.postRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil || post.IsDeleted {
		return nil, model.NewPostNotFoundError(id)
	}

	// 閲覧数の更新失敗は詳細表示を妨げない
	if err := s.postRepo.IncrementViewCount(ctx, id); err != nil {
		slog.Warn("failed to increment view count",
			slog.Int64("post_id", id),
			slog.String("error", err.Error()),
		)
	} else {
		post.ViewCount++
	}

	return post, nil
}

// Update は投稿を更新する。
// 投稿の存在確認を先に行い、存在する場合のみ所有者チェックを行う。
// 存在しない投稿はPOST_NOT_FOUND、他人の投稿はFORBIDDENとなる。
func (s *Service) Update(ctx context.Context, identity *model.Identity, id int64, input UpdatePostInput) (*model.Post, error) {
	post, err := s.postRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil || post.IsDeleted {
		return nil, model.NewPostNotFoundError(id)
	}

	if err := auth.Authorize(identity, post.UserID); err != nil {
		return nil, err
	}

	title := s.sanitizer.SanitizePlain(input.Title)
	content := s.sanitizer.SanitizeContent(input.Content)
	if err := validateTitleAndContent(title, content); err != nil {
		return nil, err
	}

	post.Title = title
	post.Content = content
	post.ImageURL = input.ImageURL
	post.UpdatedAt = time.Now()

	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}

	slog.Info("post updated",
		slog.Int64("post_id", post.ID),
		slog.Int64("user_id", identity.UserID),
	)

	return post, nil
}

// Delete は投稿を論理削除する。
// 投稿の存在確認を先に行い、存在する場合のみ所有者チェックを行う。
func (s *Service) Delete(ctx context.Context, identity *model.Identity, id int64) error {
	post, err := s.postRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil || post.IsDeleted {
		return model.NewPostNotFoundError(id)
	}

	if err := auth.Authorize(identity, post.UserID); err != nil {
		return err
	}

	if err := s.postRepo.SoftDeleteByID(ctx, id); err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}

	slog.Info("post deleted",
		slog.Int64("post_id", id),
		slog.Int64("user_id", identity.UserID),
	)

	return nil
}

// validateTitleAndContent はサニタイズ後のタイトルと本文を検証する。
func validateTitleAndContent(title, content string) error {
	if title == "" {
		return model.NewInvalidRequestError("タイトルは必須です")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return model.NewInvalidRequestError(fmt.Sprintf("タイトルは%d文字以内で指定してください", maxTitleLength))
	}
	if content == "" {
		return model.NewInvalidRequestError("本文は必須です")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return model.NewInvalidRequestError(fmt.Sprintf("本文は%d文字以内で指定してください", maxContentLength))
	}
	return nil
}
