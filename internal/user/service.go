// Package user はユーザープロフィールと投稿・コメント履歴のビジネスロジックを提供する。
package user

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/keijiban/internal/auth"
	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/repository"
	"github.com/hitoshi/keijiban/internal/security"
	"github.com/hitoshi/keijiban/internal/upload"
)

// fetchTimeout はリモート画像取得のタイムアウト。
const fetchTimeout = 10 * time.Second

// Profile はユーザープロフィールと活動集計を表す。
type Profile struct {
	User         *model.User
	PostCount    int64
	CommentCount int64
}

// ImageUploader は取得したリモート画像を保存するインターフェース。
// upload.Serviceの部分集合として定義する。
type ImageUploader interface {
	Upload(ctx context.Context, identity *model.Identity, r io.Reader) (*upload.Result, error)
}

// Service はユーザーに関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	guard       security.SSRFGuardService
	uploader    ImageUploader

	// SSRF防止機能付きHTTPクライアント。テストから差し替え可能。
	client *http.Client
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	postRepo repository.PostRepository,
	commentRepo repository.CommentRepository,
	guard security.SSRFGuardService,
	uploader ImageUploader,
) *Service {
	return &Service{
		userRepo:    userRepo,
		postRepo:    postRepo,
		commentRepo: commentRepo,
		guard:       guard,
		uploader:    uploader,
		client:      guard.NewSafeClient(fetchTimeout),
	}
}

// GetProfile はユーザーのプロフィールと投稿・コメント数を取得する。
func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	postCount, err := s.userRepo.CountPostsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("投稿数の取得に失敗しました: %w", err)
	}
	commentCount, err := s.userRepo.CountCommentsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("コメント数の取得に失敗しました: %w", err)
	}

	return &Profile{
		User:         user,
		PostCount:    postCount,
		CommentCount: commentCount,
	}, nil
}

// ListPosts は指定ユーザーの投稿一覧を新しい順に取得する。
func (s *Service) ListPosts(ctx context.Context, userID int64) ([]*model.Post, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	posts, err := s.postRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// ListComments は指定ユーザーのコメント一覧を新しい順に取得する。
func (s *Service) ListComments(ctx context.Context, userID int64) ([]*model.Comment, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	comments, err := s.commentRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// SetProfileImage はアップロード済み画像のURLをプロフィール画像に設定する。
// 自分のプロフィールのみ変更できる。
func (s *Service) SetProfileImage(ctx context.Context, identity *model.Identity, userID int64, imageURL string) error {
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	if err := auth.Authorize(identity, userID); err != nil {
		return err
	}

	if err := s.userRepo.UpdateProfileImage(ctx, userID, imageURL); err != nil {
		return fmt.Errorf("プロフィール画像の更新に失敗しました: %w", err)
	}

	slog.Info("profile image updated",
		slog.Int64("user_id", userID),
	)
	return nil
}

// ImportProfileImage はリモートURLから画像を取得し、自サーバーに再ホストして
// プロフィール画像に設定する。取得前にSSRF防止の検証を行い、
// 取得時もSSRF防止機能付きクライアントを使用する。
func (s *Service) ImportProfileImage(ctx context.Context, identity *model.Identity, userID int64, rawURL string) (*upload.Result, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := auth.Authorize(identity, userID); err != nil {
		return nil, err
	}

	if err := s.guard.ValidateURL(rawURL); err != nil {
		slog.Warn("profile image URL blocked",
			slog.Int64("user_id", userID),
			slog.String("url", rawURL),
			slog.String("reason", err.Error()),
		)
		return nil, model.NewSSRFBlockedError(rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidRequestError("画像URLが不正です")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// safeurlによるブロックもここに含まれる
		return nil, model.NewSSRFBlockedError(rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("画像の取得に失敗しました（ステータス: %d）", resp.StatusCode))
	}

	result, err := s.uploader.Upload(ctx, identity, resp.Body)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateProfileImage(ctx, userID, result.URL); err != nil {
		return nil, fmt.Errorf("プロフィール画像の更新に失敗しました: %w", err)
	}

	slog.Info("profile image imported",
		slog.Int64("user_id", userID),
		slog.String("source_url", rawURL),
		slog.String("stored_url", result.URL),
	)

	return result, nil
}

// requireUser は指定ユーザーが存在することを確認する。
func (s *Service) requireUser(ctx context.Context, userID int64) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	return nil
}
