// Package auth はユーザー登録、ログイン、所有者ベースの認可を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/repository"
)

// TokenIssuer はログイン成功時のトークン発行インターフェース。
// token.Codecの部分集合として定義する。
type TokenIssuer interface {
	Issue(userID int64, username string) (string, error)
}

// RegisterInput はユーザー登録の入力値。
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Nickname string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	issuer   TokenIssuer
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, hasher PasswordHasher, issuer TokenIssuer) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		issuer:   issuer,
	}
}

// Register は新規ユーザーを登録する。
// ユーザー名の重複を先に、メールアドレスの重複を後にチェックする。
// パスワードは保存前にハッシュ化し、平文はログにも残さない。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	// 1. ユーザー名の重複チェック
	existing, err := s.userRepo.FindByUsername(ctx, input.Username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateUsernameError(input.Username)
	}

	// 2. メールアドレスの重複チェック
	existing, err = s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError(input.Email)
	}

	// 3. パスワードのハッシュ化
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := time.Now()
	user := &model.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Nickname:     input.Nickname,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	id, err := s.userRepo.Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	user.ID = id

	slog.Info("new user registered",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login はユーザー名とパスワードを検証し、署名付きトークンを発行する。
// ユーザー名が存在しない場合とパスワード不一致の場合は同一の
// INVALID_CREDENTIALSを返す（ユーザー存在の推測を防ぐため）。
// 無効化アカウントは認証成功後にACCOUNT_DISABLEDとして区別する。
// これは無効化アカウントの存在を明かす軽微な情報漏えいだが、
// 元システムの挙動を踏襲した設計上の選択である。
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	// 1. ユーザー名でアカウントを検索
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user == nil {
		return "", model.NewInvalidCredentialsError()
	}

	// 2. パスワードの照合
	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", model.NewInvalidCredentialsError()
	}

	// 3. アカウントの有効性チェック
	if !user.IsActive {
		return "", model.NewAccountDisabledError()
	}

	// 4. トークンの発行
	tokenString, err := s.issuer.Issue(user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return tokenString, nil
}

// GetCurrentUser はアイデンティティから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, identity *model.Identity) (*model.User, error) {
	if identity == nil {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}
