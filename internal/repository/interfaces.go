// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/keijiban/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDを返す。
	Create(ctx context.Context, user *model.User) (int64, error)

	// UpdateProfileImage は指定ユーザーのプロフィール画像URLを更新する。
	UpdateProfileImage(ctx context.Context, userID int64, profileImageURL string) error

	// CountPostsByUserID は指定ユーザーの投稿数（論理削除を除く）を返す。
	CountPostsByUserID(ctx context.Context, userID int64) (int64, error)

	// CountCommentsByUserID は指定ユーザーのコメント数（論理削除を除く）を返す。
	CountCommentsByUserID(ctx context.Context, userID int64) (int64, error)
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	// 論理削除済みの投稿も返す（削除判定はサービス層で行う）。
	FindByID(ctx context.Context, id int64) (*model.Post, error)

	// List は論理削除を除いた投稿一覧を新しい順にページネーションで取得する。
	// 戻り値は投稿スライスと総件数。
	List(ctx context.Context, page, size int) ([]*model.Post, int64, error)

	// ListByUserID は指定ユーザーの投稿一覧（論理削除を除く）を新しい順に取得する。
	ListByUserID(ctx context.Context, userID int64) ([]*model.Post, error)

	// Create は投稿を作成し、採番されたIDを返す。
	Create(ctx context.Context, post *model.Post) (int64, error)

	// Update は投稿のタイトル・本文・画像URLを更新する。
	Update(ctx context.Context, post *model.Post) error

	// SoftDeleteByID は投稿を論理削除する。
	SoftDeleteByID(ctx context.Context, id int64) error

	// IncrementViewCount は投稿の閲覧数を1増やす。
	IncrementViewCount(ctx context.Context, id int64) error

	// PurgeDeletedBefore は指定時刻より前に論理削除された投稿を物理削除し、削除件数を返す。
	PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	// 論理削除済みのコメントも返す（削除判定はサービス層で行う）。
	FindByID(ctx context.Context, id int64) (*model.Comment, error)

	// ListByPostID は指定投稿のコメント一覧（論理削除を除く）を古い順に取得する。
	ListByPostID(ctx context.Context, postID int64) ([]*model.Comment, error)

	// ListByUserID は指定ユーザーのコメント一覧（論理削除を除く）を新しい順に取得する。
	ListByUserID(ctx context.Context, userID int64) ([]*model.Comment, error)

	// Create はコメントを作成し、採番されたIDを返す。
	Create(ctx context.Context, comment *model.Comment) (int64, error)

	// Update はコメントの本文を更新する。
	Update(ctx context.Context, comment *model.Comment) error

	// SoftDeleteByID はコメントを論理削除する。
	SoftDeleteByID(ctx context.Context, id int64) error

	// PurgeDeletedBefore は指定時刻より前に論理削除されたコメントを物理削除し、削除件数を返す。
	PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error)
}
