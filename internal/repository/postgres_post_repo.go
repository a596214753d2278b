package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/keijiban/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// postSelect は投稿と作者ニックネームをJOINで取得するSELECT句。
const postSelect = `
	SELECT p.id, p.user_id, p.title, p.content, p.image_url,
	       p.view_count, p.is_deleted, p.created_at, p.updated_at,
	       u.nickname
	FROM posts p
	JOIN users u ON u.id = p.user_id`

// scanPost は1行分の投稿をスキャンする。
func scanPost(scanner interface{ Scan(dest ...any) error }) (*model.Post, error) {
	post := &model.Post{}
	err := scanner.Scan(
		&post.ID, &post.UserID, &post.Title, &post.Content, &post.ImageURL,
		&post.ViewCount, &post.IsDeleted, &post.CreatedAt, &post.UpdatedAt,
		&post.AuthorNickname,
	)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
// 論理削除済みの投稿も返す（削除判定はサービス層で行う）。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx, postSelect+` WHERE p.id = $1`, id)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by ID: %w", err)
	}
	return post, nil
}

// List は論理削除を除いた投稿一覧を新しい順にページネーションで取得する。
func (r *PostgresPostRepo) List(ctx context.Context, page, size int) ([]*model.Post, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE NOT is_deleted`,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	offset := (page - 1) * size
	rows, err := r.db.QueryContext(ctx,
		postSelect+` WHERE NOT p.is_deleted ORDER BY p.created_at DESC, p.id DESC LIMIT $1 OFFSET $2`,
		size, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, total, nil
}

// ListByUserID は指定ユーザーの投稿一覧（論理削除を除く）を新しい順に取得する。
func (r *PostgresPostRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		postSelect+` WHERE p.user_id = $1 AND NOT p.is_deleted ORDER BY p.created_at DESC, p.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts by user: %w", err)
	}
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// Create は投稿を作成し、採番されたIDを返す。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO posts (user_id, title, content, image_url, view_count, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, FALSE, $5, $6)
		 RETURNING id`,
		post.UserID, post.Title, post.Content, post.ImageURL,
		post.CreatedAt, post.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert post: %w", err)
	}
	return id, nil
}

// Update は投稿のタイトル・本文・画像URLを更新する。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET title = $1, content = $2, image_url = $3, updated_at = now()
		 WHERE id = $4 AND NOT is_deleted`,
		post.Title, post.Content, post.ImageURL, post.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post not found: %d", post.ID)
	}
	return nil
}

// SoftDeleteByID は投稿を論理削除する。
func (r *PostgresPostRepo) SoftDeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET is_deleted = TRUE, updated_at = now() WHERE id = $1 AND NOT is_deleted`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post not found: %d", id)
	}
	return nil
}

// IncrementViewCount は投稿の閲覧数を1増やす。
func (r *PostgresPostRepo) IncrementViewCount(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE posts SET view_count = view_count + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	return nil
}

// PurgeDeletedBefore は指定時刻より前に論理削除された投稿を物理削除し、削除件数を返す。
// 投稿に紐づくコメントはON DELETE CASCADEにより同じ文の中で削除される。
func (r *PostgresPostRepo) PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE is_deleted AND updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted posts: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
