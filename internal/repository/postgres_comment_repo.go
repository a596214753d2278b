package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/keijiban/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// commentSelect はコメントと作者ニックネームをJOINで取得するSELECT句。
const commentSelect = `
	SELECT c.id, c.post_id, c.user_id, c.parent_id, c.content,
	       c.is_deleted, c.created_at, c.updated_at,
	       u.nickname
	FROM comments c
	JOIN users u ON u.id = c.user_id`

// scanComment は1行分のコメントをスキャンする。
func scanComment(scanner interface{ Scan(dest ...any) error }) (*model.Comment, error) {
	comment := &model.Comment{}
	err := scanner.Scan(
		&comment.ID, &comment.PostID, &comment.UserID, &comment.ParentID,
		&comment.Content, &comment.IsDeleted, &comment.CreatedAt, &comment.UpdatedAt,
		&comment.AuthorNickname,
	)
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
// 論理削除済みのコメントも返す（削除判定はサービス層で行う）。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id int64) (*model.Comment, error) {
	row := r.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = $1`, id)

	comment, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment by ID: %w", err)
	}
	return comment, nil
}

// ListByPostID は指定投稿のコメント一覧（論理削除を除く）を古い順に取得する。
func (r *PostgresCommentRepo) ListByPostID(ctx context.Context, postID int64) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		commentSelect+` WHERE c.post_id = $1 AND NOT c.is_deleted ORDER BY c.created_at ASC, c.id ASC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []*model.Comment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}

	return comments, nil
}

// ListByUserID は指定ユーザーのコメント一覧（論理削除を除く）を新しい順に取得する。
func (r *PostgresCommentRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		commentSelect+` WHERE c.user_id = $1 AND NOT c.is_deleted ORDER BY c.created_at DESC, c.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments by user: %w", err)
	}
	defer rows.Close()

	comments := []*model.Comment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}

	return comments, nil
}

// Create はコメントを作成し、採番されたIDを返す。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO comments (post_id, user_id, parent_id, content, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5, $6)
		 RETURNING id`,
		comment.PostID, comment.UserID, comment.ParentID, comment.Content,
		comment.CreatedAt, comment.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert comment: %w", err)
	}
	return id, nil
}

// Update はコメントの本文を更新する。
func (r *PostgresCommentRepo) Update(ctx context.Context, comment *model.Comment) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE comments SET content = $1, updated_at = now() WHERE id = $2 AND NOT is_deleted`,
		comment.Content, comment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("comment not found: %d", comment.ID)
	}
	return nil
}

// SoftDeleteByID はコメントを論理削除する。
func (r *PostgresCommentRepo) SoftDeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE comments SET is_deleted = TRUE, updated_at = now() WHERE id = $1 AND NOT is_deleted`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete comment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("comment not found: %d", id)
	}
	return nil
}

// PurgeDeletedBefore は指定時刻より前に論理削除されたコメントを物理削除し、削除件数を返す。
func (r *PostgresCommentRepo) PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE is_deleted AND updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted comments: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
