package model

import "time"

// Post は掲示板の投稿を表す。
// IsDeletedがtrueの投稿は論理削除済みで、一覧・詳細のいずれにも現れない。
type Post struct {
	ID             int64
	UserID         int64
	Title          string
	Content        string
	ImageURL       string
	ViewCount      int
	IsDeleted      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AuthorNickname string // 一覧・詳細表示用にJOINで取得する
}

// Comment は投稿へのコメントを表す。
// ParentIDがnilでない場合は返信コメント（スレッド構造）となる。
type Comment struct {
	ID             int64
	PostID         int64
	UserID         int64
	ParentID       *int64
	Content        string
	IsDeleted      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AuthorNickname string
}

// PostPage は投稿一覧のページネーション結果を表す。
type PostPage struct {
	Posts      []*Post
	Page       int
	Size       int
	TotalCount int64
	TotalPages int
}
