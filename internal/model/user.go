// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptハッシュのみを保持し、平文パスワードは一切保存しない。
type User struct {
	ID              int64
	Username        string
	Email           string
	PasswordHash    string
	Nickname        string
	ProfileImageURL string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Identity は認証済み呼び出し元のアイデンティティを表す。
// リクエストスコープの値としてcontext.Context経由で引き回され、
// リクエスト間で共有されることはない。
// UserIDとUsernameは常に両方セットされる（部分的にセットされた状態は存在しない）。
type Identity struct {
	UserID   int64
	Username string
}
