// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/keijiban/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済みアイデンティティを格納するためのキー。
var identityContextKey = contextKey("identity")

// WithIdentity はアイデンティティをリクエストコンテキストに格納した新しいコンテキストを返す。
// 格納はリクエストごとに高々1回、AuthMiddlewareからのみ行う。
// context.Contextに値として載せるため、リクエスト間で状態が漏れることはない。
func WithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext はリクエストコンテキストから認証済みアイデンティティを取得する。
// 未認証（アイデンティティ未設定）の場合はエラーを返す。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}
