package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/keijiban/internal/model"
)

// bearerPrefix はAuthorizationヘッダーのトークンプレフィックス。
// トークンの伝送手段はこのヘッダーのみとする（Cookieやクエリパラメータは使わない）。
const bearerPrefix = "Bearer "

// TokenVerifier はトークン検証のインターフェース。
// token.Codecの部分集合として定義する。
type TokenVerifier interface {
	// IsValid はトークンが現時点で有効かを返す。
	IsValid(tokenString string) bool
	// Parse はトークンからサブジェクトのユーザーIDとユーザー名を取り出す。
	Parse(tokenString string) (userID int64, username string, err error)
}

// NewAuthMiddleware はリクエストごとに1回実行される認証ミドルウェアを返す。
//
// 動作:
//  1. リクエストパスが許可リスト（ログイン・登録）に完全一致する場合は無条件で通過させる。
//  2. Authorizationヘッダーから"Bearer "プレフィックス付きのトークンを取り出す。
//     ヘッダー不在・プレフィックス不一致はエラーではなく匿名として扱う。
//  3. トークンが無効な場合はログを出して匿名のまま通過させる
//     （認証必須のハンドラーが後段でUNAUTHENTICATEDを返す）。
//  4. トークンが有効な場合はアイデンティティをリクエストコンテキストに格納する。
//
// アイデンティティは常にリクエストスコープで、並行リクエスト間で共有されない。
func NewAuthMiddleware(verifier TokenVerifier, allowedPaths []string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedPaths))
	for _, p := range allowedPaths {
		allowed[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. 許可リストのパスは認証をスキップ（完全一致のみ、プレフィックス一致はしない）
			if _, ok := allowed[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			// 2. Authorizationヘッダーからトークン候補を取り出す
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			// 3. トークンの有効性を検証。無効なら匿名として続行する
			if !verifier.IsValid(tokenString) {
				slog.Warn("invalid or expired token",
					slog.String("path", r.URL.Path),
				)
				next.ServeHTTP(w, r)
				return
			}

			// 4. アイデンティティをコンテキストに格納
			userID, username, err := verifier.Parse(tokenString)
			if err != nil {
				slog.Warn("failed to parse validated token",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithIdentity(r.Context(), &model.Identity{
				UserID:   userID,
				Username: username,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken はAuthorizationヘッダーからトークン候補を取り出す。
// ヘッダー不在または"Bearer "プレフィックス不一致の場合は空文字列を返す。
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(header, bearerPrefix)
}
