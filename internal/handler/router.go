package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/keijiban/internal/metrics"
	"github.com/hitoshi/keijiban/internal/middleware"
)

// authAllowedPaths は認証ミドルウェアをスキップするパス（完全一致のみ）。
var authAllowedPaths = []string{
	"/api/auth/login",
	"/api/auth/register",
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier          middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer

	// サービス
	AuthService    AuthServiceInterface
	PostService    PostServiceInterface
	CommentService CommentServiceInterface
	UserService    UserServiceInterface
	UploadService  UploadServiceInterface

	// 静的配信
	UploadDir        string
	UploadPublicBase string
	UploadMaxBytes   int64

	// ヘルスチェック（DB疎通確認）
	HealthPing func(ctx context.Context) error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Metrics → Logging → Auth → RateLimit(General)
//
// 認証ミドルウェアは全/apiルートに適用され、ログインと登録のみ許可リストでスキップする。
// 無効なトークンは匿名として通過し、認証必須の操作はサービス層でUNAUTHENTICATEDとなる。
// /healthzと/metricsは認証・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Collector != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Collector))
	}
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Collector)
	postHandler := NewPostHandler(deps.PostService)
	commentHandler := NewCommentHandler(deps.CommentService)
	userHandler := NewUserHandler(deps.UserService)
	uploadHandler := NewUploadHandler(deps.UploadService, deps.Collector, deps.UploadMaxBytes)

	// --- 運用エンドポイント（認証・レート制限の外） ---

	r.Get("/healthz", healthHandler(deps.HealthPing))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// アップロード済みファイルの静的配信
	if deps.UploadDir != "" {
		fileServer := http.StripPrefix(deps.UploadPublicBase+"/", http.FileServer(http.Dir(deps.UploadDir)))
		r.Get(deps.UploadPublicBase+"/*", fileServer.ServeHTTP)
	}

	// --- APIルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)、書き込みにはWriteを追加
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Verifier, authAllowedPaths))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		write := func(r chi.Router) chi.Router {
			if deps.RateLimiter != nil {
				return r.With(deps.RateLimiter.WriteMiddleware())
			}
			return r
		}

		// 認証
		r.Route("/api/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Get("/me", authHandler.Me)
		})

		// 投稿
		r.Route("/api/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)
			write(r).Post("/", postHandler.CreatePost)

			r.Route("/{postID}", func(r chi.Router) {
				r.Get("/", postHandler.GetPost)
				write(r).Put("/", postHandler.UpdatePost)
				write(r).Delete("/", postHandler.DeletePost)

				// 投稿配下のコメント
				r.Route("/comments", func(r chi.Router) {
					r.Get("/", commentHandler.ListComments)
					write(r).Post("/", commentHandler.CreateComment)
				})
			})
		})

		// コメント
		r.Route("/api/comments/{commentID}", func(r chi.Router) {
			write(r).Put("/", commentHandler.UpdateComment)
			write(r).Delete("/", commentHandler.DeleteComment)
		})

		// ユーザープロフィール
		r.Route("/api/users/{id}", func(r chi.Router) {
			r.Get("/", userHandler.GetProfile)
			r.Get("/posts", userHandler.ListUserPosts)
			r.Get("/comments", userHandler.ListUserComments)
			write(r).Put("/image", userHandler.UpdateProfileImage)
		})

		// アップロード
		write(r).Post("/api/upload", uploadHandler.Upload)
	})

	return r
}

// healthHandler はヘルスチェックのHTTPハンドラーを返す。
// pingが設定されている場合はDB疎通も確認する。
func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK

		if ping != nil {
			if err := ping(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				status = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
