package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/keijiban/internal/middleware"
	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	// Create は新規投稿を作成する。
	Create(ctx context.Context, identity *model.Identity, input post.CreatePostInput) (*model.Post, error)
	// List は投稿一覧をページネーションで取得する。
	List(ctx context.Context, page, size int) (*model.PostPage, error)
	// Get は投稿詳細を取得し、閲覧数を増やす。
	Get(ctx context.Context, id int64) (*model.Post, error)
	// Update は投稿を更新する。
	Update(ctx context.Context, identity *model.Identity, id int64, input post.UpdatePostInput) (*model.Post, error)
	// Delete は投稿を論理削除する。
	Delete(ctx context.Context, identity *model.Identity, id int64) error
}

// PostHandler は投稿のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// postRequest は投稿の作成・更新リクエストのボディ。
type postRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	ImageURL       string    `json:"image_url,omitempty"`
	ViewCount      int       `json:"view_count"`
	AuthorNickname string    `json:"author_nickname"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// postPageResponse は投稿一覧のページネーションレスポンス。
type postPageResponse struct {
	Posts      []postResponse `json:"posts"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
	TotalCount int64          `json:"total_count"`
	TotalPages int            `json:"total_pages"`
}

// ListPosts は投稿一覧を取得する。
// GET /api/posts?page=1&size=20
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	size := queryInt(r, "size", 0)

	result, err := h.service.List(r.Context(), page, size)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := postPageResponse{
		Posts:      make([]postResponse, 0, len(result.Posts)),
		Page:       result.Page,
		Size:       result.Size,
		TotalCount: result.TotalCount,
		TotalPages: result.TotalPages,
	}
	for _, p := range result.Posts {
		resp.Posts = append(resp.Posts, toPostResponse(p))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CreatePost は投稿作成を処理する。
// POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	created, err := h.service.Create(r.Context(), identity, post.CreatePostInput{
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toPostResponse(created))
}

// GetPost は投稿詳細を取得する。
// GET /api/posts/{id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "postID")
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPostResponse(p))
}

// UpdatePost は投稿更新を処理する。
// PUT /api/posts/{id}
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	id, ok := pathID(w, r, "postID")
	if !ok {
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	updated, err := h.service.Update(r.Context(), identity, id, post.UpdatePostInput{
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPostResponse(updated))
}

// DeletePost は投稿削除を処理する。
// DELETE /api/posts/{id}
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	id, ok := pathID(w, r, "postID")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toPostResponse はmodel.PostからAPIレスポンスに変換する。
func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		ID:             p.ID,
		UserID:         p.UserID,
		Title:          p.Title,
		Content:        p.Content,
		ImageURL:       p.ImageURL,
		ViewCount:      p.ViewCount,
		AuthorNickname: p.AuthorNickname,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

// pathID はURLパスパラメータからIDを取得する。
// 数値として解釈できない場合はVALIDATIONエラーを書き込みfalseを返す。
func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("IDの形式が不正です"))
		return 0, false
	}
	return id, true
}

// queryInt はクエリパラメータを整数として取得する。解釈できない場合はフォールバック値を返す。
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
// 存在しないリソースは404、所有者以外の操作は403として明確に区別する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeAccountDisabled, model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodePostNotFound, model.ErrCodeCommentNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateUsername, model.ErrCodeDuplicateEmail:
		return http.StatusConflict
	case model.ErrCodeInvalidRequest, model.ErrCodeUploadInvalidFile:
		return http.StatusBadRequest
	case model.ErrCodeUploadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// isAPIErrorCode はエラーが指定コードのAPIErrorかを判定する。
func isAPIErrorCode(err error, code string) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
