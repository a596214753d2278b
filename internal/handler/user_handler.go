package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/keijiban/internal/middleware"
	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/upload"
	"github.com/hitoshi/keijiban/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// GetProfile はユーザープロフィールと活動集計を取得する。
	GetProfile(ctx context.Context, userID int64) (*user.Profile, error)
	// ListPosts は指定ユーザーの投稿一覧を取得する。
	ListPosts(ctx context.Context, userID int64) ([]*model.Post, error)
	// ListComments は指定ユーザーのコメント一覧を取得する。
	ListComments(ctx context.Context, userID int64) ([]*model.Comment, error)
	// SetProfileImage はアップロード済み画像をプロフィール画像に設定する。
	SetProfileImage(ctx context.Context, identity *model.Identity, userID int64, imageURL string) error
	// ImportProfileImage はリモートURLの画像を再ホストしてプロフィール画像に設定する。
	ImportProfileImage(ctx context.Context, identity *model.Identity, userID int64, rawURL string) (*upload.Result, error)
}

// UserHandler はユーザープロフィールのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// profileResponse はユーザープロフィールのAPIレスポンス。
type profileResponse struct {
	User         userResponse `json:"user"`
	PostCount    int64        `json:"post_count"`
	CommentCount int64        `json:"comment_count"`
}

// profileImageRequest はプロフィール画像設定リクエストのボディ。
// image_urlはアップロード済み画像のURL、source_urlは取り込み元のリモートURL。
// いずれか一方のみを指定する。
type profileImageRequest struct {
	ImageURL  string `json:"image_url,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// GetProfile はユーザープロフィールを取得する。
// GET /api/users/{id}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profileResponse{
		User:         toUserResponse(profile.User, false),
		PostCount:    profile.PostCount,
		CommentCount: profile.CommentCount,
	})
}

// ListUserPosts はユーザーの投稿一覧を取得する。
// GET /api/users/{id}/posts
func (h *UserHandler) ListUserPosts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	posts, err := h.service.ListPosts(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListUserComments はユーザーのコメント一覧を取得する。
// GET /api/users/{id}/comments
func (h *UserHandler) ListUserComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	comments, err := h.service.ListComments(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// UpdateProfileImage はプロフィール画像の設定を処理する。
// PUT /api/users/{id}/image
func (h *UserHandler) UpdateProfileImage(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req profileImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	switch {
	case req.SourceURL != "" && req.ImageURL != "":
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("image_urlとsource_urlは同時に指定できません"))
		return

	case req.SourceURL != "":
		result, err := h.service.ImportProfileImage(r.Context(), identity, id, req.SourceURL)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"profile_image_url": result.URL})

	case req.ImageURL != "":
		if err := h.service.SetProfileImage(r.Context(), identity, id, req.ImageURL); err != nil {
			handleServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"profile_image_url": req.ImageURL})

	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("image_urlまたはsource_urlを指定してください"))
	}
}
