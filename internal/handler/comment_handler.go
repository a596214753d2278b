package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/keijiban/internal/comment"
	"github.com/hitoshi/keijiban/internal/middleware"
	"github.com/hitoshi/keijiban/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	// ListByPost は指定投稿のコメント一覧を取得する。
	ListByPost(ctx context.Context, postID int64) ([]*model.Comment, error)
	// Create は新規コメントを作成する。
	Create(ctx context.Context, identity *model.Identity, input comment.CreateCommentInput) (*model.Comment, error)
	// Update はコメント本文を更新する。
	Update(ctx context.Context, identity *model.Identity, id int64, content string) (*model.Comment, error)
	// Delete はコメントを論理削除する。
	Delete(ctx context.Context, identity *model.Identity, id int64) error
}

// CommentHandler はコメントのHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// createCommentRequest はコメント作成リクエストのボディ。
type createCommentRequest struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// updateCommentRequest はコメント更新リクエストのボディ。
type updateCommentRequest struct {
	Content string `json:"content"`
}

// commentResponse はコメントのAPIレスポンス。
type commentResponse struct {
	ID             int64     `json:"id"`
	PostID         int64     `json:"post_id"`
	UserID         int64     `json:"user_id"`
	ParentID       *int64    `json:"parent_id,omitempty"`
	Content        string    `json:"content"`
	AuthorNickname string    `json:"author_nickname"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListComments は投稿のコメント一覧を取得する。
// GET /api/posts/{postID}/comments
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}

	comments, err := h.service.ListByPost(r.Context(), postID)
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

// CreateComment はコメント作成を処理する。
// POST /api/posts/{postID}/comments
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	created, err := h.service.Create(r.Context(), identity, comment.CreateCommentInput{
		PostID:   postID,
		ParentID: req.ParentID,
		Content:  req.Content,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toCommentResponse(created))
}

// UpdateComment はコメント更新を処理する。
// PUT /api/comments/{commentID}
func (h *CommentHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	id, ok := pathID(w, r, "commentID")
	if !ok {
		return
	}

	var req updateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	updated, err := h.service.Update(r.Context(), identity, id, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCommentResponse(updated))
}

// DeleteComment はコメント削除を処理する。
// DELETE /api/comments/{commentID}
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	id, ok := pathID(w, r, "commentID")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toCommentResponse はmodel.CommentからAPIレスポンスに変換する。
func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:             c.ID,
		PostID:         c.PostID,
		UserID:         c.UserID,
		ParentID:       c.ParentID,
		Content:        c.Content,
		AuthorNickname: c.AuthorNickname,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
