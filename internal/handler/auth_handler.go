// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/keijiban/internal/auth"
	"github.com/hitoshi/keijiban/internal/metrics"
	"github.com/hitoshi/keijiban/internal/middleware"
	"github.com/hitoshi/keijiban/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register は新規ユーザーを登録する。
	Register(ctx context.Context, input auth.RegisterInput) (*model.User, error)
	// Login は資格情報を検証しトークンを発行する。
	Login(ctx context.Context, username, password string) (string, error)
	// GetCurrentUser はアイデンティティから現在のユーザーを取得する。
	GetCurrentUser(ctx context.Context, identity *model.Identity) (*model.User, error)
}

// AuthHandler は認証のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	collector metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service:   service,
		collector: collector,
	}
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse はログイン成功のレスポンス。
type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

// userResponse はユーザー情報のAPIレスポンス。
// パスワードハッシュは含めない。
type userResponse struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email,omitempty"`
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Register はユーザー登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if err := validateRegisterRequest(req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.service.Register(r.Context(), auth.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Nickname: strings.TrimSpace(req.Nickname),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordRegistration()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toUserResponse(user, true))
}

// Login はログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.Username == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("ユーザー名とパスワードは必須です"))
		return
	}

	token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.recordLoginFailure(err)
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordLoginSuccess()
		h.collector.RecordTokenIssued()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{Token: token, TokenType: "Bearer"})
}

// Me は現在のユーザー情報を取得する。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	user, err := h.service.GetCurrentUser(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(user, true))
}

// recordLoginFailure はログイン失敗を理由付きでメトリクスに記録する。
func (h *AuthHandler) recordLoginFailure(err error) {
	if h.collector == nil {
		return
	}
	switch {
	case isAPIErrorCode(err, model.ErrCodeAccountDisabled):
		h.collector.RecordLoginFailure("account_disabled")
	case isAPIErrorCode(err, model.ErrCodeInvalidCredentials):
		h.collector.RecordLoginFailure("invalid_credentials")
	default:
		h.collector.RecordLoginFailure("internal_error")
	}
}

// validateRegisterRequest は登録リクエストの必須項目と形式を検証する。
func validateRegisterRequest(req registerRequest) *model.APIError {
	if strings.TrimSpace(req.Username) == "" {
		return model.NewInvalidRequestError("ユーザー名は必須です")
	}
	if strings.TrimSpace(req.Email) == "" || !strings.Contains(req.Email, "@") {
		return model.NewInvalidRequestError("メールアドレスの形式が不正です")
	}
	if len(req.Password) < 8 {
		return model.NewInvalidRequestError("パスワードは8文字以上で指定してください")
	}
	if strings.TrimSpace(req.Nickname) == "" {
		return model.NewInvalidRequestError("ニックネームは必須です")
	}
	return nil
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
// includeEmail は本人向けレスポンスの場合のみtrueとする。
func toUserResponse(user *model.User, includeEmail bool) userResponse {
	resp := userResponse{
		ID:              user.ID,
		Username:        user.Username,
		Nickname:        user.Nickname,
		ProfileImageURL: user.ProfileImageURL,
	}
	if includeEmail {
		resp.Email = user.Email
	}
	return resp
}
