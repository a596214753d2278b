package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/hitoshi/keijiban/internal/metrics"
	"github.com/hitoshi/keijiban/internal/middleware"
	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/upload"
)

// UploadServiceInterface はアップロードハンドラーが必要とするサービスインターフェース。
type UploadServiceInterface interface {
	// Upload は画像を検証して保存し、公開URLを返す。
	Upload(ctx context.Context, identity *model.Identity, r io.Reader) (*upload.Result, error)
}

// UploadHandler は画像アップロードのHTTPハンドラー。
type UploadHandler struct {
	service   UploadServiceInterface
	collector metrics.MetricsCollector
	maxBytes  int64
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(service UploadServiceInterface, collector metrics.MetricsCollector, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		service:   service,
		collector: collector,
		maxBytes:  maxBytes,
	}
}

// uploadResponse はアップロード成功のレスポンス。
type uploadResponse struct {
	FileName     string `json:"file_name"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
}

// Upload は画像アップロードを処理する。
// POST /api/upload（multipart/form-data、フィールド名: file）
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	// multipartのメモリ展開はフォーム全体のサイズ上限で制限する
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1024)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("multipartフォームの解析に失敗しました"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("fileフィールドが必要です"))
		return
	}
	defer file.Close()

	result, err := h.service.Upload(r.Context(), identity, file)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordUpload(result.ContentType)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(uploadResponse{
		FileName:     result.FileName,
		URL:          result.URL,
		ThumbnailURL: result.ThumbnailURL,
		ContentType:  result.ContentType,
		Size:         result.Size,
	})
}
