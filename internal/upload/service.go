// Package upload は画像アップロードの検証・保存・サムネイル生成を提供する。
package upload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/storage"
)

// sniffLength はMIMEタイプ判定に使用する先頭バイト数。
// http.DetectContentTypeは先頭512バイトのみを参照する。
const sniffLength = 512

// thumbnailPrefix はサムネイルファイル名の接頭辞。
const thumbnailPrefix = "thumb_"

// allowedTypes は受け付けるMIMEタイプと保存時の拡張子の対応。
// 拡張子はアップロード時のファイル名ではなく内容の判定結果から決める。
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Result はアップロード結果を表す。
type Result struct {
	FileName     string
	URL          string
	ThumbnailURL string
	ContentType  string
	Size         int64
}

// Service は画像アップロードのビジネスロジックを提供する。
type Service struct {
	store      storage.BlobStore
	maxBytes   int64
	thumbWidth int
	publicBase string

	// テストから時刻とIDを差し替えるためのフック
	now   func() time.Time
	newID func() string
}

// NewService はServiceを生成する。
// publicBaseは保存したファイルを公開するURLのパス接頭辞。
func NewService(store storage.BlobStore, maxBytes int64, thumbWidth int, publicBase string) *Service {
	return &Service{
		store:      store,
		maxBytes:   maxBytes,
		thumbWidth: thumbWidth,
		publicBase: publicBase,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Upload は画像を検証して保存し、公開URLを返す。
// 識別子なしのユーザーはアップロードできない。
// MIMEタイプはファイル内容の先頭バイトから判定し、JPEG・PNG・GIFのみを受け付ける。
// 保存に成功すると元画像とサムネイルの2ファイルが作成される。
func (s *Service) Upload(ctx context.Context, identity *model.Identity, r io.Reader) (*Result, error) {
	if identity == nil {
		return nil, model.NewUnauthenticatedError()
	}

	// サイズ上限+1バイトまで読み、超過を検出する
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("アップロードデータの読み込みに失敗しました: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, model.NewUploadTooLargeError(s.maxBytes)
	}
	if len(data) == 0 {
		return nil, model.NewUploadInvalidFileError("ファイルが空です")
	}

	contentType := detectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, model.NewUploadInvalidFileError(fmt.Sprintf("対応していない形式です: %s", contentType))
	}

	// 内容が本当に画像としてデコードできるかを確認する
	original, err := decodeImage(data, contentType)
	if err != nil {
		return nil, model.NewUploadInvalidFileError("画像のデコードに失敗しました")
	}

	filename := fmt.Sprintf("%s_%s%s", s.now().Format("20060102150405"), s.newID(), ext)

	if err := s.store.Save(ctx, filename, data); err != nil {
		return nil, fmt.Errorf("ファイルの保存に失敗しました: %w", err)
	}

	// サムネイル生成の失敗はアップロード自体を妨げない
	thumbnailURL := ""
	if thumb, err := s.makeThumbnail(original, contentType); err != nil {
		slog.Warn("failed to generate thumbnail",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
	} else if err := s.store.Save(ctx, thumbnailPrefix+filename, thumb); err != nil {
		slog.Warn("failed to save thumbnail",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
	} else {
		thumbnailURL = s.publicURL(thumbnailPrefix + filename)
	}

	slog.Info("file uploaded",
		slog.String("filename", filename),
		slog.String("content_type", contentType),
		slog.Int("size", len(data)),
		slog.Int64("user_id", identity.UserID),
	)

	return &Result{
		FileName:     filename,
		URL:          s.publicURL(filename),
		ThumbnailURL: thumbnailURL,
		ContentType:  contentType,
		Size:         int64(len(data)),
	}, nil
}

// publicURL はファイル名から公開URLを組み立てる。
func (s *Service) publicURL(filename string) string {
	return path.Join(s.publicBase, filename)
}

// makeThumbnail は幅thumbWidthに縮小したサムネイルを生成する。
// 元画像が既に十分小さい場合は縮小せずそのまま再エンコードする。
func (s *Service) makeThumbnail(original image.Image, contentType string) ([]byte, error) {
	width := s.thumbWidth
	if original.Bounds().Dx() <= width {
		width = original.Bounds().Dx()
	}

	ratio := float64(width) / float64(original.Bounds().Dx())
	height := int(float64(original.Bounds().Dy()) * ratio)
	if height < 1 {
		height = 1
	}

	bitmap := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(bitmap, bitmap.Bounds(), original, original.Bounds(), draw.Over, nil)

	return encodeImage(bitmap, contentType)
}

// detectContentType はファイル内容の先頭バイトからMIMEタイプを判定する。
func detectContentType(data []byte) string {
	if len(data) > sniffLength {
		data = data[:sniffLength]
	}
	return http.DetectContentType(data)
}

// decodeImage はMIMEタイプに応じたデコーダで画像を読み込む。
func decodeImage(data []byte, contentType string) (image.Image, error) {
	reader := bytes.NewReader(data)
	switch contentType {
	case "image/jpeg":
		return jpeg.Decode(reader)
	case "image/png":
		return png.Decode(reader)
	case "image/gif":
		return gif.Decode(reader)
	default:
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}
}

// encodeImage はMIMEタイプに応じたエンコーダで画像を書き出す。
func encodeImage(bitmap image.Image, contentType string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch contentType {
	case "image/jpeg":
		err = jpeg.Encode(&buf, bitmap, &jpeg.Options{Quality: 85})
	case "image/png":
		err = png.Encode(&buf, bitmap)
	case "image/gif":
		err = gif.Encode(&buf, bitmap, nil)
	default:
		err = fmt.Errorf("unsupported content type: %s", contentType)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
