// Package storage はアップロードファイルの永続化を提供する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidFilename はパス区切りや親ディレクトリ参照を含むファイル名に対して返される。
var ErrInvalidFilename = errors.New("invalid filename")

// BlobStore はバイナリデータの保存先インターフェース。
type BlobStore interface {
	// Save はデータを指定ファイル名で保存する。
	Save(ctx context.Context, filename string, data []byte) error

	// Delete は指定ファイルを削除する。存在しない場合もエラーとしない。
	Delete(ctx context.Context, filename string) error

	// Exists は指定ファイルが存在するかを返す。
	Exists(filename string) bool
}

// FileSystemStore はローカルファイルシステムを使用したBlobStoreの実装。
type FileSystemStore struct {
	baseDir string
}

// NewFileSystemStore はFileSystemStoreを生成し、保存先ディレクトリを作成する。
func NewFileSystemStore(baseDir string) (*FileSystemStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileSystemStore{baseDir: baseDir}, nil
}

// Save はデータを指定ファイル名で保存する。
// 書き込み後にfsyncして永続化を保証する。
func (s *FileSystemStore) Save(ctx context.Context, filename string, data []byte) error {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

// Delete は指定ファイルを削除する。存在しない場合もエラーとしない。
func (s *FileSystemStore) Delete(ctx context.Context, filename string) error {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Exists は指定ファイルが存在するかを返す。
func (s *FileSystemStore) Exists(filename string) bool {
	path, err := s.resolve(filename)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}

// BaseDir は保存先ディレクトリを返す。静的配信ハンドラの設定に使用する。
func (s *FileSystemStore) BaseDir() string {
	return s.baseDir
}

// resolve はファイル名を検証して保存先のフルパスを返す。
// パストラバーサルを防ぐため、区切り文字と親ディレクトリ参照を拒否する。
func (s *FileSystemStore) resolve(filename string) (string, error) {
	if filename == "" ||
		strings.ContainsAny(filename, `/\`) ||
		strings.Contains(filename, "..") ||
		filename != filepath.Base(filename) {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}
	return filepath.Join(s.baseDir, filename), nil
}

// compile-time interface check
var _ BlobStore = (*FileSystemStore)(nil)
