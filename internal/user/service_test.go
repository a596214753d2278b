package user

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/upload"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id int64) (*model.User, error)
	updateProfileImageFn func(ctx context.Context, userID int64, url string) error
	countPostsFn         func(ctx context.Context, userID int64) (int64, error)
	countCommentsFn      func(ctx context.Context, userID int64) (int64, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.User{ID: id, Username: "alice", Nickname: "アリス", IsActive: true}, nil
}
func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) (int64, error) {
	return 0, errors.New("not implemented")
}
func (m *mockUserRepo) UpdateProfileImage(ctx context.Context, userID int64, url string) error {
	if m.updateProfileImageFn != nil {
		return m.updateProfileImageFn(ctx, userID, url)
	}
	return nil
}
func (m *mockUserRepo) CountPostsByUserID(ctx context.Context, userID int64) (int64, error) {
	if m.countPostsFn != nil {
		return m.countPostsFn(ctx, userID)
	}
	return 0, nil
}
func (m *mockUserRepo) CountCommentsByUserID(ctx context.Context, userID int64) (int64, error) {
	if m.countCommentsFn != nil {
		return m.countCommentsFn(ctx, userID)
	}
	return 0, nil
}

type mockPostRepo struct {
	listByUserIDFn func(ctx context.Context, userID int64) ([]*model.Post, error)
}

func (m *mockPostRepo) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	return nil, nil
}
func (m *mockPostRepo) List(ctx context.Context, page, size int) ([]*model.Post, int64, error) {
	return []*model.Post{}, 0, nil
}
func (m *mockPostRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Post, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return []*model.Post{}, nil
}
func (m *mockPostRepo) Create(ctx context.Context, post *model.Post) (int64, error) {
	return 0, errors.New("not implemented")
}
func (m *mockPostRepo) Update(ctx context.Context, post *model.Post) error {
	return errors.New("not implemented")
}
func (m *mockPostRepo) SoftDeleteByID(ctx context.Context, id int64) error {
	return errors.New("not implemented")
}
func (m *mockPostRepo) IncrementViewCount(ctx context.Context, id int64) error { return nil }
func (m *mockPostRepo) PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type mockCommentRepo struct {
	listByUserIDFn func(ctx context.Context, userID int64) ([]*model.Comment, error)
}

func (m *mockCommentRepo) FindByID(ctx context.Context, id int64) (*model.Comment, error) {
	return nil, nil
}
func (m *mockCommentRepo) ListByPostID(ctx context.Context, postID int64) ([]*model.Comment, error) {
	return []*model.Comment{}, nil
}
func (m *mockCommentRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Comment, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return []*model.Comment{}, nil
}
func (m *mockCommentRepo) Create(ctx context.Context, comment *model.Comment) (int64, error) {
	return 0, errors.New("not implemented")
}
func (m *mockCommentRepo) Update(ctx context.Context, comment *model.Comment) error {
	return errors.New("not implemented")
}
func (m *mockCommentRepo) SoftDeleteByID(ctx context.Context, id int64) error {
	return errors.New("not implemented")
}
func (m *mockCommentRepo) PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type mockGuard struct {
	validateURLFn func(rawURL string) error
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return http.DefaultClient
}
func (m *mockGuard) ValidateURL(rawURL string) error {
	if m.validateURLFn != nil {
		return m.validateURLFn(rawURL)
	}
	return nil
}

type mockUploader struct {
	uploadFn func(ctx context.Context, identity *model.Identity, r io.Reader) (*upload.Result, error)
}

func (m *mockUploader) Upload(ctx context.Context, identity *model.Identity, r io.Reader) (*upload.Result, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, identity, r)
	}
	return &upload.Result{FileName: "stored.png", URL: "/uploads/stored.png"}, nil
}

func newTestService(userRepo *mockUserRepo, postRepo *mockPostRepo, commentRepo *mockCommentRepo, guard *mockGuard, uploader *mockUploader) *Service {
	return NewService(userRepo, postRepo, commentRepo, guard, uploader)
}

func ownerIdentity() *model.Identity {
	return &model.Identity{UserID: 7, Username: "alice"}
}

func assertAPIErrorCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != wantCode {
		t.Errorf("error code = %s, want %s", apiErr.Code, wantCode)
	}
}

// --- プロフィールのテスト ---

// TestService_GetProfile_Success はプロフィールと活動集計が取得できることを検証する。
func TestService_GetProfile_Success(t *testing.T) {
	userRepo := &mockUserRepo{
		countPostsFn: func(ctx context.Context, userID int64) (int64, error) {
			return 12, nil
		},
		countCommentsFn: func(ctx context.Context, userID int64) (int64, error) {
			return 34, nil
		},
	}
	svc := newTestService(userRepo, &mockPostRepo{}, &mockCommentRepo{}, &mockGuard{}, &mockUploader{})

	profile, err := svc.GetProfile(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetProfile returned error: %v", err)
	}
	if profile.User.Username != "alice" {
		t.Errorf("username = %q", profile.User.Username)
	}
	if profile.PostCount != 12 || profile.CommentCount != 34 {
		t.Errorf("counts = %d/%d, want 12/34", profile.PostCount, profile.CommentCount)
	}
}

// TestService_GetProfile_NotFound は存在しないユーザーがUSER_NOT_FOUNDとなることを検証する。
func TestService_GetProfile_NotFound(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return nil, nil
		},
	}
	svc := newTestService(userRepo, &mockPostRepo{}, &mockCommentRepo{}, &mockGuard{}, &mockUploader{})

	_, err := svc.GetProfile(context.Background(), 999)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

// TestService_ListPosts_RequiresUser は存在しないユーザーの投稿一覧がUSER_NOT_FOUNDとなることを検証する。
func TestService_ListPosts_RequiresUser(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return nil, nil
		},
	}
	svc := newTestService(userRepo, &mockPostRepo{}, &mockCommentRepo{}, &mockGuard{}, &mockUploader{})

	_, err := svc.ListPosts(context.Background(), 999)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

// TestService_ListComments_Success はユーザーのコメント一覧が取得できることを検証する。
func TestService_ListComments_Success(t *testing.T) {
	commentRepo := &mockCommentRepo{
		listByUserIDFn: func(ctx context.Context, userID int64) ([]*model.Comment, error) {
			return []*model.Comment{{ID: 1, UserID: userID, Content: "コメント"}}, nil
		},
	}
	svc := newTestService(&mockUserRepo{}, &mockPostRepo{}, commentRepo, &mockGuard{}, &mockUploader{})

	comments, err := svc.ListComments(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListComments returned error: %v", err)
	}
	if len(comments) != 1 {
		t.Errorf("got %d comments, want 1", len(comments))
	}
}

// --- プロフィール画像のテスト ---

// TestService_SetProfileImage_Owner は本人によるプロフィール画像の設定が成功することを検証する。
func TestService_SetProfileImage_Owner(t *testing.T) {
	var gotURL string
	userRepo := &mockUserRepo{
		updateProfileImageFn: func(ctx context.Context, userID int64, url string) error {
			gotURL = url
			return nil
		},
	}
	svc := newTestService(userRepo, &mockPostRepo{}, &mockCommentRepo{}, &mockGuard{}, &mockUploader{})

	err := svc.SetProfileImage(context.Background(), ownerIdentity(), 7, "/uploads/me.png")
	if err != nil {
		t.Fatalf("SetProfileImage returned error: %v", err)
	}
	if gotURL != "/uploads/me.png" {
		t.Errorf("stored URL = %q", gotURL)
	}
}

// TestService_SetProfileImage_NonOwner は他人のプロフィール画像の変更がFORBIDDENとなることを検証する。
func TestService_SetProfileImage_NonOwner(t *testing.T) {
	userRepo := &mockUserRepo{
		updateProfileImageFn: func(ctx context.Context, userID int64, url string) error {
			t.Fatal("UpdateProfileImage should not be called for non-owner")
			return nil
		},
	}
	svc := newTestService(userRepo, &mockPostRepo{}, &mockCommentRepo{}, &mockGuard{}, &mockUploader{})

	other := &model.Identity{UserID: 99, Username: "mallory"}
	err := svc.SetProfileImage(context.Background(), other, 7, "/uploads/hack.png")
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)
}

// TestService_ImportProfileImage_Success はリモート画像の取り込みと再ホストを検証する。
func TestService_ImportProfileImage_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("fake png bytes"))
	}))
	defer server.Close()

	var storedURL string
	userRepo := &mockUserRepo{
		updateProfileImageFn: func(ctx context.Context, userID int64, url string) error {
			storedURL = url
			return nil
		},
	}
	uploader := &mockUploader{
		uploadFn: func(ctx context.Context, identity *model.Identity, r io.Reader) (*upload.Result, error) {
			data, _ := io.ReadAll(r)
			if string(data) != "fake png bytes" {
				t.Errorf("uploader received %q", data)
			}
			return &upload.Result{FileName: "rehosted.png", URL: "/uploads/rehosted.png"}, nil
		},
	}
	svc := newTestService(userRepo, &mockPostRepo{}, &mockCommentRepo{}, &mockGuard{}, uploader)

	result, err := svc.ImportProfileImage(context.Background(), ownerIdentity(), 7, server.URL+"/avatar.png")
	if err != nil {
		t.Fatalf("ImportProfileImage returned error: %v", err)
	}
	if result.URL != "/uploads/rehosted.png" {
		t.Errorf("result URL = %q", result.URL)
	}
	if storedURL != "/uploads/rehosted.png" {
		t.Errorf("stored URL = %q, want rehosted URL", storedURL)
	}
}

// TestService_ImportProfileImage_BlockedURL は危険なURLがSSRF_BLOCKEDとなることを検証する。
func TestService_ImportProfileImage_BlockedURL(t *testing.T) {
	guard := &mockGuard{
		validateURLFn: func(rawURL string) error {
			return errors.New("blocked IP address")
		},
	}
	uploader := &mockUploader{
		uploadFn: func(ctx context.Context, identity *model.Identity, r io.Reader) (*upload.Result, error) {
			t.Fatal("Upload should not be called for blocked URL")
			return nil, nil
		},
	}
	svc := newTestService(&mockUserRepo{}, &mockPostRepo{}, &mockCommentRepo{}, guard, uploader)

	_, err := svc.ImportProfileImage(context.Background(), ownerIdentity(), 7, "http://169.254.169.254/latest/meta-data/")
	assertAPIErrorCode(t, err, model.ErrCodeSSRFBlocked)
}

// TestService_ImportProfileImage_RemoteError はリモート取得の失敗時にプロフィールが変更されないことを検証する。
func TestService_ImportProfileImage_RemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	userRepo := &mockUserRepo{
		updateProfileImageFn: func(ctx context.Context, userID int64, url string) error {
			t.Fatal("UpdateProfileImage should not be called on remote error")
			return nil
		},
	}
	svc := newTestService(userRepo, &mockPostRepo{}, &mockCommentRepo{}, &mockGuard{}, &mockUploader{})

	_, err := svc.ImportProfileImage(context.Background(), ownerIdentity(), 7, server.URL+"/missing.png")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
}
