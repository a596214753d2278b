package post

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/security"
)

// --- モック定義 ---

type mockPostRepo struct {
	findByIDFn           func(ctx context.Context, id int64) (*model.Post, error)
	listFn               func(ctx context.Context, page, size int) ([]*model.Post, int64, error)
	listByUserIDFn       func(ctx context.Context, userID int64) ([]*model.Post, error)
	createFn             func(ctx context.Context, post *model.Post) (int64, error)
	updateFn             func(ctx context.Context, post *model.Post) error
	softDeleteByIDFn     func(ctx context.Context, id int64) error
	incrementViewCountFn func(ctx context.Context, id int64) error
}

func (m *mockPostRepo) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockPostRepo) List(ctx context.Context, page, size int) ([]*model.Post, int64, error) {
	if m.listFn != nil {
		return m.listFn(ctx, page, size)
	}
	return []*model.Post{}, 0, nil
}
func (m *mockPostRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Post, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return []*model.Post{}, nil
}
func (m *mockPostRepo) Create(ctx context.Context, post *model.Post) (int64, error) {
	if m.createFn != nil {
		return m.createFn(ctx, post)
	}
	return 1, nil
}
func (m *mockPostRepo) Update(ctx context.Context, post *model.Post) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, post)
	}
	return nil
}
func (m *mockPostRepo) SoftDeleteByID(ctx context.Context, id int64) error {
	if m.softDeleteByIDFn != nil {
		return m.softDeleteByIDFn(ctx, id)
	}
	return nil
}
func (m *mockPostRepo) IncrementViewCount(ctx context.Context, id int64) error {
	if m.incrementViewCountFn != nil {
		return m.incrementViewCountFn(ctx, id)
	}
	return nil
}
func (m *mockPostRepo) PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func newTestService(repo *mockPostRepo) *Service {
	return NewService(repo, security.NewContentSanitizer())
}

func ownerIdentity() *model.Identity {
	return &model.Identity{UserID: 7, Username: "alice"}
}

func existingPost() *model.Post {
	return &model.Post{
		ID:      42,
		UserID:  7,
		Title:   "既存のタイトル",
		Content: "<p>既存の本文</p>",
	}
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

// --- 作成のテスト ---

// TestService_Create_Success は認証済みユーザーが投稿を作成できることを検証する。
func TestService_Create_Success(t *testing.T) {
	var created *model.Post
	repo := &mockPostRepo{
		createFn: func(ctx context.Context, post *model.Post) (int64, error) {
			created = post
			return 42, nil
		},
	}
	svc := newTestService(repo)

	post, err := svc.Create(context.Background(), ownerIdentity(), CreatePostInput{
		Title:   "初めての投稿",
		Content: "<p>こんにちは</p>",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if post.ID != 42 {
		t.Errorf("post ID = %d, want 42", post.ID)
	}
	if created.UserID != 7 {
		t.Errorf("created UserID = %d, want 7", created.UserID)
	}
	if created.Title != "初めての投稿" {
		t.Errorf("created Title = %q", created.Title)
	}
}

// TestService_Create_Anonymous は未認証の作成がUNAUTHENTICATEDとなることを検証する。
func TestService_Create_Anonymous(t *testing.T) {
	repo := &mockPostRepo{
		createFn: func(ctx context.Context, post *model.Post) (int64, error) {
			t.Fatal("Create should not be called for anonymous request")
			return 0, nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), nil, CreatePostInput{
		Title:   "タイトル",
		Content: "本文",
	})
	assertAPIErrorCode(t, err, model.ErrCodeUnauthenticated)
}

// TestService_Create_SanitizesContent は本文のscriptタグが保存前に除去されることを検証する。
func TestService_Create_SanitizesContent(t *testing.T) {
	var created *model.Post
	repo := &mockPostRepo{
		createFn: func(ctx context.Context, post *model.Post) (int64, error) {
			created = post
			return 1, nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), ownerIdentity(), CreatePostInput{
		Title:   "<strong>タイトル</strong>",
		Content: `<p>本文</p><script>alert("xss")</script>`,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if strings.Contains(created.Content, "<script") {
		t.Errorf("content still contains script tag: %q", created.Content)
	}
	if created.Title != "タイトル" {
		t.Errorf("title not stripped to plain text: %q", created.Title)
	}
}

// TestService_Create_Validation は必須項目の検証を確認する。
func TestService_Create_Validation(t *testing.T) {
	svc := newTestService(&mockPostRepo{})

	tests := []struct {
		name  string
		input CreatePostInput
	}{
		{name: "タイトルが空", input: CreatePostInput{Title: "", Content: "本文"}},
		{name: "本文が空", input: CreatePostInput{Title: "タイトル", Content: ""}},
		{name: "タイトルがタグのみ", input: CreatePostInput{Title: "<script></script>", Content: "本文"}},
		{name: "タイトルが長すぎる", input: CreatePostInput{Title: strings.Repeat("あ", maxTitleLength+1), Content: "本文"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), ownerIdentity(), tt.input)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
		})
	}
}

// --- 一覧のテスト ---

// TestService_List_Pagination はページネーションの計算を検証する。
func TestService_List_Pagination(t *testing.T) {
	repo := &mockPostRepo{
		listFn: func(ctx context.Context, page, size int) ([]*model.Post, int64, error) {
			return []*model.Post{existingPost()}, 45, nil
		},
	}
	svc := newTestService(repo)

	result, err := svc.List(context.Background(), 2, 20)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if result.Page != 2 || result.Size != 20 {
		t.Errorf("page/size = %d/%d, want 2/20", result.Page, result.Size)
	}
	if result.TotalCount != 45 {
		t.Errorf("total count = %d, want 45", result.TotalCount)
	}
	if result.TotalPages != 3 {
		t.Errorf("total pages = %d, want 3", result.TotalPages)
	}
}

// TestService_List_ClampsInvalidParams は不正なページ指定がデフォルト値に丸められることを検証する。
func TestService_List_ClampsInvalidParams(t *testing.T) {
	var gotPage, gotSize int
	repo := &mockPostRepo{
		listFn: func(ctx context.Context, page, size int) ([]*model.Post, int64, error) {
			gotPage, gotSize = page, size
			return []*model.Post{}, 0, nil
		},
	}
	svc := newTestService(repo)

	if _, err := svc.List(context.Background(), -1, 9999); err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if gotPage != 1 {
		t.Errorf("page = %d, want 1", gotPage)
	}
	if gotSize != defaultPageSize {
		t.Errorf("size = %d, want %d", gotSize, defaultPageSize)
	}
}

// --- 詳細のテスト ---

// TestService_Get_IncrementsViewCount は詳細取得で閲覧数が1増えることを検証する。
func TestService_Get_IncrementsViewCount(t *testing.T) {
	incremented := false
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			p := existingPost()
			p.ViewCount = 10
			return p, nil
		},
		incrementViewCountFn: func(ctx context.Context, id int64) error {
			incremented = true
			return nil
		},
	}
	svc := newTestService(repo)

	post, err := svc.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !incremented {
		t.Error("view count was not incremented")
	}
	if post.ViewCount != 11 {
		t.Errorf("view count = %d, want 11", post.ViewCount)
	}
}

// TestService_Get_NotFound は存在しない投稿と削除済み投稿がいずれもPOST_NOT_FOUNDとなることを検証する。
func TestService_Get_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		findFn func(ctx context.Context, id int64) (*model.Post, error)
	}{
		{
			name: "存在しない投稿",
			findFn: func(ctx context.Context, id int64) (*model.Post, error) {
				return nil, nil
			},
		},
		{
			name: "論理削除済みの投稿",
			findFn: func(ctx context.Context, id int64) (*model.Post, error) {
				p := existingPost()
				p.IsDeleted = true
				return p, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockPostRepo{findByIDFn: tt.findFn})
			_, err := svc.Get(context.Background(), 42)
			assertAPIErrorCode(t, err, model.ErrCodePostNotFound)
		})
	}
}

// TestService_Get_ViewCountFailureDoesNotBlock は閲覧数更新の失敗が詳細表示を妨げないことを検証する。
func TestService_Get_ViewCountFailureDoesNotBlock(t *testing.T) {
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			return existingPost(), nil
		},
		incrementViewCountFn: func(ctx context.Context, id int64) error {
			return errors.New("db down")
		},
	}
	svc := newTestService(repo)

	post, err := svc.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if post == nil {
		t.Fatal("expected post despite view count failure")
	}
}

// --- 更新のテスト ---

// TestService_Update_Owner は所有者による更新が成功することを検証する。
func TestService_Update_Owner(t *testing.T) {
	var updated *model.Post
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			return existingPost(), nil
		},
		updateFn: func(ctx context.Context, post *model.Post) error {
			updated = post
			return nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.Update(context.Background(), ownerIdentity(), 42, UpdatePostInput{
		Title:   "更新後のタイトル",
		Content: "更新後の本文",
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Title != "更新後のタイトル" {
		t.Errorf("title = %q", updated.Title)
	}
}

// TestService_Update_NonOwner は他人の投稿の更新がFORBIDDENとなることを検証する。
func TestService_Update_NonOwner(t *testing.T) {
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			return existingPost(), nil
		},
		updateFn: func(ctx context.Context, post *model.Post) error {
			t.Fatal("Update should not be called for non-owner")
			return nil
		},
	}
	svc := newTestService(repo)

	other := &model.Identity{UserID: 99, Username: "mallory"}
	_, err := svc.Update(context.Background(), other, 42, UpdatePostInput{
		Title:   "乗っ取り",
		Content: "本文",
	})
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)
}

// TestService_Update_NotFoundBeforeOwnership は存在確認が所有者チェックより先に行われることを検証する。
// 存在しない投稿には認証状態によらずPOST_NOT_FOUNDを返す。
func TestService_Update_NotFoundBeforeOwnership(t *testing.T) {
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			return nil, nil
		},
	}
	svc := newTestService(repo)

	// 未認証でも存在しない投稿はNOT_FOUND（UNAUTHENTICATEDではない）
	_, err := svc.Update(context.Background(), nil, 42, UpdatePostInput{Title: "t", Content: "c"})
	assertAPIErrorCode(t, err, model.ErrCodePostNotFound)
}

// TestService_Update_AnonymousOnExistingPost は未認証による既存投稿の更新がUNAUTHENTICATEDとなることを検証する。
func TestService_Update_AnonymousOnExistingPost(t *testing.T) {
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			return existingPost(), nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.Update(context.Background(), nil, 42, UpdatePostInput{Title: "t", Content: "c"})
	assertAPIErrorCode(t, err, model.ErrCodeUnauthenticated)
}

// --- 削除のテスト ---

// TestService_Delete_Owner は所有者による削除が成功することを検証する。
func TestService_Delete_Owner(t *testing.T) {
	deleted := false
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			return existingPost(), nil
		},
		softDeleteByIDFn: func(ctx context.Context, id int64) error {
			deleted = true
			return nil
		},
	}
	svc := newTestService(repo)

	if err := svc.Delete(context.Background(), ownerIdentity(), 42); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !deleted {
		t.Error("SoftDeleteByID was not called")
	}
}

// TestService_Delete_NonOwner は他人の投稿の削除がFORBIDDENとなることを検証する。
func TestService_Delete_NonOwner(t *testing.T) {
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			return existingPost(), nil
		},
		softDeleteByIDFn: func(ctx context.Context, id int64) error {
			t.Fatal("SoftDeleteByID should not be called for non-owner")
			return nil
		},
	}
	svc := newTestService(repo)

	other := &model.Identity{UserID: 99, Username: "mallory"}
	err := svc.Delete(context.Background(), other, 42)
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)
}

// TestService_Delete_NotFound は存在しない投稿の削除がPOST_NOT_FOUNDとなることを検証する。
func TestService_Delete_NotFound(t *testing.T) {
	svc := newTestService(&mockPostRepo{})

	err := svc.Delete(context.Background(), ownerIdentity(), 42)
	assertAPIErrorCode(t, err, model.ErrCodePostNotFound)
}
