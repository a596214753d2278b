package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/keijiban/internal/model"
	"github.com/hitoshi/keijiban/internal/upload"
	"github.com/hitoshi/keijiban/internal/user"
)

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	getProfileFn         func(ctx context.Context, userID int64) (*user.Profile, error)
	listPostsFn          func(ctx context.Context, userID int64) ([]*model.Post, error)
	listCommentsFn       func(ctx context.Context, userID int64) ([]*model.Comment, error)
	setProfileImageFn    func(ctx context.Context, identity *model.Identity, userID int64, imageURL string) error
	importProfileImageFn func(ctx context.Context, identity *model.Identity, userID int64, rawURL string) (*upload.Result, error)
}

func (m *mockUserService) GetProfile(ctx context.Context, userID int64) (*user.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return &user.Profile{User: &model.User{ID: userID, Username: "alice", Nickname: "アリス"}}, nil
}
func (m *mockUserService) ListPosts(ctx context.Context, userID int64) ([]*model.Post, error) {
	if m.listPostsFn != nil {
		return m.listPostsFn(ctx, userID)
	}
	return []*model.Post{}, nil
}
func (m *mockUserService) ListComments(ctx context.Context, userID int64) ([]*model.Comment, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, userID)
	}
	return []*model.Comment{}, nil
}
func (m *mockUserService) SetProfileImage(ctx context.Context, identity *model.Identity, userID int64, imageURL string) error {
	if m.setProfileImageFn != nil {
		return m.setProfileImageFn(ctx, identity, userID, imageURL)
	}
	return nil
}
func (m *mockUserService) ImportProfileImage(ctx context.Context, identity *model.Identity, userID int64, rawURL string) (*upload.Result, error) {
	if m.importProfileImageFn != nil {
		return m.importProfileImageFn(ctx, identity, userID, rawURL)
	}
	return &upload.Result{URL: "/uploads/rehosted.png"}, nil
}

func TestUserHandler_GetProfile_Success(t *testing.T) {
	svc := &mockUserService{
		getProfileFn: func(ctx context.Context, userID int64) (*user.Profile, error) {
			return &user.Profile{
				User:         &model.User{ID: userID, Username: "alice", Email: "alice@example.com", Nickname: "アリス"},
				PostCount:    12,
				CommentCount: 34,
			}, nil
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/users/7", nil)
	req = withChiURLParam(req, "id", "7")
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp profileResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.PostCount != 12 || resp.CommentCount != 34 {
		t.Errorf("counts = %d/%d, want 12/34", resp.PostCount, resp.CommentCount)
	}
	// 他人のプロフィールにメールアドレスは含めない
	if resp.User.Email != "" {
		t.Errorf("email should not be exposed in profile, got %q", resp.User.Email)
	}
}

func TestUserHandler_GetProfile_NotFound(t *testing.T) {
	svc := &mockUserService{
		getProfileFn: func(ctx context.Context, userID int64) (*user.Profile, error) {
			return nil, model.NewUserNotFoundError()
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/users/999", nil)
	req = withChiURLParam(req, "id", "999")
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestUserHandler_GetProfile_InvalidID(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodGet, "/api/users/abc", nil)
	req = withChiURLParam(req, "id", "abc")
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUserHandler_ListUserPosts_Success(t *testing.T) {
	svc := &mockUserService{
		listPostsFn: func(ctx context.Context, userID int64) ([]*model.Post, error) {
			return []*model.Post{
				{ID: 1, UserID: userID, Title: "最初の投稿"},
				{ID: 2, UserID: userID, Title: "2番目の投稿"},
			}, nil
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/users/7/posts", nil)
	req = withChiURLParam(req, "id", "7")
	w := httptest.NewRecorder()

	h.ListUserPosts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp []postResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Errorf("posts = %d, want 2", len(resp))
	}
}

func TestUserHandler_UpdateProfileImage_SetUploadedImage(t *testing.T) {
	svc := &mockUserService{
		setProfileImageFn: func(ctx context.Context, identity *model.Identity, userID int64, imageURL string) error {
			if imageURL != "/uploads/avatar.png" {
				t.Errorf("imageURL = %q", imageURL)
			}
			return nil
		},
		importProfileImageFn: func(ctx context.Context, identity *model.Identity, userID int64, rawURL string) (*upload.Result, error) {
			t.Fatal("ImportProfileImage should not be called for image_url")
			return nil, nil
		},
	}
	h := NewUserHandler(svc)

	body := `{"image_url": "/uploads/avatar.png"}`
	req := httptest.NewRequest(http.MethodPut, "/api/users/7/image", bytes.NewBufferString(body))
	req = withChiURLParam(req, "id", "7")
	req = withIdentity(req, &model.Identity{UserID: 7, Username: "alice"})
	w := httptest.NewRecorder()

	h.UpdateProfileImage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["profile_image_url"] != "/uploads/avatar.png" {
		t.Errorf("profile_image_url = %q", resp["profile_image_url"])
	}
}

func TestUserHandler_UpdateProfileImage_ImportFromRemote(t *testing.T) {
	svc := &mockUserService{
		importProfileImageFn: func(ctx context.Context, identity *model.Identity, userID int64, rawURL string) (*upload.Result, error) {
			if rawURL != "https://example.com/avatar.png" {
				t.Errorf("rawURL = %q", rawURL)
			}
			return &upload.Result{URL: "/uploads/rehosted.png"}, nil
		},
	}
	h := NewUserHandler(svc)

	body := `{"source_url": "https://example.com/avatar.png"}`
	req := httptest.NewRequest(http.MethodPut, "/api/users/7/image", bytes.NewBufferString(body))
	req = withChiURLParam(req, "id", "7")
	req = withIdentity(req, &model.Identity{UserID: 7, Username: "alice"})
	w := httptest.NewRecorder()

	h.UpdateProfileImage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["profile_image_url"] != "/uploads/rehosted.png" {
		t.Errorf("profile_image_url = %q", resp["profile_image_url"])
	}
}

func TestUserHandler_UpdateProfileImage_BothURLs(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	body := `{"image_url": "/uploads/a.png", "source_url": "https://example.com/b.png"}`
	req := httptest.NewRequest(http.MethodPut, "/api/users/7/image", bytes.NewBufferString(body))
	req = withChiURLParam(req, "id", "7")
	req = withIdentity(req, &model.Identity{UserID: 7, Username: "alice"})
	w := httptest.NewRecorder()

	h.UpdateProfileImage(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUserHandler_UpdateProfileImage_NeitherURL(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	body := `{}`
	req := httptest.NewRequest(http.MethodPut, "/api/users/7/image", bytes.NewBufferString(body))
	req = withChiURLParam(req, "id", "7")
	req = withIdentity(req, &model.Identity{UserID: 7, Username: "alice"})
	w := httptest.NewRecorder()

	h.UpdateProfileImage(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUserHandler_UpdateProfileImage_SSRFBlocked(t *testing.T) {
	svc := &mockUserService{
		importProfileImageFn: func(ctx context.Context, identity *model.Identity, userID int64, rawURL string) (*upload.Result, error) {
			return nil, model.NewSSRFBlockedError(rawURL)
		},
	}
	h := NewUserHandler(svc)

	body := `{"source_url": "http://169.254.169.254/latest/meta-data/"}`
	req := httptest.NewRequest(http.MethodPut, "/api/users/7/image", bytes.NewBufferString(body))
	req = withChiURLParam(req, "id", "7")
	req = withIdentity(req, &model.Identity{UserID: 7, Username: "alice"})
	w := httptest.NewRecorder()

	h.UpdateProfileImage(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	resp := parseAPIErrorResponse(t, w)
	if resp["code"] != model.ErrCodeSSRFBlocked {
		t.Errorf("error code = %q", resp["code"])
	}
}
