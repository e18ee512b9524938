package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"aray-forum/client/internal/session/domain"
)

type uploadCall struct {
	path     string
	field    string
	filename string
	content  string
}

// fakeAPI records multipart and JSON calls and answers from canned responses
// keyed by path.
type fakeAPI struct {
	mu        sync.Mutex
	uploads   []uploadCall
	posts     []string
	responses map[string]any
	errs      map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{responses: map[string]any{}, errs: map[string]error{}}
}

func (f *fakeAPI) answer(path string, out any) error {
	if err := f.errs[path]; err != nil {
		return err
	}
	payload, ok := f.responses[path]
	if !ok || out == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeAPI) PostJSON(ctx context.Context, path string, body, out any) error {
	f.mu.Lock()
	f.posts = append(f.posts, path)
	f.mu.Unlock()
	return f.answer(path, out)
}

func (f *fakeAPI) PostMultipart(ctx context.Context, path, field, filename string, content io.Reader, out any) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, uploadCall{path: path, field: field, filename: filename, content: string(data)})
	f.mu.Unlock()
	return f.answer(path, out)
}

type fakeSession struct {
	mu      sync.Mutex
	patches []domain.UserPatch
}

func (f *fakeSession) UpdateUser(patch domain.UserPatch) {
	f.mu.Lock()
	f.patches = append(f.patches, patch)
	f.mu.Unlock()
}

func TestImage_Upload(t *testing.T) {
	api := newFakeAPI()
	api.responses["/upload/image"] = map[string]any{
		"file_url":  "/api/upload/files/1/abc.png",
		"filename":  "abc.png",
		"file_size": 1234,
	}
	svc := New(api, nil)

	res, err := svc.Image(context.Background(), "photo.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if res.FileURL != "/api/upload/files/1/abc.png" || res.FileSize != 1234 {
		t.Fatalf("Image() = %+v", res)
	}
	if len(api.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(api.uploads))
	}
	up := api.uploads[0]
	if up.path != "/upload/image" || up.field != "file" || up.filename != "photo.png" || up.content != "png-bytes" {
		t.Fatalf("upload call = %+v", up)
	}
}

func TestImage_RejectsUnsupportedExtension(t *testing.T) {
	svc := New(newFakeAPI(), nil)
	if _, err := svc.Image(context.Background(), "notes.txt", strings.NewReader("x")); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("Image(txt) error = %v, want ErrUnsupportedImage", err)
	}
	if _, err := svc.Image(context.Background(), "", strings.NewReader("x")); !errors.Is(err, ErrMissingFilename) {
		t.Fatalf("Image(no name) error = %v, want ErrMissingFilename", err)
	}
}

func TestAvatar_MergesURLIntoSession(t *testing.T) {
	api := newFakeAPI()
	api.responses["/upload/avatar"] = map[string]any{
		"avatar_url": "/api/upload/files/1/avatar_x.jpg",
		"filename":   "avatar_x.jpg",
	}
	sess := &fakeSession{}
	svc := New(api, sess)

	res, err := svc.Avatar(context.Background(), "me.jpg", strings.NewReader("jpg"))
	if err != nil {
		t.Fatalf("Avatar() error = %v", err)
	}
	if res.FileURL != "/api/upload/files/1/avatar_x.jpg" {
		t.Fatalf("Avatar() = %+v", res)
	}
	if len(sess.patches) != 1 || sess.patches[0].AvatarURL == nil || *sess.patches[0].AvatarURL != res.FileURL {
		t.Fatalf("session patches = %+v, want one avatar patch", sess.patches)
	}

	if _, err := svc.Avatar(context.Background(), "anim.gif", strings.NewReader("gif")); !errors.Is(err, ErrUnsupportedPhoto) {
		t.Fatalf("Avatar(gif) error = %v, want ErrUnsupportedPhoto", err)
	}
}

func TestBanner_MergesURLIntoSession(t *testing.T) {
	api := newFakeAPI()
	api.responses["/upload/banner"] = map[string]any{
		"banner_url": "/api/upload/files/1/banner_y.png",
		"filename":   "banner_y.png",
	}
	sess := &fakeSession{}
	svc := New(api, sess)

	res, err := svc.Banner(context.Background(), "wide.png", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("Banner() error = %v", err)
	}
	if len(sess.patches) != 1 || sess.patches[0].BannerURL == nil || *sess.patches[0].BannerURL != res.FileURL {
		t.Fatalf("session patches = %+v, want one banner patch", sess.patches)
	}
}

func TestDelete(t *testing.T) {
	api := newFakeAPI()
	svc := New(api, nil)

	if err := svc.Delete(context.Background(), ""); !errors.Is(err, ErrMissingFilename) {
		t.Fatalf("Delete(empty) error = %v, want ErrMissingFilename", err)
	}
	if err := svc.Delete(context.Background(), "abc.png"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(api.posts) != 1 || api.posts[0] != "/upload/delete" {
		t.Fatalf("posts = %v", api.posts)
	}
}

func TestCleanup(t *testing.T) {
	api := newFakeAPI()
	api.responses["/upload/cleanup"] = map[string]any{"deleted_count": 3}
	svc := New(api, nil)

	n, err := svc.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("Cleanup() = %d, want 3", n)
	}
}
