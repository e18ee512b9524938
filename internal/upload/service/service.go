// Package service uploads media to the forum API. Uploads stream from an
// io.Reader through multipart POSTs; nothing here is cached since results are
// one-shot file URLs. Avatar and banner uploads also update the session
// identity so the UI reflects the new image without a profile re-fetch.
package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"aray-forum/client/internal/session/domain"
)

// Validation errors returned before any request is dispatched.
var (
	ErrMissingFilename  = errors.New("filename is required")
	ErrUnsupportedImage = errors.New("image must be PNG, JPG, JPEG, GIF, or WEBP")
	ErrUnsupportedPhoto = errors.New("avatar and banner must be PNG, JPG, or JPEG")
)

var (
	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	}
	photoExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
	}
)

// uploadAPI is the gateway surface the upload service depends on.
type uploadAPI interface {
	PostJSON(ctx context.Context, path string, body, out any) error
	PostMultipart(ctx context.Context, path, field, filename string, content io.Reader, out any) error
}

// identityStore merges served avatar and banner URLs into the session.
type identityStore interface {
	UpdateUser(patch domain.UserPatch)
}

// Result describes a stored upload.
type Result struct {
	FileURL  string `json:"file_url"`
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
}

// Service uploads and manages media files.
type Service struct {
	api     uploadAPI
	session identityStore
}

// New returns a Service. session may be nil when no identity merge is wanted.
func New(api uploadAPI, session identityStore) *Service {
	return &Service{api: api, session: session}
}

// Image uploads a post attachment and returns the served file URL.
func (s *Service) Image(ctx context.Context, filename string, content io.Reader) (*Result, error) {
	if err := checkExtension(filename, imageExtensions, ErrUnsupportedImage); err != nil {
		return nil, err
	}
	var res Result
	if err := s.api.PostMultipart(ctx, "/upload/image", "file", filename, content, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Avatar uploads a profile picture. The served URL is merged into the session
// identity.
func (s *Service) Avatar(ctx context.Context, filename string, content io.Reader) (*Result, error) {
	if err := checkExtension(filename, photoExtensions, ErrUnsupportedPhoto); err != nil {
		return nil, err
	}
	var resp struct {
		AvatarURL string `json:"avatar_url"`
		Filename  string `json:"filename"`
	}
	if err := s.api.PostMultipart(ctx, "/upload/avatar", "file", filename, content, &resp); err != nil {
		return nil, err
	}
	if s.session != nil {
		s.session.UpdateUser(domain.UserPatch{AvatarURL: &resp.AvatarURL})
	}
	return &Result{FileURL: resp.AvatarURL, Filename: resp.Filename}, nil
}

// Banner uploads a profile banner. The served URL is merged into the session
// identity.
func (s *Service) Banner(ctx context.Context, filename string, content io.Reader) (*Result, error) {
	if err := checkExtension(filename, photoExtensions, ErrUnsupportedPhoto); err != nil {
		return nil, err
	}
	var resp struct {
		BannerURL string `json:"banner_url"`
		Filename  string `json:"filename"`
	}
	if err := s.api.PostMultipart(ctx, "/upload/banner", "file", filename, content, &resp); err != nil {
		return nil, err
	}
	if s.session != nil {
		s.session.UpdateUser(domain.UserPatch{BannerURL: &resp.BannerURL})
	}
	return &Result{FileURL: resp.BannerURL, Filename: resp.Filename}, nil
}

// Delete removes an own uploaded file by name.
func (s *Service) Delete(ctx context.Context, filename string) error {
	if filename == "" {
		return ErrMissingFilename
	}
	return s.api.PostJSON(ctx, "/upload/delete", map[string]string{"filename": filename}, nil)
}

// Cleanup asks the server to delete uploads no longer referenced by any post
// or by the profile. Returns how many files were removed.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	var resp struct {
		DeletedCount int `json:"deleted_count"`
	}
	if err := s.api.PostJSON(ctx, "/upload/cleanup", nil, &resp); err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}

func checkExtension(filename string, allowed map[string]bool, errUnsupported error) error {
	if filename == "" {
		return ErrMissingFilename
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowed[ext] {
		return errUnsupported
	}
	return nil
}
