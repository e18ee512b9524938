package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testGateway(t *testing.T, handler http.Handler) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, RetryPolicy{}, nil)
}

func TestGateway_AttachesBearerAndRequestID(t *testing.T) {
	var gotAuth, gotReqID string
	g := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{}`))
	}))
	g.SetToken("tok123")

	var out struct{}
	if err := g.GetJSON(context.Background(), "/posts", nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", gotAuth)
	}
	if gotReqID == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestGateway_NoTokenNoHeader(t *testing.T) {
	var gotAuth string
	var hasAuth bool
	g := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, hasAuth = r.Header["Authorization"]
		w.Write([]byte(`{}`))
	}))

	if err := g.GetJSON(context.Background(), "/posts", nil, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if hasAuth {
		t.Errorf("Authorization sent without a token: %q", gotAuth)
	}
}

func TestGateway_ServerErrorMessage(t *testing.T) {
	g := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"Email sudah terdaftar"}`))
	}))

	err := g.PostJSON(context.Background(), "/auth/register", map[string]string{}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d, want 409", apiErr.StatusCode)
	}
	if apiErr.Message != "Email sudah terdaftar" {
		t.Errorf("Message = %q, want server message", apiErr.Message)
	}
}

func TestGateway_GenericFallbackMessage(t *testing.T) {
	g := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`not json`))
	}))

	err := g.GetJSON(context.Background(), "/posts", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Message != genericMessage {
		t.Errorf("Message = %q, want generic fallback", apiErr.Message)
	}
}

func TestGateway_UnauthorizedFiresHandlerAndReturnsError(t *testing.T) {
	g := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Token expired"}`))
	}))
	var fired int32
	g.OnUnauthorized(func() { atomic.AddInt32(&fired, 1) })

	err := g.GetJSON(context.Background(), "/users/notifications", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
		t.Fatalf("err = %v, want 401 *APIError", err)
	}
	if atomic.LoadInt32(&fired) != 1 {
		t.Errorf("unauthorized handler fired %d times, want 1", fired)
	}
}

func TestGateway_UnauthorizedOnAuthEndpointsIsLocal(t *testing.T) {
	g := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Email/username atau password salah"}`))
	}))
	var fired int32
	g.OnUnauthorized(func() { atomic.AddInt32(&fired, 1) })

	for _, path := range []string{"/auth/login", "/auth/register", "/auth/refresh"} {
		err := g.PostJSON(context.Background(), path, map[string]string{}, nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
			t.Fatalf("%s: err = %v, want 401 *APIError", path, err)
		}
	}
	if atomic.LoadInt32(&fired) != 0 {
		t.Errorf("unauthorized handler fired %d times for auth endpoints, want 0", fired)
	}
}

func TestGateway_ReadRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()
	g := New(srv.URL, 5*time.Second, RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, nil)

	var out struct {
		OK bool `json:"ok"`
	}
	if err := g.GetJSON(context.Background(), "/posts", nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestGateway_TerminalStatusesNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound} {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"terminal"}`))
		}))
		g := New(srv.URL, 5*time.Second, RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, nil)

		err := g.GetJSON(context.Background(), "/posts/999", nil, nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != status {
			t.Fatalf("status %d: err = %v, want matching *APIError", status, err)
		}
		if got := atomic.LoadInt32(&calls); got != 1 {
			t.Errorf("status %d: server called %d times, want 1", status, got)
		}
		srv.Close()
	}
}

func TestGateway_WritesNeverRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()
	g := New(srv.URL, 5*time.Second, RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, nil)

	if err := g.PostJSON(context.Background(), "/posts", map[string]string{"content": "hi"}, nil); err == nil {
		t.Fatal("PostJSON should fail")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server called %d times for a write, want 1", got)
	}
}

func TestGateway_QueryParams(t *testing.T) {
	var gotQuery url.Values
	g := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{}`))
	}))

	q := url.Values{}
	q.Set("type", "timeline")
	q.Set("page", "2")
	q.Set("per_page", "10")
	if err := g.GetJSON(context.Background(), "/posts", q, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if gotQuery.Get("type") != "timeline" || gotQuery.Get("page") != "2" || gotQuery.Get("per_page") != "10" {
		t.Errorf("query = %v, want type/page/per_page forwarded", gotQuery)
	}
}

func TestGateway_PostMultipart(t *testing.T) {
	var gotField, gotName, gotContent string
	g := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		buf := make([]byte, hdr.Size)
		n, _ := f.Read(buf)
		gotField, gotName, gotContent = "file", hdr.Filename, string(buf[:n])
		w.Write([]byte(`{"url":"/uploads/1/abc.png"}`))
	}))

	var out struct {
		URL string `json:"url"`
	}
	err := g.PostMultipart(context.Background(), "/upload/image", "file", "pic.png", strings.NewReader("png-bytes"), &out)
	if err != nil {
		t.Fatalf("PostMultipart: %v", err)
	}
	if gotField != "file" || gotName != "pic.png" || gotContent != "png-bytes" {
		t.Errorf("multipart got (%q,%q,%q)", gotField, gotName, gotContent)
	}
	if out.URL == "" {
		t.Error("upload response not decoded")
	}
}

func TestGateway_Health(t *testing.T) {
	g := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"healthy","message":"Aray Forum API is running"}`))
	}))
	if err := g.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
