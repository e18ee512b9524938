// Package gateway is the single outgoing-request pipeline of the client.
//
// Every request gets a request ID and, once a session exists, an
// Authorization: Bearer header. Every non-2xx response is decoded into an
// *APIError; a 401 on a protected path additionally fires the registered
// unauthorized handler before the error is returned, so the caller's local
// error handling still runs.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	bearerPrefix    = "Bearer "
)

// publicPaths are auth endpoints where a 401 is a local failure (bad
// credentials, expired refresh token) and must not trigger the global
// sign-out side effect.
var publicPaths = map[string]bool{
	"/auth/register": true,
	"/auth/login":    true,
	"/auth/refresh":  true,
}

// Gateway dispatches JSON and multipart requests against the API base URL.
// It is safe for concurrent use.
type Gateway struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy

	token          atomicString
	onUnauthorized atomicHandler
}

// New returns a Gateway for baseURL (e.g. http://localhost:5000/api).
// transport may be nil for http.DefaultTransport; pass an otelhttp transport
// to trace outgoing requests.
func New(baseURL string, timeout time.Duration, retry RetryPolicy, transport http.RoundTripper) *Gateway {
	return &Gateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		retry: retry,
	}
}

// SetToken sets the default credential attached to subsequent requests.
// An empty token clears it.
func (g *Gateway) SetToken(token string) {
	g.token.store(token)
}

// Token returns the current default credential, or "" if none.
func (g *Gateway) Token() string {
	return g.token.load()
}

// OnUnauthorized registers the handler invoked when a protected request
// observes HTTP 401. The handler runs before the error is returned to the
// caller.
func (g *Gateway) OnUnauthorized(fn func()) {
	g.onUnauthorized.store(fn)
}

// GetJSON issues a GET and decodes the response into out. Idempotent, so the
// retry policy applies.
func (g *Gateway) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return g.retry.retryRead(ctx, func() error {
		return g.do(ctx, http.MethodGet, path, query, nil, "", out)
	})
}

// PostJSON issues a POST with a JSON body (nil for empty) and decodes the
// response into out. Never retried.
func (g *Gateway) PostJSON(ctx context.Context, path string, body, out any) error {
	r, err := encodeJSON(body)
	if err != nil {
		return err
	}
	return g.do(ctx, http.MethodPost, path, nil, r, "application/json", out)
}

// PutJSON issues a PUT with a JSON body and decodes the response into out.
// Never retried.
func (g *Gateway) PutJSON(ctx context.Context, path string, body, out any) error {
	r, err := encodeJSON(body)
	if err != nil {
		return err
	}
	return g.do(ctx, http.MethodPut, path, nil, r, "application/json", out)
}

// Delete issues a DELETE and decodes the response into out. Never retried:
// the server treats deletes as mutations with side effects on counts.
func (g *Gateway) Delete(ctx context.Context, path string, out any) error {
	return g.do(ctx, http.MethodDelete, path, nil, nil, "", out)
}

// PostMultipart uploads content as a multipart form with the given field and
// file name, decoding the response into out. Never retried.
func (g *Gateway) PostMultipart(ctx context.Context, path, field, filename string, content io.Reader, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return g.do(ctx, http.MethodPost, path, nil, &buf, w.FormDataContentType(), out)
}

// Health checks GET /health and returns an error when the API is unreachable
// or unhealthy.
func (g *Gateway) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodGet, "/health", nil, nil, "", &out); err != nil {
		return err
	}
	if out.Status != "healthy" && out.Status != "ok" {
		return fmt.Errorf("gateway: api reported status %q", out.Status)
	}
	return nil
}

func (g *Gateway) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	requestID := uuid.New().String()
	req.Header.Set(headerRequestID, requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := g.token.load(); tok != "" {
		req.Header.Set("Authorization", bearerPrefix+tok)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
			RequestID:  requestID,
		}
		if apiErr.Unauthorized() && !publicPaths[path] {
			if fn := g.onUnauthorized.load(); fn != nil {
				fn()
			}
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts the server's {"error": ...} message, falling back to
// a generic string. Never swallows the failure silently.
func errorMessage(body io.Reader) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return genericMessage
}

func encodeJSON(body any) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}
