// Package store implements the session lifecycle: login, register, logout,
// startup auth check, refresh, and profile merge. It is the single source of
// truth for "who is logged in and with what credential"; nothing else writes
// the session record or the persisted copy.
package store

import (
	"context"
	"errors"
	"log"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"aray-forum/client/internal/session/domain"
	"aray-forum/client/internal/session/storage"
)

// Sentinel errors for credential validation; server-side failures surface as
// *gateway.APIError with the server's message.
var (
	ErrMissingCredentials = errors.New("email/username and password are required")
	ErrMissingFields      = errors.New("name, email, username, and password are required")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidUsername    = errors.New("username may only contain letters, numbers, and underscores")
	ErrWeakPassword       = errors.New("password must be at least 8 characters with upper, lower, and a number")
)

var (
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// Credentials identify a user for login by email or username.
type Credentials struct {
	EmailOrUsername string
	Password        string
}

// Registration holds the fields for account creation.
type Registration struct {
	Name     string
	Email    string
	Username string
	Password string
}

// authAPI is the minimal gateway surface needed by the session store.
type authAPI interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
	SetToken(token string)
}

// authResponse is the /auth/login, /auth/register, and /auth/refresh payload.
type authResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// Store owns the session record and its durable copy.
// All methods are safe for concurrent use.
type Store struct {
	api     authAPI
	persist storage.Store

	mu      sync.Mutex
	sess    domain.Session
	loading bool
	// cleared guards the 401 sign-out so persisted state is cleared exactly
	// once per authenticated epoch; it resets whenever a session is
	// established.
	cleared bool

	onChange    func(domain.Session)
	onSignedOut func()
}

// New returns a Store backed by the given gateway surface and persistence.
// Call CheckAuth once at startup to restore a persisted session.
func New(api authAPI, persist storage.Store) *Store {
	return &Store{api: api, persist: persist, cleared: true}
}

// OnChange registers a single observer notified (outside the lock) after
// every session mutation.
func (s *Store) OnChange(fn func(domain.Session)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// OnSignedOut registers the redirect hook invoked when the session is cleared
// by a 401 or a failed refresh. The login surface navigation lives here.
func (s *Store) OnSignedOut(fn func()) {
	s.mu.Lock()
	s.onSignedOut = fn
	s.mu.Unlock()
}

// Current returns a snapshot of the session record.
func (s *Store) Current() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// Loading reports whether an auth operation is in flight. Consumers must not
// render protected content while true.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Login authenticates with the API. On success the identity and both tokens
// are stored, persisted, and the access token becomes the gateway's default
// credential. On failure prior state is untouched and the server's message is
// returned.
func (s *Store) Login(ctx context.Context, creds Credentials) (*domain.Session, error) {
	if creds.EmailOrUsername == "" || creds.Password == "" {
		return nil, ErrMissingCredentials
	}
	s.setLoading(true)
	defer s.setLoading(false)

	var resp authResponse
	err := s.api.PostJSON(ctx, "/auth/login", map[string]string{
		"email_or_username": creds.EmailOrUsername,
		"password":          creds.Password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	sess := s.establish(resp)
	return &sess, nil
}

// Register creates an account. Same contract as Login; the client validates
// field shape before dispatch so malformed input never reaches the network.
func (s *Store) Register(ctx context.Context, reg Registration) (*domain.Session, error) {
	if err := validateRegistration(reg); err != nil {
		return nil, err
	}
	s.setLoading(true)
	defer s.setLoading(false)

	var resp authResponse
	err := s.api.PostJSON(ctx, "/auth/register", map[string]string{
		"name":     reg.Name,
		"email":    reg.Email,
		"username": reg.Username,
		"password": reg.Password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	sess := s.establish(resp)
	return &sess, nil
}

// Logout notifies the API best-effort (a failed call is ignored; logout always
// succeeds locally), then clears the session, the persisted record, and the
// gateway credential.
func (s *Store) Logout(ctx context.Context) {
	if s.Current().AccessToken != "" {
		_ = s.api.PostJSON(ctx, "/auth/logout", nil, nil)
	}
	s.clear(false)
}

// CheckAuth restores a persisted session at startup. With a persisted access
// token it fetches the current identity; on failure it falls back to
// RefreshAuth; if that also fails the session is logged out. Loading is true
// for the duration and false once settled.
func (s *Store) CheckAuth(ctx context.Context) {
	rec, err := s.persist.Load()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("session: load persisted record: %v", err)
		}
		return
	}
	if rec.Token == "" {
		return
	}

	s.setLoading(true)
	defer s.setLoading(false)

	restored := rec.Session()
	restored.IsAuthenticated = false // not until the identity check accepts the token
	s.mu.Lock()
	s.sess = restored
	s.mu.Unlock()
	s.api.SetToken(rec.Token)

	// A token past its exp claim cannot pass /auth/me; go straight to refresh.
	if tokenExpired(rec.Token, time.Now()) {
		if !s.RefreshAuth(ctx) {
			return
		}
		s.notify()
		return
	}

	var resp struct {
		User *domain.User `json:"user"`
	}
	if err := s.api.GetJSON(ctx, "/auth/me", nil, &resp); err != nil || resp.User == nil {
		if !s.RefreshAuth(ctx) {
			return
		}
		s.notify()
		return
	}

	s.mu.Lock()
	s.sess.User = resp.User
	s.sess.IsAuthenticated = true
	s.cleared = false
	s.mu.Unlock()
	s.save()
	s.notify()
}

// RefreshAuth exchanges the refresh token for a new access token. Exactly one
// attempt; on failure the session is logged out and false is returned.
func (s *Store) RefreshAuth(ctx context.Context) bool {
	refresh := s.Current().RefreshToken
	if refresh == "" {
		s.Logout(ctx)
		return false
	}

	var resp authResponse
	err := s.api.PostJSON(ctx, "/auth/refresh", map[string]string{
		"refresh_token": refresh,
	}, &resp)
	if err != nil || resp.AccessToken == "" {
		s.Logout(ctx)
		return false
	}

	s.mu.Lock()
	s.sess.AccessToken = resp.AccessToken
	if resp.User != nil {
		s.sess.User = resp.User
	}
	s.sess.IsAuthenticated = true
	s.cleared = false
	s.mu.Unlock()
	s.api.SetToken(resp.AccessToken)
	s.save()
	s.notify()
	return true
}

// UpdateUser shallow-merges profile fields into the stored identity and
// persists the record. Tokens are untouched.
func (s *Store) UpdateUser(patch domain.UserPatch) {
	s.mu.Lock()
	s.sess = s.sess.Apply(patch)
	s.mu.Unlock()
	s.save()
	s.notify()
}

// ChangePassword asks the API to change the password. Session state is
// unchanged; the server keeps existing tokens valid.
func (s *Store) ChangePassword(ctx context.Context, current, updated string) error {
	if current == "" || updated == "" {
		return ErrMissingCredentials
	}
	return s.api.PostJSON(ctx, "/auth/change-password", map[string]string{
		"current_password": current,
		"new_password":     updated,
	}, nil)
}

// HandleUnauthorized is the gateway's 401 hook: an unconditional transition to
// the unauthenticated state plus the sign-out redirect. Persisted state is
// cleared exactly once per authenticated epoch no matter how many in-flight
// requests observe the 401.
func (s *Store) HandleUnauthorized() {
	s.mu.Lock()
	if s.cleared {
		s.mu.Unlock()
		return
	}
	s.cleared = true
	s.mu.Unlock()
	s.clear(true)
}

// establish installs a fresh authenticated session from an auth response.
func (s *Store) establish(resp authResponse) domain.Session {
	sess := domain.Session{
		User:            resp.User,
		AccessToken:     resp.AccessToken,
		RefreshToken:    resp.RefreshToken,
		IsAuthenticated: resp.AccessToken != "",
	}
	s.mu.Lock()
	s.sess = sess
	s.cleared = !sess.IsAuthenticated
	s.mu.Unlock()
	s.api.SetToken(resp.AccessToken)
	s.save()
	s.notify()
	return sess
}

// clear resets to the anonymous state, removes the persisted record, and
// drops the gateway credential. redirect additionally fires the sign-out hook.
func (s *Store) clear(redirect bool) {
	s.mu.Lock()
	s.sess = domain.Anonymous()
	s.cleared = true
	signedOut := s.onSignedOut
	s.mu.Unlock()

	if err := s.persist.Clear(); err != nil {
		log.Printf("session: clear persisted record: %v", err)
	}
	s.api.SetToken("")
	s.notify()
	if redirect && signedOut != nil {
		signedOut()
	}
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Store) save() {
	s.mu.Lock()
	rec := storage.FromSession(s.sess)
	s.mu.Unlock()
	if err := s.persist.Save(rec); err != nil {
		log.Printf("session: persist record: %v", err)
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	sess := s.sess
	s.mu.Unlock()
	if fn != nil {
		fn(sess)
	}
}

// tokenExpired reads the unverified exp claim from a JWT. Signature
// verification belongs to the server; the client only needs to know whether
// presenting the token is pointless. Unparseable tokens are not treated as
// expired so the server stays authoritative.
func tokenExpired(token string, now time.Time) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

func validateRegistration(reg Registration) error {
	if reg.Name == "" || reg.Email == "" || reg.Username == "" || reg.Password == "" {
		return ErrMissingFields
	}
	if !emailRe.MatchString(reg.Email) {
		return ErrInvalidEmail
	}
	if !usernameRe.MatchString(reg.Username) {
		return ErrInvalidUsername
	}
	return validatePassword(reg.Password)
}

// validatePassword mirrors the server's policy so weak passwords are caught
// before dispatch: at least 8 characters with upper, lower, and a digit.
func validatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		}
	}
	if !hasUpper || !hasLower || !hasNumber {
		return ErrWeakPassword
	}
	return nil
}
