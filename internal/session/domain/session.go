// Package domain defines the client-held session record and the user identity it carries.
package domain

// User is the server's user shape as returned by /auth and /users endpoints.
type User struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	Bio            string `json:"bio,omitempty"`
	Location       string `json:"location,omitempty"`
	Website        string `json:"website,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	BannerURL      string `json:"banner_url,omitempty"`
	IsPrivate      bool   `json:"is_private,omitempty"`
	IsFollowing    bool   `json:"is_following,omitempty"`
	IsFollowedBy   bool   `json:"is_followed_by,omitempty"`
	FollowersCount int    `json:"followers_count,omitempty"`
	FollowingCount int    `json:"following_count,omitempty"`
	PostsCount     int    `json:"posts_count,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// UserPatch holds optional profile fields for a shallow merge into the stored identity.
// Nil fields are left untouched.
type UserPatch struct {
	Name      *string
	Bio       *string
	Location  *string
	Website   *string
	AvatarURL *string
	BannerURL *string
	IsPrivate *bool
}

// Session is the client-held record of the authenticated identity and credentials.
// Invariant: IsAuthenticated is true iff AccessToken is non-empty and the last
// identity check accepted it. The session store is the only writer.
type Session struct {
	User            *User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
}

// Anonymous returns the unauthenticated zero session.
func Anonymous() Session {
	return Session{}
}

// Valid reports whether the record satisfies the session invariant
// (an authenticated session must carry an access token and a user).
func (s Session) Valid() bool {
	if !s.IsAuthenticated {
		return true
	}
	return s.AccessToken != "" && s.User != nil
}

// Apply shallow-merges the patch into the user identity and returns the updated
// session. Tokens and the authenticated flag are untouched. No-op when User is nil.
func (s Session) Apply(p UserPatch) Session {
	if s.User == nil {
		return s
	}
	u := *s.User
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Location != nil {
		u.Location = *p.Location
	}
	if p.Website != nil {
		u.Website = *p.Website
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.BannerURL != nil {
		u.BannerURL = *p.BannerURL
	}
	if p.IsPrivate != nil {
		u.IsPrivate = *p.IsPrivate
	}
	s.User = &u
	return s
}
