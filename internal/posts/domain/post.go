// Package domain defines the post, comment, and pagination shapes exchanged
// with the forum API.
package domain

import (
	"aray-forum/client/internal/session/domain"
)

// MaxContentLength is the server's post length limit, enforced client-side
// before dispatch.
const MaxContentLength = 280

// FeedType selects which feed a listing reads from.
type FeedType string

// Feed variants accepted by GET /posts.
const (
	FeedTimeline FeedType = "timeline"
	FeedExplore  FeedType = "explore"
	FeedUser     FeedType = "user"
)

// Valid reports whether t is one of the known feed types.
func (t FeedType) Valid() bool {
	switch t {
	case FeedTimeline, FeedExplore, FeedUser:
		return true
	}
	return false
}

// Post is a forum post as returned by the API. Counters and the is_* flags
// are server-computed relative to the authenticated user.
type Post struct {
	ID           int          `json:"id"`
	Content      string       `json:"content"`
	MediaURL     string       `json:"media_url,omitempty"`
	MediaType    string       `json:"media_type,omitempty"`
	User         *domain.User `json:"user"`
	LikeCount    int          `json:"like_count"`
	RepostCount  int          `json:"repost_count"`
	CommentCount int          `json:"comment_count"`
	IsLiked      bool         `json:"is_liked"`
	IsReposted   bool         `json:"is_reposted"`
	IsRepost     bool         `json:"is_repost"`
	OriginalPost *Post        `json:"original_post,omitempty"`
	CreatedAt    string       `json:"created_at"`
}

// Comment is a reply attached to a post.
type Comment struct {
	ID        int          `json:"id"`
	Content   string       `json:"content"`
	User      *domain.User `json:"user"`
	PostID    int          `json:"post_id"`
	CreatedAt string       `json:"created_at"`
}

// Pagination is the server's page envelope for any listed resource.
type Pagination struct {
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}
