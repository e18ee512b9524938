// Package service exposes post reads and writes. Reads go through the shared
// cache; writes hit the API directly and invalidate the affected keys so the
// next read reflects server truth instead of a locally patched guess.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"unicode/utf8"

	"aray-forum/client/internal/cache"
	"aray-forum/client/internal/posts/domain"
)

// Validation errors returned before any request is dispatched.
var (
	ErrEmptyPost       = errors.New("post needs content or media")
	ErrPostTooLong     = fmt.Errorf("post content exceeds %d characters", domain.MaxContentLength)
	ErrEmptyComment    = errors.New("comment content is required")
	ErrInvalidFeedType = errors.New("feed type must be timeline, explore, or user")
	ErrEmptyQuery      = errors.New("search query is required")
)

// forumAPI is the gateway surface the post service depends on.
type forumAPI interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// FeedQuery selects a feed variant. UserID is only meaningful for FeedUser.
type FeedQuery struct {
	Type   domain.FeedType
	UserID int
}

func (q FeedQuery) key() cache.Key {
	parts := []string{"posts", "type=" + string(q.Type)}
	if q.Type == domain.FeedUser {
		parts = append(parts, "user="+strconv.Itoa(q.UserID))
	}
	return cache.NewKey(parts...)
}

type listResponse struct {
	Posts      []domain.Post     `json:"posts"`
	Pagination domain.Pagination `json:"pagination"`
}

type commentsResponse struct {
	Comments   []domain.Comment  `json:"comments"`
	Pagination domain.Pagination `json:"pagination"`
}

// Service reads and mutates posts. Safe for concurrent use.
type Service struct {
	api     forumAPI
	cache   *cache.Cache
	perPage int

	mu    sync.Mutex
	feeds map[string]*cache.Feed[domain.Post]
}

// New returns a Service fetching perPage posts per feed page.
func New(api forumAPI, c *cache.Cache, perPage int) *Service {
	return &Service{
		api:     api,
		cache:   c,
		perPage: perPage,
		feeds:   map[string]*cache.Feed[domain.Post]{},
	}
}

func (s *Service) feed(q FeedQuery) *cache.Feed[domain.Post] {
	k := q.key().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.feeds[k]
	if f == nil {
		f = cache.NewFeed[domain.Post]()
		s.feeds[k] = f
	}
	return f
}

// Feed returns the accumulated pages for the query, fetching page 1 first if
// nothing is loaded yet. Items stay in fetch order.
func (s *Service) Feed(ctx context.Context, q FeedQuery) ([]domain.Post, bool, error) {
	if !q.Type.Valid() {
		return nil, false, ErrInvalidFeedType
	}
	f := s.feed(q)
	if !f.Loaded() {
		if err := s.loadPage(ctx, q, f); err != nil {
			return nil, false, err
		}
	}
	items, hasNext, _ := f.Snapshot()
	return items, hasNext, nil
}

// LoadMore fetches the next page for the query and appends it. A no-op when
// the server reported no further pages.
func (s *Service) LoadMore(ctx context.Context, q FeedQuery) ([]domain.Post, bool, error) {
	if !q.Type.Valid() {
		return nil, false, ErrInvalidFeedType
	}
	f := s.feed(q)
	if f.HasNext() {
		if err := s.loadPage(ctx, q, f); err != nil {
			return nil, false, err
		}
	}
	items, hasNext, _ := f.Snapshot()
	return items, hasNext, nil
}

// ResetFeed empties the accumulated pages for the query; the next Feed call
// starts over at page 1. A page still in flight for the old generation is
// dropped when it lands.
func (s *Service) ResetFeed(q FeedQuery) {
	s.feed(q).Reset()
	s.cache.Invalidate(q.key())
}

// loadPage fetches the feed's next page through the coalescing cache and
// appends it. The cache key carries the page number so each page is its own
// coalescing unit; the feed's epoch decides whether the result still applies.
func (s *Service) loadPage(ctx context.Context, q FeedQuery, f *cache.Feed[domain.Post]) error {
	page, epoch := f.NextPage()

	key := append(q.key(), "page="+strconv.Itoa(page))
	resp, err := cache.GetAs(ctx, s.cache, key, func(ctx context.Context) (listResponse, error) {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(s.perPage))
		query.Set("type", string(q.Type))
		if q.Type == domain.FeedUser {
			query.Set("user_id", strconv.Itoa(q.UserID))
		}
		var out listResponse
		if err := s.api.GetJSON(ctx, "/posts", query, &out); err != nil {
			return listResponse{}, err
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	f.Append(epoch, page, resp.Posts, resp.Pagination.HasNext)
	return nil
}

// Get returns a single post, cached.
func (s *Service) Get(ctx context.Context, id int) (*domain.Post, error) {
	return cache.GetAs(ctx, s.cache, postKey(id), func(ctx context.Context) (*domain.Post, error) {
		var resp struct {
			Post *domain.Post `json:"post"`
		}
		if err := s.api.GetJSON(ctx, "/posts/"+strconv.Itoa(id), nil, &resp); err != nil {
			return nil, err
		}
		return resp.Post, nil
	})
}

// Create publishes a post. Content length is validated before dispatch; a
// post may be media-only. On success every feed is invalidated so the new
// post shows up on the next read.
func (s *Service) Create(ctx context.Context, content, mediaURL, mediaType string) (*domain.Post, error) {
	if content == "" && mediaURL == "" {
		return nil, ErrEmptyPost
	}
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return nil, ErrPostTooLong
	}
	body := map[string]any{"content": content}
	if mediaURL != "" {
		body["media_url"] = mediaURL
		body["media_type"] = mediaType
	}
	var resp struct {
		Post *domain.Post `json:"post"`
	}
	if err := s.api.PostJSON(ctx, "/posts", body, &resp); err != nil {
		return nil, err
	}
	s.invalidateFeeds()
	return resp.Post, nil
}

// Delete removes an own post and invalidates the feeds and the post entry.
func (s *Service) Delete(ctx context.Context, id int) error {
	if err := s.api.Delete(ctx, "/posts/"+strconv.Itoa(id), nil); err != nil {
		return err
	}
	s.invalidateFeeds()
	s.cache.Invalidate(postKey(id))
	return nil
}

// Like marks a post liked. The cached post is not patched; the keys are
// invalidated and the next read carries the server's counters.
func (s *Service) Like(ctx context.Context, id int) error {
	return s.react(ctx, id, "like")
}

// Unlike removes a like.
func (s *Service) Unlike(ctx context.Context, id int) error {
	return s.react(ctx, id, "unlike")
}

// Repost shares a post onto the caller's own feed.
func (s *Service) Repost(ctx context.Context, id int) error {
	return s.react(ctx, id, "repost")
}

// Unrepost removes a repost.
func (s *Service) Unrepost(ctx context.Context, id int) error {
	return s.react(ctx, id, "unrepost")
}

func (s *Service) react(ctx context.Context, id int, action string) error {
	path := fmt.Sprintf("/posts/%d/%s", id, action)
	if err := s.api.PostJSON(ctx, path, nil, nil); err != nil {
		return err
	}
	s.invalidateFeeds()
	s.cache.Invalidate(postKey(id))
	return nil
}

// Comments returns one page of a post's comments, cached per page.
func (s *Service) Comments(ctx context.Context, postID, page int) ([]domain.Comment, domain.Pagination, error) {
	key := cache.NewKey("post-comments", strconv.Itoa(postID), "page="+strconv.Itoa(page))
	resp, err := cache.GetAs(ctx, s.cache, key, func(ctx context.Context) (commentsResponse, error) {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		var out commentsResponse
		path := fmt.Sprintf("/posts/%d/comments", postID)
		if err := s.api.GetJSON(ctx, path, query, &out); err != nil {
			return commentsResponse{}, err
		}
		return out, nil
	})
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return resp.Comments, resp.Pagination, nil
}

// CreateComment replies to a post and invalidates its comment pages and the
// post entry (the comment counter changed server-side).
func (s *Service) CreateComment(ctx context.Context, postID int, content string) (*domain.Comment, error) {
	if content == "" {
		return nil, ErrEmptyComment
	}
	var resp struct {
		Comment *domain.Comment `json:"comment"`
	}
	path := fmt.Sprintf("/posts/%d/comments", postID)
	if err := s.api.PostJSON(ctx, path, map[string]string{"content": content}, &resp); err != nil {
		return nil, err
	}
	s.cache.Invalidate(cache.NewKey("post-comments", strconv.Itoa(postID)))
	s.cache.Invalidate(postKey(postID))
	return resp.Comment, nil
}

// Search returns posts matching q, cached per query and page.
func (s *Service) Search(ctx context.Context, q string, page int) ([]domain.Post, domain.Pagination, error) {
	if q == "" {
		return nil, domain.Pagination{}, ErrEmptyQuery
	}
	key := cache.NewKey("search-posts", "q="+q, "page="+strconv.Itoa(page))
	resp, err := cache.GetAs(ctx, s.cache, key, func(ctx context.Context) (listResponse, error) {
		query := url.Values{}
		query.Set("q", q)
		query.Set("page", strconv.Itoa(page))
		var out listResponse
		if err := s.api.GetJSON(ctx, "/posts/search", query, &out); err != nil {
			return listResponse{}, err
		}
		return out, nil
	})
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return resp.Posts, resp.Pagination, nil
}

// invalidateFeeds marks every feed page entry and resets the accumulated
// feeds so the next read starts from a fresh page 1.
func (s *Service) invalidateFeeds() {
	s.cache.Invalidate(cache.NewKey("posts"))
	s.mu.Lock()
	feeds := make([]*cache.Feed[domain.Post], 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, f)
	}
	s.mu.Unlock()
	for _, f := range feeds {
		f.Reset()
	}
}

func postKey(id int) cache.Key {
	return cache.NewKey("post", strconv.Itoa(id))
}
