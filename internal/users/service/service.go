// Package service exposes user profiles, the social graph, and notifications.
// Profile reads are cached; follow and profile mutations invalidate every key
// whose data they could have changed.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"aray-forum/client/internal/cache"
	postdomain "aray-forum/client/internal/posts/domain"
	sessiondomain "aray-forum/client/internal/session/domain"
	"aray-forum/client/internal/users/domain"
)

// ErrEmptyQuery is returned when a user search has no query string.
var ErrEmptyQuery = errors.New("search query is required")

// forumAPI is the gateway surface the user service depends on.
type forumAPI interface {
	GetJSON(ctx context.Context, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, path string, body, out any) error
	PutJSON(ctx context.Context, path string, body, out any) error
}

// identityStore is the session store surface for merging profile updates.
type identityStore interface {
	Current() sessiondomain.Session
	UpdateUser(patch sessiondomain.UserPatch)
}

type userListResponse struct {
	Users      []sessiondomain.User  `json:"users"`
	Followers  []sessiondomain.User  `json:"followers"`
	Following  []sessiondomain.User  `json:"following"`
	Pagination postdomain.Pagination `json:"pagination"`
}

type notificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    postdomain.Pagination `json:"pagination"`
}

// Service reads and mutates user data. Safe for concurrent use.
type Service struct {
	api     forumAPI
	cache   *cache.Cache
	session identityStore
	perPage int
}

// New returns a Service listing perPage users per page.
func New(api forumAPI, c *cache.Cache, session identityStore, perPage int) *Service {
	return &Service{api: api, cache: c, session: session, perPage: perPage}
}

// Get returns a profile by numeric ID or username, cached.
func (s *Service) Get(ctx context.Context, idOrUsername string) (*sessiondomain.User, error) {
	key := cache.NewKey("user-profile", idOrUsername)
	return cache.GetAs(ctx, s.cache, key, func(ctx context.Context) (*sessiondomain.User, error) {
		var resp struct {
			User *sessiondomain.User `json:"user"`
		}
		if err := s.api.GetJSON(ctx, "/users/"+idOrUsername, nil, &resp); err != nil {
			return nil, err
		}
		return resp.User, nil
	})
}

// UpdateMe updates the authenticated profile. The server's merged result is
// shallow-merged into the session identity and the cached profile is
// invalidated so the next read carries server truth.
func (s *Service) UpdateMe(ctx context.Context, patch sessiondomain.UserPatch) (*sessiondomain.User, error) {
	body := map[string]any{}
	if patch.Name != nil {
		body["name"] = *patch.Name
	}
	if patch.Bio != nil {
		body["bio"] = *patch.Bio
	}
	if patch.Location != nil {
		body["location"] = *patch.Location
	}
	if patch.Website != nil {
		body["website"] = *patch.Website
	}
	if patch.AvatarURL != nil {
		body["avatar_url"] = *patch.AvatarURL
	}
	if patch.BannerURL != nil {
		body["banner_url"] = *patch.BannerURL
	}
	if patch.IsPrivate != nil {
		body["is_private"] = *patch.IsPrivate
	}

	var resp struct {
		User *sessiondomain.User `json:"user"`
	}
	if err := s.api.PutJSON(ctx, "/users/me", body, &resp); err != nil {
		return nil, err
	}
	s.session.UpdateUser(patch)
	s.invalidateOwnProfile()
	return resp.User, nil
}

// Follow subscribes to a user's posts. Profiles, suggestions, and the
// timeline feed are invalidated; the next reads reflect the new relationship.
func (s *Service) Follow(ctx context.Context, userID int) error {
	return s.setFollowing(ctx, userID, "follow")
}

// Unfollow removes the subscription.
func (s *Service) Unfollow(ctx context.Context, userID int) error {
	return s.setFollowing(ctx, userID, "unfollow")
}

func (s *Service) setFollowing(ctx context.Context, userID int, action string) error {
	path := fmt.Sprintf("/users/%d/%s", userID, action)
	if err := s.api.PostJSON(ctx, path, nil, nil); err != nil {
		return err
	}
	s.cache.Invalidate(cache.NewKey("user-profile"))
	s.cache.Invalidate(cache.NewKey("suggested-users"))
	s.cache.Invalidate(cache.NewKey("posts"))
	return nil
}

// Followers returns one page of a user's followers, cached per page.
func (s *Service) Followers(ctx context.Context, userID, page int) ([]sessiondomain.User, postdomain.Pagination, error) {
	return s.listGraph(ctx, userID, page, "followers")
}

// Following returns one page of the users a user follows, cached per page.
func (s *Service) Following(ctx context.Context, userID, page int) ([]sessiondomain.User, postdomain.Pagination, error) {
	return s.listGraph(ctx, userID, page, "following")
}

func (s *Service) listGraph(ctx context.Context, userID, page int, relation string) ([]sessiondomain.User, postdomain.Pagination, error) {
	key := cache.NewKey("user-"+relation, strconv.Itoa(userID), "page="+strconv.Itoa(page))
	resp, err := cache.GetAs(ctx, s.cache, key, func(ctx context.Context) (userListResponse, error) {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(s.perPage))
		var out userListResponse
		path := fmt.Sprintf("/users/%d/%s", userID, relation)
		if err := s.api.GetJSON(ctx, path, query, &out); err != nil {
			return userListResponse{}, err
		}
		return out, nil
	})
	if err != nil {
		return nil, postdomain.Pagination{}, err
	}
	users := resp.Followers
	if relation == "following" {
		users = resp.Following
	}
	return users, resp.Pagination, nil
}

// Search returns users matching q, cached per query and page.
func (s *Service) Search(ctx context.Context, q string, page int) ([]sessiondomain.User, postdomain.Pagination, error) {
	if q == "" {
		return nil, postdomain.Pagination{}, ErrEmptyQuery
	}
	key := cache.NewKey("search-users", "q="+q, "page="+strconv.Itoa(page))
	resp, err := cache.GetAs(ctx, s.cache, key, func(ctx context.Context) (userListResponse, error) {
		query := url.Values{}
		query.Set("q", q)
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(s.perPage))
		var out userListResponse
		if err := s.api.GetJSON(ctx, "/users/search", query, &out); err != nil {
			return userListResponse{}, err
		}
		return out, nil
	})
	if err != nil {
		return nil, postdomain.Pagination{}, err
	}
	return resp.Users, resp.Pagination, nil
}

// Suggestions returns accounts the user might want to follow, cached.
func (s *Service) Suggestions(ctx context.Context) ([]sessiondomain.User, error) {
	key := cache.NewKey("suggested-users")
	return cache.GetAs(ctx, s.cache, key, func(ctx context.Context) ([]sessiondomain.User, error) {
		var resp struct {
			Suggestions []sessiondomain.User `json:"suggestions"`
		}
		if err := s.api.GetJSON(ctx, "/users/suggestions", nil, &resp); err != nil {
			return nil, err
		}
		return resp.Suggestions, nil
	})
}

// Notifications returns one page of the user's notifications, cached per page.
func (s *Service) Notifications(ctx context.Context, page int) ([]domain.Notification, postdomain.Pagination, error) {
	key := cache.NewKey("notifications", "page="+strconv.Itoa(page))
	resp, err := cache.GetAs(ctx, s.cache, key, func(ctx context.Context) (notificationsResponse, error) {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		var out notificationsResponse
		if err := s.api.GetJSON(ctx, "/users/notifications", query, &out); err != nil {
			return notificationsResponse{}, err
		}
		return out, nil
	})
	if err != nil {
		return nil, postdomain.Pagination{}, err
	}
	return resp.Notifications, resp.Pagination, nil
}

// MarkNotificationsRead marks the given notifications read; an empty list
// marks all of them. Cached notification pages are invalidated.
func (s *Service) MarkNotificationsRead(ctx context.Context, ids []int) error {
	if ids == nil {
		ids = []int{}
	}
	body := map[string]any{"notification_ids": ids}
	if err := s.api.PostJSON(ctx, "/users/notifications/mark-read", body, nil); err != nil {
		return err
	}
	s.cache.Invalidate(cache.NewKey("notifications"))
	return nil
}

// invalidateOwnProfile drops the cached profile under both lookup keys.
func (s *Service) invalidateOwnProfile() {
	sess := s.session.Current()
	if sess.User == nil {
		s.cache.Invalidate(cache.NewKey("user-profile"))
		return
	}
	s.cache.Invalidate(cache.NewKey("user-profile", strconv.Itoa(sess.User.ID)))
	s.cache.Invalidate(cache.NewKey("user-profile", sess.User.Username))
}
