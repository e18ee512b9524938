package cache

import "strings"

// Key is the composite identifier of a cached read: resource type followed by
// its parameters, e.g. ("posts", "type=timeline", "per_page=10").
// Invalidation matches by prefix, so ("posts") covers every feed variant.
type Key []string

// NewKey builds a key from its parts.
func NewKey(parts ...string) Key {
	return Key(parts)
}

// String renders the canonical form used for map lookup and coalescing.
func (k Key) String() string {
	return strings.Join([]string(k), "|")
}

// HasPrefix reports whether k starts with all parts of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, p := range prefix {
		if k[i] != p {
			return false
		}
	}
	return true
}
