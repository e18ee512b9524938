// Package domain defines user-facing shapes beyond the session identity:
// notifications delivered by the forum API.
package domain

// Notification is an activity item for the authenticated user. Data carries
// type-specific references such as the post that was liked.
type Notification struct {
	ID        int            `json:"id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt string         `json:"created_at"`
}
