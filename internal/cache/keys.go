// Package cache holds schedule-state key helpers and the Postgres cache backend.
package cache

import "strings"

// Schedule actions.
const (
	ActionPost = "post"
	ActionTag  = "tag"
)

// LastRun is the value stored under an action's last-run key.
type LastRun struct {
	ID         string `json:"id,omitempty"`
	Timestamp  int64  `json:"timestamp"` // unix milliseconds
	TaggedUser string `json:"taggedUser,omitempty"`
}

// LastRunKey returns the cache key of an action's last-run state for a
// channel account, e.g. feed/nova/lastPost.
func LastRunKey(channel, account, action string) string {
	suffix := "lastPost"
	if action == ActionTag {
		suffix = "lastTagged"
	}
	return strings.Join([]string{channel, account, suffix}, "/")
}

// PostKey returns the cache key of a sent post, e.g. feed/nova/post/123.
func PostKey(channel, account, postID string) string {
	return strings.Join([]string{channel, account, "post", postID}, "/")
}
