package feed

import (
	"context"
	"time"
)

// PostQuery is the only query shape the remote store supports: an optional
// membership test on author, an optional exclusive upper bound on
// CreatedAt, newest first, capped by Limit.
type PostQuery struct {
	// AuthorIDs restricts results to these authors. Empty means all authors.
	AuthorIDs []string
	// Before excludes posts created at or after it. Zero means no bound.
	Before time.Time
	Limit  int
}

// Broad reports whether the query scans all authors.
func (q PostQuery) Broad() bool {
	return len(q.AuthorIDs) == 0
}

// PostStore returns pages of posts ordered by CreatedAt descending, ID
// descending.
type PostStore interface {
	QueryPosts(ctx context.Context, q PostQuery) ([]Post, error)
}

// LikeStore checks for a like record keyed by (postID, viewerID).
type LikeStore interface {
	LikeExists(ctx context.Context, postID, viewerID string) (bool, error)
}

// LikeBatchStore is an optional capability: check many posts in one call.
// The returned map only needs entries for liked posts.
type LikeBatchStore interface {
	LikedPostIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]bool, error)
}

// FollowStore lists the users a follower follows.
type FollowStore interface {
	Followees(ctx context.Context, followerID string) ([]string, error)
}

// Store is the full remote store the engine consumes.
type Store interface {
	PostStore
	LikeStore
	FollowStore
}

// Clock abstracts time for TTL decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
