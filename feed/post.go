package feed

import (
	"sort"
	"time"
)

// PostKind identifies the payload carried by a post.
type PostKind string

const (
	KindText        PostKind = "text"
	KindImage       PostKind = "image"
	KindHandHistory PostKind = "hand_history"
	KindNote        PostKind = "note"
)

// Valid reports whether k is one of the known post kinds.
func (k PostKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindHandHistory, KindNote:
		return true
	}
	return false
}

// Post is a single feed item. Everything except the counters is immutable
// once the store assigns ID and CreatedAt.
//
// LikedByViewer is scoped to the viewer the post was fetched for. It is never
// written to a persisted snapshot.
type Post struct {
	ID           string    `json:"id" msgpack:"id"`
	AuthorID     string    `json:"author_id" msgpack:"author_id"`
	CreatedAt    time.Time `json:"created_at" msgpack:"created_at"`
	Content      string    `json:"content" msgpack:"content"`
	Kind         PostKind  `json:"kind" msgpack:"kind"`
	MediaURLs    []string  `json:"media_urls,omitempty" msgpack:"media_urls,omitempty"`
	LikeCount    int       `json:"like_count" msgpack:"like_count"`
	CommentCount int       `json:"comment_count" msgpack:"comment_count"`

	LikedByViewer bool `json:"liked_by_viewer" msgpack:"-"`
}

// Before reports whether a sorts ahead of b in feed order: newest first,
// ties broken by descending ID.
func Before(a, b Post) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// SortPosts orders posts in place using Before.
func SortPosts(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return Before(posts[i], posts[j])
	})
}

// IsOrdered reports whether posts are strictly in feed order with no
// repeated IDs.
func IsOrdered(posts []Post) bool {
	seen := make(map[string]struct{}, len(posts))
	for i, p := range posts {
		if _, dup := seen[p.ID]; dup {
			return false
		}
		seen[p.ID] = struct{}{}
		if i > 0 && !Before(posts[i-1], p) {
			return false
		}
	}
	return true
}

// Cursor returns the CreatedAt of the oldest displayed post, the exclusive
// upper bound for the next page. ok is false for an empty list.
func Cursor(displayed []Post) (cursor time.Time, ok bool) {
	if len(displayed) == 0 {
		return time.Time{}, false
	}
	return displayed[len(displayed)-1].CreatedAt, true
}

// ClonePosts returns a copy of posts that shares no slice memory with the
// original.
func ClonePosts(posts []Post) []Post {
	if posts == nil {
		return nil
	}
	out := make([]Post, len(posts))
	for i, p := range posts {
		if p.MediaURLs != nil {
			p.MediaURLs = append([]string(nil), p.MediaURLs...)
		}
		out[i] = p
	}
	return out
}

// Entry is the cached result of a full feed fetch. FetchedAt records when
// the base fetch completed; pagination appends to Posts without moving it.
type Entry struct {
	Posts     []Post
	FetchedAt time.Time
}

// Age returns how long ago the entry was fetched relative to now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Leading returns the newest post in the entry.
func (e Entry) Leading() (Post, bool) {
	if len(e.Posts) == 0 {
		return Post{}, false
	}
	return e.Posts[0], true
}
