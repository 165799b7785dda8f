package cache

import (
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-feed-cache/feed"
)

// ErrSnapshotNotFound is returned by SnapshotStore.Load for a missing or
// expired key.
var ErrSnapshotNotFound = errors.New("cache: snapshot not found")

// SnapshotStore persists opaque blobs across process restarts.
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type postsSnapshot struct {
	Posts     []feed.Post `msgpack:"posts"`
	Timestamp time.Time   `msgpack:"timestamp"`
}

type followingSnapshot struct {
	UserIDs   []string  `msgpack:"user_ids"`
	Timestamp time.Time `msgpack:"timestamp"`
}

func encodePosts(entry feed.Entry, max int) ([]byte, error) {
	posts := entry.Posts
	if max > 0 && len(posts) > max {
		posts = posts[:max]
	}
	return msgpack.Marshal(postsSnapshot{Posts: posts, Timestamp: entry.FetchedAt})
}

func decodePosts(data []byte) (feed.Entry, error) {
	var snap postsSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return feed.Entry{}, err
	}
	if snap.Timestamp.IsZero() {
		return feed.Entry{}, errors.New("snapshot has no timestamp")
	}
	posts := make([]feed.Post, 0, len(snap.Posts))
	for _, p := range snap.Posts {
		if feed.CheckPost(p) != nil {
			continue
		}
		posts = append(posts, p)
	}
	feed.SortPosts(posts)
	return feed.Entry{Posts: posts, FetchedAt: snap.Timestamp}, nil
}

func encodeFollowing(set feed.FollowingSet) ([]byte, error) {
	return msgpack.Marshal(followingSnapshot{UserIDs: set.UserIDs, Timestamp: set.CachedAt})
}

func decodeFollowing(viewerID string, data []byte) (feed.FollowingSet, error) {
	var snap followingSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return feed.FollowingSet{}, err
	}
	if snap.Timestamp.IsZero() {
		return feed.FollowingSet{}, errors.New("snapshot has no timestamp")
	}
	return feed.NewFollowingSet(viewerID, snap.UserIDs, snap.Timestamp), nil
}
