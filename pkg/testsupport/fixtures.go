package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-feed-cache/feed"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// PostFixture is the on-disk shape of a post. Offsets keep fixtures
// independent of the wall clock.
type PostFixture struct {
	ID           string        `json:"id"`
	AuthorID     string        `json:"author_id"`
	MinutesAgo   int           `json:"minutes_ago"`
	Content      string        `json:"content"`
	Kind         feed.PostKind `json:"kind"`
	MediaURLs    []string      `json:"media_urls"`
	LikeCount    int           `json:"like_count"`
	CommentCount int           `json:"comment_count"`
}

// FeedFixture groups posts, follow edges and likes for a scenario.
type FeedFixture struct {
	Posts   []PostFixture       `json:"posts"`
	Follows map[string][]string `json:"follows"`
	Likes   map[string][]string `json:"likes"`
}

// LoadFeedFixture reads a FeedFixture and resolves post timestamps against
// now.
func LoadFeedFixture(t *testing.T, path string, now time.Time) ([]feed.Post, FeedFixture) {
	t.Helper()

	var fx FeedFixture
	LoadFixtureJSON(t, path, &fx)

	posts := make([]feed.Post, 0, len(fx.Posts))
	for _, p := range fx.Posts {
		kind := p.Kind
		if kind == "" {
			kind = feed.KindText
		}
		posts = append(posts, feed.Post{
			ID:           p.ID,
			AuthorID:     p.AuthorID,
			CreatedAt:    now.Add(-time.Duration(p.MinutesAgo) * time.Minute),
			Content:      p.Content,
			Kind:         kind,
			MediaURLs:    p.MediaURLs,
			LikeCount:    p.LikeCount,
			CommentCount: p.CommentCount,
		})
	}
	return posts, fx
}

// Seed loads a FeedFixture into store.
func (fx FeedFixture) Seed(store *FakeStore, posts []feed.Post) {
	store.AddPosts(posts...)
	for follower, followees := range fx.Follows {
		for _, followee := range followees {
			store.Follow(follower, followee)
		}
	}
	for viewer, postIDs := range fx.Likes {
		for _, postID := range postIDs {
			store.Like(postID, viewer)
		}
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
