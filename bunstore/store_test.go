package bunstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-feed-cache/feed"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func postID(n int) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := CreateSchema(context.Background(), db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return New(db, WithNow(func() time.Time { return t0 }))
}

func seedPosts(t *testing.T, s *Store, posts ...feed.Post) {
	t.Helper()
	for _, p := range posts {
		if _, err := s.CreatePost(context.Background(), p); err != nil {
			t.Fatalf("failed to create post %s: %v", p.ID, err)
		}
	}
}

func textPost(n int, author string, minutesAgo int) feed.Post {
	return feed.Post{
		ID:        postID(n),
		AuthorID:  author,
		Kind:      feed.KindText,
		Content:   fmt.Sprintf("post %d", n),
		CreatedAt: t0.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func ids(posts []feed.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("oracle", "dsn"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestStore_QueryPostsOrdering(t *testing.T) {
	s := newTestStore(t)
	seedPosts(t, s,
		textPost(1, "a", 30),
		textPost(2, "b", 10),
		textPost(3, "a", 10),
		textPost(4, "c", 5),
	)

	got, err := s.QueryPosts(context.Background(), feed.PostQuery{AuthorIDs: []string{"a", "b"}, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{postID(3), postID(2), postID(1)}
	if fmt.Sprint(ids(got)) != fmt.Sprint(want) {
		t.Errorf("expected %v but got: %v", want, ids(got))
	}
	if !feed.IsOrdered(got) {
		t.Error("expected feed order")
	}
}

func TestStore_QueryPostsBeforeAndLimit(t *testing.T) {
	s := newTestStore(t)
	seedPosts(t, s,
		textPost(1, "a", 40),
		textPost(2, "a", 30),
		textPost(3, "a", 20),
		textPost(4, "a", 10),
	)

	got, err := s.QueryPosts(context.Background(), feed.PostQuery{
		AuthorIDs: []string{"a"},
		Before:    t0.Add(-20 * time.Minute),
		Limit:     1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != postID(2) {
		t.Errorf("expected only %s, got %v", postID(2), ids(got))
	}
}

func TestStore_BroadScan(t *testing.T) {
	s := newTestStore(t)
	seedPosts(t, s, textPost(1, "a", 3), textPost(2, "z", 2), textPost(3, "q", 1))

	got, err := s.QueryPosts(context.Background(), feed.PostQuery{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != postID(3) || got[1].ID != postID(2) {
		t.Errorf("expected two newest posts, got %v", ids(got))
	}
}

func TestStore_MembershipLimit(t *testing.T) {
	s := newTestStore(t)
	authors := make([]string, DefaultMaxMembership+1)
	for i := range authors {
		authors[i] = fmt.Sprintf("u%d", i)
	}

	_, err := s.QueryPosts(context.Background(), feed.PostQuery{AuthorIDs: authors})
	if !errors.Is(err, feed.ErrMembershipTooLarge) {
		t.Errorf("expected ErrMembershipTooLarge but got: %v", err)
	}
}

func TestStore_SkipsUndecodableRows(t *testing.T) {
	s := newTestStore(t)
	seedPosts(t, s, textPost(1, "a", 2))

	bad := &PostRecord{
		AuthorID:  "a",
		Kind:      "poll",
		CreatedAt: t0.Add(-time.Minute),
	}
	bad.ID = uuid.MustParse(postID(2))
	if _, err := s.DB().NewInsert().Model(bad).Exec(context.Background()); err != nil {
		t.Fatalf("failed to insert raw row: %v", err)
	}

	got, err := s.QueryPosts(context.Background(), feed.PostQuery{AuthorIDs: []string{"a"}, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != postID(1) {
		t.Errorf("expected bad row skipped, got %v", ids(got))
	}
}

func TestStore_MediaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	p := textPost(1, "a", 1)
	p.Kind = feed.KindImage
	p.MediaURLs = []string{"https://cdn.example/1.png", "https://cdn.example/2.png"}
	seedPosts(t, s, p)

	got, err := s.QueryPosts(context.Background(), feed.PostQuery{AuthorIDs: []string{"a"}, Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || len(got[0].MediaURLs) != 2 || got[0].MediaURLs[1] != p.MediaURLs[1] {
		t.Errorf("expected media urls to survive, got %+v", got)
	}
}

func TestStore_CreatePostAssignsDefaults(t *testing.T) {
	s := newTestStore(t)

	created, err := s.CreatePost(context.Background(), feed.Post{AuthorID: "a", Kind: feed.KindNote})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated id")
	}
	if !created.CreatedAt.Equal(t0) {
		t.Errorf("expected created_at %v but got: %v", t0, created.CreatedAt)
	}

	if _, err := s.CreatePost(context.Background(), feed.Post{ID: "not-a-uuid", AuthorID: "a"}); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestStore_FollowLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Follow(ctx, "v", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Follow(ctx, "v", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Follow(ctx, "v", "a"); !errors.Is(err, feed.ErrAlreadyFollowing) {
		t.Errorf("expected ErrAlreadyFollowing but got: %v", err)
	}
	if err := s.Follow(ctx, "v", "v"); !errors.Is(err, feed.ErrSelfFollow) {
		t.Errorf("expected ErrSelfFollow but got: %v", err)
	}

	got, err := s.Followees(ctx, "v")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(got) != "[a b]" {
		t.Errorf("expected [a b] but got: %v", got)
	}

	if err := s.Unfollow(ctx, "v", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Unfollow(ctx, "v", "a"); !errors.Is(err, feed.ErrNotFollowing) {
		t.Errorf("expected ErrNotFollowing but got: %v", err)
	}
	got, _ = s.Followees(ctx, "v")
	if fmt.Sprint(got) != "[b]" {
		t.Errorf("expected [b] but got: %v", got)
	}
}

func TestStore_Likes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPosts(t, s, textPost(1, "a", 2), textPost(2, "a", 1))

	liked, err := s.Like(ctx, postID(1), "v")
	if err != nil || !liked {
		t.Fatalf("expected like to be recorded, got %v, %v", liked, err)
	}
	if liked, _ := s.Like(ctx, postID(1), "v"); liked {
		t.Error("expected duplicate like to be a no-op")
	}

	exists, err := s.LikeExists(ctx, postID(1), "v")
	if err != nil || !exists {
		t.Errorf("expected like to exist, got %v, %v", exists, err)
	}
	exists, _ = s.LikeExists(ctx, postID(2), "v")
	if exists {
		t.Error("expected no like on second post")
	}

	batch, err := s.LikedPostIDs(ctx, "v", []string{postID(1), postID(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !batch[postID(1)] || batch[postID(2)] {
		t.Errorf("unexpected batch result: %v", batch)
	}

	posts, _ := s.QueryPosts(ctx, feed.PostQuery{AuthorIDs: []string{"a"}, Limit: 10})
	for _, p := range posts {
		if p.ID == postID(1) && p.LikeCount != 1 {
			t.Errorf("expected like_count 1 but got: %d", p.LikeCount)
		}
	}

	unliked, err := s.Unlike(ctx, postID(1), "v")
	if err != nil || !unliked {
		t.Fatalf("expected unlike, got %v, %v", unliked, err)
	}
	posts, _ = s.QueryPosts(ctx, feed.PostQuery{AuthorIDs: []string{"a"}, Limit: 10})
	for _, p := range posts {
		if p.LikeCount != 0 {
			t.Errorf("expected like_count 0 on %s but got: %d", p.ID, p.LikeCount)
		}
	}

	if _, err := s.Like(ctx, postID(1), ""); !errors.Is(err, feed.ErrViewerRequired) {
		t.Errorf("expected ErrViewerRequired but got: %v", err)
	}
}
