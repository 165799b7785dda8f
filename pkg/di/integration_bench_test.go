package di

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-feed-cache/feed"
	"github.com/goliatone/go-feed-cache/pkg/testsupport"
)

func newFakeContainer(tb testing.TB, store *testsupport.FakeStore, clock *testsupport.FakeClock) *Container {
	tb.Helper()
	cfg := DefaultConfig()
	cfg.Log.Level = "disabled"

	container, err := NewContainer(context.Background(), cfg, WithStore(store), WithClock(clock))
	if err != nil {
		tb.Fatalf("NewContainer() failed: %v", err)
	}
	tb.Cleanup(func() { container.Close() })
	return container
}

func seedFake(store *testsupport.FakeStore, viewers, followees, postsPer int, now time.Time) {
	for v := 0; v < viewers; v++ {
		for f := 0; f < followees; f++ {
			store.Follow(fmt.Sprintf("viewer-%d", v), fmt.Sprintf("author-%d", f))
		}
	}
	for f := 0; f < followees; f++ {
		for p := 0; p < postsPer; p++ {
			store.AddPosts(feed.Post{
				ID:        fmt.Sprintf("author-%d-post-%d", f, p),
				AuthorID:  fmt.Sprintf("author-%d", f),
				Kind:      feed.KindText,
				CreatedAt: now.Add(-time.Duration(f*postsPer+p) * time.Second),
			})
		}
	}
}

func TestConcurrentFirstLoad(t *testing.T) {
	now := time.Now()
	store := testsupport.NewFakeStore()
	seedFake(store, 1, 5, 10, now)

	release := make(chan struct{})
	store.BeforeQuery = func(feed.PostQuery) { <-release }

	container := newFakeContainer(t, store, testsupport.NewFakeClock(now))
	engine := container.Engine()

	const callers = 20
	var wg sync.WaitGroup
	results := make([][]feed.Post, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := engine.Feed(context.Background(), "viewer-0")
			results[i], errs[i] = res.Posts, err
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if store.QueryCount() != 1 {
		t.Errorf("Expected concurrent first loads to share one query, got %d", store.QueryCount())
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if len(results[i]) != 20 {
			t.Errorf("caller %d: expected a full page of 20, got %d", i, len(results[i]))
		}
	}
}

func TestConcurrentViewersAndInvalidation(t *testing.T) {
	now := time.Now()
	store := testsupport.NewFakeStore()
	seedFake(store, 10, 3, 5, now)
	container := newFakeContainer(t, store, testsupport.NewFakeClock(now))
	engine := container.Engine()

	var wg sync.WaitGroup
	for v := 0; v < 10; v++ {
		viewer := fmt.Sprintf("viewer-%d", v)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				res, err := engine.Feed(context.Background(), viewer)
				if err != nil {
					t.Errorf("Feed(%s) failed: %v", viewer, err)
					return
				}
				if !feed.IsOrdered(res.Posts) {
					t.Errorf("Feed(%s) returned unordered posts", viewer)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				engine.PostCreated(viewer)
				engine.LikeChanged(viewer, "author-0-post-0", i%2 == 0)
			}
		}()
	}
	wg.Wait()

	if got := len(container.Cache().Viewers()); got > 10 {
		t.Errorf("Expected at most 10 cached viewers, got %d", got)
	}
}

func TestRefresherIntegration(t *testing.T) {
	now := time.Now()
	clock := testsupport.NewFakeClock(now)
	store := testsupport.NewFakeStore()
	seedFake(store, 3, 2, 3, now.Add(-time.Hour))
	container := newFakeContainer(t, store, clock)
	ctx := context.Background()

	for v := 0; v < 3; v++ {
		if _, err := container.Engine().Feed(ctx, fmt.Sprintf("viewer-%d", v)); err != nil {
			t.Fatalf("Feed() failed: %v", err)
		}
	}

	clock.Advance(container.Config().Feed.RefreshThreshold)
	store.AddPosts(feed.Post{ID: "fresh", AuthorID: "author-1", Kind: feed.KindText, CreatedAt: clock.Now()})

	if replaced := container.Refresher().RefreshNow(ctx); replaced != 3 {
		t.Errorf("Expected all 3 feeds replaced, got %d", replaced)
	}
	entry, ok := container.Cache().Posts("viewer-2")
	if !ok || entry.Posts[0].ID != "fresh" {
		t.Errorf("Expected refreshed feed to lead with the new post")
	}
}

func BenchmarkFeedCacheHit(b *testing.B) {
	now := time.Now()
	store := testsupport.NewFakeStore()
	seedFake(store, 1, 10, 10, now)
	container := newFakeContainer(b, store, testsupport.NewFakeClock(now))
	engine := container.Engine()
	ctx := context.Background()

	if _, err := engine.Feed(ctx, "viewer-0"); err != nil {
		b.Fatalf("Feed() failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Feed(ctx, "viewer-0")
	}
}

func BenchmarkFeedColdLoad(b *testing.B) {
	for _, followees := range []int{5, 50, 500} {
		b.Run(fmt.Sprintf("%d followees", followees), func(b *testing.B) {
			now := time.Now()
			store := testsupport.NewFakeStore()
			seedFake(store, 1, followees, 5, now)
			container := newFakeContainer(b, store, testsupport.NewFakeClock(now))
			engine := container.Engine()
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				engine.PostCreated("viewer-0")
				if _, err := engine.Feed(ctx, "viewer-0"); err != nil {
					b.Fatalf("Feed() failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkConcurrentFeed(b *testing.B) {
	now := time.Now()
	store := testsupport.NewFakeStore()
	seedFake(store, 100, 5, 5, now)
	container := newFakeContainer(b, store, testsupport.NewFakeClock(now))
	engine := container.Engine()
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			engine.Feed(ctx, fmt.Sprintf("viewer-%d", i%100))
			i++
		}
	})
}
