package feedcache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-feed-cache/feed"
	"github.com/goliatone/go-feed-cache/pkg/testsupport"
)

func pageOf(n int) []feed.Post {
	posts := make([]feed.Post, n)
	for i := range posts {
		posts[i] = post(fmt.Sprintf("p%02d", i), "a", i)
	}
	return posts
}

func TestEnricher_EmptyViewer(t *testing.T) {
	store := testsupport.NewFakeStore()
	e := NewEnricher(store, DefaultConfig(), zerolog.Nop())

	posts := pageOf(3)
	posts[0].LikedByViewer = true

	got := e.Enrich(context.Background(), posts, "")
	for _, p := range got {
		if p.LikedByViewer {
			t.Errorf("expected %s unliked for anonymous viewer", p.ID)
		}
	}
	if store.LikeCheckCount() != 0 {
		t.Errorf("expected no like checks, got %d", store.LikeCheckCount())
	}
}

func TestEnricher_SingleFailureIsolated(t *testing.T) {
	store := testsupport.NewFakeStore()
	store.Like("p00", "v")
	store.Like("p02", "v")
	store.LikeErr = func(postID, viewerID string) error {
		if postID == "p02" {
			return errors.New("timeout")
		}
		return nil
	}
	e := NewEnricher(store, DefaultConfig(), zerolog.Nop())

	got := e.Enrich(context.Background(), pageOf(4), "v")

	want := map[string]bool{"p00": true, "p01": false, "p02": false, "p03": false}
	for _, p := range got {
		if p.LikedByViewer != want[p.ID] {
			t.Errorf("%s: expected liked=%v, got %v", p.ID, want[p.ID], p.LikedByViewer)
		}
	}
	if store.LikeCheckCount() != 4 {
		t.Errorf("expected one check per post, got %d", store.LikeCheckCount())
	}
}

func TestEnricher_BoundedFanOut(t *testing.T) {
	store := testsupport.NewFakeStore()
	var current, peak int32
	store.LikeErr = func(postID, viewerID string) error {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	}
	cfg := DefaultConfig()
	cfg.LikeWorkers = 3
	e := NewEnricher(store, cfg, zerolog.Nop())

	e.Enrich(context.Background(), pageOf(30), "v")

	if got := atomic.LoadInt32(&peak); got > 3 {
		t.Errorf("expected at most 3 concurrent checks, saw %d", got)
	}
}

func TestEnricher_BatchCapability(t *testing.T) {
	fake := testsupport.NewFakeStore()
	fake.Like("p05", "v")
	fake.Like("p12", "v")
	store := testsupport.NewBatchLikeStore(fake)
	e := NewEnricher(store, DefaultConfig(), zerolog.Nop())

	got := e.Enrich(context.Background(), pageOf(25), "v")

	calls := store.BatchCalls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 batch calls, got %d", len(calls))
	}
	for _, c := range calls {
		if len(c) > 10 {
			t.Errorf("batch of %d ids exceeds limit", len(c))
		}
	}
	if fake.LikeCheckCount() != 0 {
		t.Errorf("expected no single checks with batch capability, got %d", fake.LikeCheckCount())
	}
	for _, p := range got {
		want := p.ID == "p05" || p.ID == "p12"
		if p.LikedByViewer != want {
			t.Errorf("%s: expected liked=%v", p.ID, want)
		}
	}
}

func TestEnricher_BatchFailureDefaultsFalse(t *testing.T) {
	fake := testsupport.NewFakeStore()
	fake.Like("p01", "v")
	fake.Like("p15", "v")
	fake.LikeErr = func(postID, viewerID string) error {
		if postID == "p01" {
			return errors.New("boom")
		}
		return nil
	}
	e := NewEnricher(testsupport.NewBatchLikeStore(fake), DefaultConfig(), zerolog.Nop())

	got := e.Enrich(context.Background(), pageOf(20), "v")
	for _, p := range got {
		want := p.ID == "p15"
		if p.LikedByViewer != want {
			t.Errorf("%s: expected liked=%v", p.ID, want)
		}
	}
}

func TestEnricher_DoesNotMutateInput(t *testing.T) {
	store := testsupport.NewFakeStore()
	store.Like("p00", "v")
	e := NewEnricher(store, DefaultConfig(), zerolog.Nop())

	in := pageOf(1)
	out := e.Enrich(context.Background(), in, "v")
	if in[0].LikedByViewer {
		t.Error("expected input to stay untouched")
	}
	if !out[0].LikedByViewer {
		t.Error("expected output to be liked")
	}
}
