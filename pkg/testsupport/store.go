package testsupport

import (
	"context"
	"sync"

	"github.com/goliatone/go-feed-cache/feed"
)

// FakeStore is an in-memory feed.Store that records every call.
//
// Hooks run outside the store lock, so a BeforeQuery hook may block to
// hold a fetch in flight.
type FakeStore struct {
	mu sync.Mutex

	posts   map[string]feed.Post
	follows map[string]map[string]struct{}
	likes   map[string]map[string]struct{}

	queries       []feed.PostQuery
	likeChecks    int
	followeeCalls int

	// MaxMembership rejects membership queries above this many ids.
	MaxMembership int

	BeforeQuery  func(q feed.PostQuery)
	QueryErr     func(q feed.PostQuery) error
	LikeErr      func(postID, viewerID string) error
	FolloweesErr func(followerID string) error
}

var _ feed.Store = (*FakeStore)(nil)

func NewFakeStore() *FakeStore {
	return &FakeStore{
		posts:         make(map[string]feed.Post),
		follows:       make(map[string]map[string]struct{}),
		likes:         make(map[string]map[string]struct{}),
		MaxMembership: 10,
	}
}

func (s *FakeStore) AddPosts(posts ...feed.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range posts {
		s.posts[p.ID] = p
	}
}

func (s *FakeStore) Follow(followerID, followeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follows[followerID] == nil {
		s.follows[followerID] = make(map[string]struct{})
	}
	s.follows[followerID][followeeID] = struct{}{}
}

func (s *FakeStore) Unfollow(followerID, followeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.follows[followerID], followeeID)
}

func (s *FakeStore) Like(postID, viewerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.likes[viewerID] == nil {
		s.likes[viewerID] = make(map[string]struct{})
	}
	s.likes[viewerID][postID] = struct{}{}
}

func (s *FakeStore) QueryPosts(ctx context.Context, q feed.PostQuery) ([]feed.Post, error) {
	s.mu.Lock()
	s.queries = append(s.queries, feed.PostQuery{
		AuthorIDs: append([]string(nil), q.AuthorIDs...),
		Before:    q.Before,
		Limit:     q.Limit,
	})
	s.mu.Unlock()

	if s.BeforeQuery != nil {
		s.BeforeQuery(q)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.QueryErr != nil {
		if err := s.QueryErr(q); err != nil {
			return nil, err
		}
	}
	if s.MaxMembership > 0 && len(q.AuthorIDs) > s.MaxMembership {
		return nil, feed.ErrMembershipTooLarge
	}

	authors := make(map[string]struct{}, len(q.AuthorIDs))
	for _, id := range q.AuthorIDs {
		authors[id] = struct{}{}
	}

	s.mu.Lock()
	out := make([]feed.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if len(authors) > 0 {
			if _, ok := authors[p.AuthorID]; !ok {
				continue
			}
		}
		if !q.Before.IsZero() && !p.CreatedAt.Before(q.Before) {
			continue
		}
		out = append(out, p)
	}
	s.mu.Unlock()

	feed.SortPosts(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return feed.ClonePosts(out), nil
}

func (s *FakeStore) LikeExists(ctx context.Context, postID, viewerID string) (bool, error) {
	s.mu.Lock()
	s.likeChecks++
	_, liked := s.likes[viewerID][postID]
	s.mu.Unlock()

	if s.LikeErr != nil {
		if err := s.LikeErr(postID, viewerID); err != nil {
			return false, err
		}
	}
	return liked, nil
}

func (s *FakeStore) Followees(ctx context.Context, followerID string) ([]string, error) {
	s.mu.Lock()
	s.followeeCalls++
	out := make([]string, 0, len(s.follows[followerID]))
	for id := range s.follows[followerID] {
		out = append(out, id)
	}
	s.mu.Unlock()

	if s.FolloweesErr != nil {
		if err := s.FolloweesErr(followerID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Queries returns a copy of every post query received.
func (s *FakeStore) Queries() []feed.PostQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]feed.PostQuery(nil), s.queries...)
}

func (s *FakeStore) QueryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func (s *FakeStore) LikeCheckCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.likeChecks
}

func (s *FakeStore) FolloweesCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.followeeCalls
}

// ResetCalls clears the recorded calls but keeps the data.
func (s *FakeStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = nil
	s.likeChecks = 0
	s.followeeCalls = 0
}

// BatchLikeStore adds the batch like capability to a FakeStore.
type BatchLikeStore struct {
	*FakeStore

	batchMu    sync.Mutex
	batchCalls [][]string
}

var _ feed.LikeBatchStore = (*BatchLikeStore)(nil)

func NewBatchLikeStore(store *FakeStore) *BatchLikeStore {
	return &BatchLikeStore{FakeStore: store}
}

func (s *BatchLikeStore) LikedPostIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]bool, error) {
	s.batchMu.Lock()
	s.batchCalls = append(s.batchCalls, append([]string(nil), postIDs...))
	s.batchMu.Unlock()

	out := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		if s.LikeErr != nil {
			if err := s.LikeErr(id, viewerID); err != nil {
				return nil, err
			}
		}
		s.mu.Lock()
		_, liked := s.likes[viewerID][id]
		s.mu.Unlock()
		if liked {
			out[id] = true
		}
	}
	return out, nil
}

// BatchCalls returns the post ids of every batch call received.
func (s *BatchLikeStore) BatchCalls() [][]string {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return append([][]string(nil), s.batchCalls...)
}
