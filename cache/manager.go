package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-feed-cache/feed"
	"github.com/goliatone/go-feed-cache/internal/cacheinfra"
)

// postsSlot is the posts tier value for one viewer. The slot outlives
// invalidation so the generation keeps increasing.
type postsSlot struct {
	entry feed.Entry
	has   bool
	gen   uint64
}

// Manager owns both cache tiers for every viewer.
//
// The following tier lives in sturdyc; the posts tier is an xsync map
// mutated with Compute so put, append and invalidate are mutually exclusive
// per viewer. Each invalidation bumps the viewer's generation and writes
// carrying an older generation are rejected.
type Manager struct {
	cfg    Config
	clock  feed.Clock
	logger zerolog.Logger
	keys   KeySerializer

	following    *cacheinfra.SturdycStore[feed.FollowingSet]
	followingGen *xsync.MapOf[string, uint64]
	posts        *xsync.MapOf[string, postsSlot]

	snapshots SnapshotStore
	writer    *snapshotWriter
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for degraded paths.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the clock used for TTL decisions.
func WithClock(c feed.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithSnapshotStore enables persisted snapshots. Without one the manager
// runs memory only.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(m *Manager) { m.snapshots = s }
}

// WithKeySerializer overrides how tier and snapshot keys are built.
func WithKeySerializer(k KeySerializer) Option {
	return func(m *Manager) {
		if k != nil {
			m.keys = k
		}
	}
}

// NewManager validates cfg and builds a Manager. When a snapshot store is
// configured a background writer is started; call Close to stop it.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	following, err := cacheinfra.NewSturdycStore[feed.FollowingSet](cfg.toInternal())
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          cfg,
		clock:        feed.SystemClock{},
		logger:       zerolog.Nop(),
		keys:         NewDefaultKeySerializer(),
		following:    following,
		followingGen: xsync.NewMapOf[string, uint64](),
		posts:        xsync.NewMapOf[string, postsSlot](),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.snapshots != nil {
		m.writer = newSnapshotWriter(m.snapshots, cfg.ColdTTL, cfg.WriteQueueSize, m.logger, m.currentGen)
	}

	return m, nil
}

// Config returns the configuration the manager was built with.
func (m *Manager) Config() Config { return m.cfg }

// Following returns the cached following set for viewerID. Freshness is
// the caller's decision, based on CachedAt.
func (m *Manager) Following(viewerID string) (feed.FollowingSet, bool) {
	set, ok := m.following.Get(m.keys.SerializeKey(FollowingNamespace, viewerID))
	if !ok || set.Len() == 0 {
		cacheLookups.WithLabelValues("following", "miss").Inc()
		return feed.FollowingSet{}, false
	}
	cacheLookups.WithLabelValues("following", "hit").Inc()
	return set, true
}

// FollowingGeneration returns the following tier generation for viewerID.
func (m *Manager) FollowingGeneration(viewerID string) uint64 {
	gen, _ := m.followingGen.Load(viewerID)
	return gen
}

// PutFollowing stores set if gen still matches the viewer's following
// generation.
func (m *Manager) PutFollowing(set feed.FollowingSet, gen uint64) bool {
	key := m.keys.SerializeKey(FollowingNamespace, set.ViewerID)
	stored := false
	m.followingGen.Compute(set.ViewerID, func(current uint64, _ bool) (uint64, bool) {
		if current != gen {
			return current, false
		}
		m.following.Set(key, set)
		stored = true
		return current, false
	})
	if !stored {
		staleWrites.WithLabelValues("following").Inc()
		return false
	}

	if m.writer != nil {
		if data, err := encodeFollowing(set); err == nil {
			m.writer.save(m.keys.SerializeKey(FollowingSnapshotKey, set.ViewerID), set.ViewerID, tierFollowing, gen, data)
		}
	}
	return true
}

// InvalidateFollowing drops the cached following set and its snapshot.
func (m *Manager) InvalidateFollowing(viewerID string) {
	key := m.keys.SerializeKey(FollowingNamespace, viewerID)
	m.followingGen.Compute(viewerID, func(current uint64, _ bool) (uint64, bool) {
		m.following.Delete(key)
		return current + 1, false
	})
	if m.writer != nil {
		m.writer.remove(m.keys.SerializeKey(FollowingSnapshotKey, viewerID))
	}
}

// Posts returns a copy of the cached entry for viewerID, fresh or stale.
func (m *Manager) Posts(viewerID string) (feed.Entry, bool) {
	slot, ok := m.posts.Load(viewerID)
	if !ok || !slot.has {
		cacheLookups.WithLabelValues("posts", "miss").Inc()
		return feed.Entry{}, false
	}
	cacheLookups.WithLabelValues("posts", "hit").Inc()
	return feed.Entry{Posts: feed.ClonePosts(slot.entry.Posts), FetchedAt: slot.entry.FetchedAt}, true
}

// Fresh returns the cached entry only while it is younger than PostsTTL.
func (m *Manager) Fresh(viewerID string) (feed.Entry, bool) {
	entry, ok := m.Posts(viewerID)
	if !ok || entry.Age(m.clock.Now()) >= m.cfg.PostsTTL {
		return feed.Entry{}, false
	}
	return entry, true
}

// Generation returns the posts tier generation for viewerID.
func (m *Manager) Generation(viewerID string) uint64 {
	slot, _ := m.posts.Load(viewerID)
	return slot.gen
}

// PutPosts replaces the viewer's entry. It returns false when gen is older
// than the current generation, leaving the cache untouched.
func (m *Manager) PutPosts(viewerID string, entry feed.Entry, gen uint64) bool {
	entry.Posts = feed.ClonePosts(entry.Posts)
	stored := false
	m.posts.Compute(viewerID, func(old postsSlot, _ bool) (postsSlot, bool) {
		if old.gen != gen {
			return old, false
		}
		stored = true
		return postsSlot{entry: entry, has: true, gen: gen}, false
	})
	if !stored {
		staleWrites.WithLabelValues("posts").Inc()
		m.logger.Debug().Str("viewer_id", viewerID).Uint64("generation", gen).Msg("discarded stale posts write")
		return false
	}
	m.persistPosts(viewerID, entry, gen)
	return true
}

// AppendPosts adds an older page to the viewer's entry without moving
// FetchedAt. Posts already present are skipped. It returns false when there
// is no entry to append to or gen is stale.
func (m *Manager) AppendPosts(viewerID string, posts []feed.Post, gen uint64) bool {
	var snapshot feed.Entry
	stored := false
	m.posts.Compute(viewerID, func(old postsSlot, _ bool) (postsSlot, bool) {
		if old.gen != gen || !old.has {
			return old, false
		}
		present := make(map[string]struct{}, len(old.entry.Posts))
		merged := make([]feed.Post, 0, len(old.entry.Posts)+len(posts))
		for _, p := range old.entry.Posts {
			present[p.ID] = struct{}{}
			merged = append(merged, p)
		}
		for _, p := range feed.ClonePosts(posts) {
			if _, dup := present[p.ID]; dup {
				continue
			}
			present[p.ID] = struct{}{}
			merged = append(merged, p)
		}
		feed.SortPosts(merged)
		snapshot = feed.Entry{Posts: merged, FetchedAt: old.entry.FetchedAt}
		stored = true
		return postsSlot{entry: snapshot, has: true, gen: old.gen}, false
	})
	if !stored {
		staleWrites.WithLabelValues("posts").Inc()
		return false
	}
	m.persistPosts(viewerID, snapshot, gen)
	return true
}

// Touch resets FetchedAt on the current entry, marking it fresh without
// changing its posts.
func (m *Manager) Touch(viewerID string, gen uint64) bool {
	now := m.clock.Now()
	var entry feed.Entry
	touched := false
	m.posts.Compute(viewerID, func(old postsSlot, _ bool) (postsSlot, bool) {
		if old.gen != gen || !old.has {
			return old, false
		}
		old.entry.FetchedAt = now
		entry = old.entry
		touched = true
		return old, false
	})
	if touched {
		m.persistPosts(viewerID, entry, gen)
	}
	return touched
}

// UpdatePost applies fn to the cached copy of postID. It is a targeted
// patch and does not bump the generation.
func (m *Manager) UpdatePost(viewerID, postID string, fn func(*feed.Post)) bool {
	var entry feed.Entry
	var gen uint64
	updated := false
	m.posts.Compute(viewerID, func(old postsSlot, _ bool) (postsSlot, bool) {
		if !old.has {
			return old, false
		}
		for i, p := range old.entry.Posts {
			if p.ID != postID {
				continue
			}
			posts := feed.ClonePosts(old.entry.Posts)
			fn(&posts[i])
			posts[i].ID = postID
			old.entry.Posts = posts
			entry, gen, updated = old.entry, old.gen, true
			break
		}
		return old, false
	})
	if updated {
		m.persistPosts(viewerID, entry, gen)
	}
	return updated
}

// InvalidatePosts clears the viewer's entry and its snapshot and bumps the
// generation so in-flight fetches cannot repopulate it.
func (m *Manager) InvalidatePosts(viewerID string) {
	m.posts.Compute(viewerID, func(old postsSlot, _ bool) (postsSlot, bool) {
		return postsSlot{gen: old.gen + 1}, false
	})
	if m.writer != nil {
		m.writer.remove(m.keys.SerializeKey(PostsSnapshotKey, viewerID))
	}
}

// InvalidateAll clears both tiers for viewerID.
func (m *Manager) InvalidateAll(viewerID string) {
	m.InvalidateFollowing(viewerID)
	m.InvalidatePosts(viewerID)
}

// IsStale reports whether the viewer has no entry or one at least ttl old.
func (m *Manager) IsStale(viewerID string, ttl time.Duration) bool {
	age, ok := m.Age(viewerID)
	return !ok || age >= ttl
}

// Age returns how old the viewer's entry is.
func (m *Manager) Age(viewerID string) (time.Duration, bool) {
	slot, ok := m.posts.Load(viewerID)
	if !ok || !slot.has {
		return 0, false
	}
	return slot.entry.Age(m.clock.Now()), true
}

// Viewers returns every viewer with a cached posts entry.
func (m *Manager) Viewers() []string {
	var out []string
	m.posts.Range(func(viewerID string, slot postsSlot) bool {
		if slot.has {
			out = append(out, viewerID)
		}
		return true
	})
	return out
}

// Restore loads the viewer's snapshots into empty tiers. Snapshots older
// than ColdTTL are ignored. Original timestamps are kept, so a restored
// posts entry is usually stale and only serves as a fallback. Failures are
// logged and leave the tiers untouched.
//
// A tier that was invalidated since the manager started is never restored:
// its snapshot delete may still be queued on the writer.
func (m *Manager) Restore(ctx context.Context, viewerID string) bool {
	if m.snapshots == nil || viewerID == "" {
		return false
	}
	now := m.clock.Now()
	restored := false

	if _, ok := m.Following(viewerID); !ok && m.FollowingGeneration(viewerID) == 0 {
		key := m.keys.SerializeKey(FollowingSnapshotKey, viewerID)
		if data, ok := m.load(ctx, key, viewerID); ok {
			set, err := decodeFollowing(viewerID, data)
			switch {
			case err != nil:
				m.discard(ctx, key, viewerID, err)
			case now.Sub(set.CachedAt) < m.cfg.ColdTTL:
				if m.putFollowingQuiet(set, 0) {
					restored = true
				}
			}
		}
	}

	if _, ok := m.Posts(viewerID); !ok && m.Generation(viewerID) == 0 {
		key := m.keys.SerializeKey(PostsSnapshotKey, viewerID)
		if data, ok := m.load(ctx, key, viewerID); ok {
			entry, err := decodePosts(data)
			switch {
			case err != nil:
				m.discard(ctx, key, viewerID, err)
			case entry.Age(now) < m.cfg.ColdTTL && len(entry.Posts) > 0:
				if m.putPostsQuiet(viewerID, entry, 0) {
					restored = true
				}
			}
		}
	}

	if restored {
		snapshotOps.WithLabelValues("restore", "ok").Inc()
		m.logger.Debug().Str("viewer_id", viewerID).Msg("restored feed snapshot")
	}
	return restored
}

// Flush blocks until every snapshot write queued before the call is done.
func (m *Manager) Flush(ctx context.Context) error {
	if m.writer == nil {
		return nil
	}
	return m.writer.flush(ctx)
}

// Close drains pending snapshot writes and stops the writer.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if m.writer != nil {
			m.writer.close()
		}
	})
	return nil
}

func (m *Manager) persistPosts(viewerID string, entry feed.Entry, gen uint64) {
	if m.writer == nil {
		return
	}
	data, err := encodePosts(entry, m.cfg.SnapshotMaxPosts)
	if err != nil {
		m.logger.Warn().Err(err).Str("viewer_id", viewerID).Msg("failed to encode posts snapshot")
		return
	}
	m.writer.save(m.keys.SerializeKey(PostsSnapshotKey, viewerID), viewerID, tierPosts, gen, data)
}

// putPostsQuiet stores a restored entry without writing it back.
func (m *Manager) putPostsQuiet(viewerID string, entry feed.Entry, gen uint64) bool {
	stored := false
	m.posts.Compute(viewerID, func(old postsSlot, _ bool) (postsSlot, bool) {
		if old.gen != gen || old.has {
			return old, false
		}
		stored = true
		return postsSlot{entry: entry, has: true, gen: gen}, false
	})
	return stored
}

func (m *Manager) putFollowingQuiet(set feed.FollowingSet, gen uint64) bool {
	key := m.keys.SerializeKey(FollowingNamespace, set.ViewerID)
	stored := false
	m.followingGen.Compute(set.ViewerID, func(current uint64, _ bool) (uint64, bool) {
		if current == gen {
			m.following.Set(key, set)
			stored = true
		}
		return current, false
	})
	return stored
}

func (m *Manager) load(ctx context.Context, key, viewerID string) ([]byte, bool) {
	data, err := m.snapshots.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			snapshotOps.WithLabelValues("load", "error").Inc()
			m.logger.Warn().Err(err).Str("viewer_id", viewerID).Str("key", key).Msg("snapshot load failed, continuing memory only")
		}
		return nil, false
	}
	return data, true
}

func (m *Manager) discard(ctx context.Context, key, viewerID string, cause error) {
	snapshotOps.WithLabelValues("decode", "error").Inc()
	m.logger.Warn().Err(cause).Str("viewer_id", viewerID).Str("key", key).Msg("discarding unreadable snapshot")
	if err := m.snapshots.Delete(ctx, key); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to delete unreadable snapshot")
	}
}

// currentGen is consulted by the writer right before a save hits the store.
func (m *Manager) currentGen(t tier, viewerID string) uint64 {
	if t == tierFollowing {
		return m.FollowingGeneration(viewerID)
	}
	return m.Generation(viewerID)
}
