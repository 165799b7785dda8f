package feedcache

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-feed-cache/cache"
	"github.com/goliatone/go-feed-cache/feed"
)

var tracer = otel.Tracer("github.com/goliatone/go-feed-cache/feedcache")

// Source tells how a feed result was produced.
type Source string

const (
	// SourceCache is a fresh cache hit; no store call was made.
	SourceCache Source = "cache"
	// SourceStore is a result fetched from the store just now.
	SourceStore Source = "store"
	// SourceStale is a stale cache entry served because the refresh failed.
	SourceStale Source = "stale"
)

// Result is a feed as handed to the caller.
type Result struct {
	Posts     []feed.Post
	FetchedAt time.Time
	Source    Source
}

// Degraded reports whether the result was served after a failed refresh.
func (r Result) Degraded() bool { return r.Source == SourceStale }

// Engine owns the fetch pipeline: resolve the following set, fetch, merge,
// enrich and cache. Cache state is only ever mutated through the manager.
type Engine struct {
	cfg      Config
	cache    *cache.Manager
	resolver *Resolver
	strategy *Strategy
	enricher *Enricher
	clock    feed.Clock
	logger   zerolog.Logger
	flights  singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Components built by the engine share it.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the clock used to stamp fetches. It should be the same
// clock the manager uses.
func WithClock(c feed.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New builds an Engine over store, caching into manager.
func New(store feed.Store, manager *cache.Manager, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		cache:  manager,
		clock:  feed.SystemClock{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.resolver = NewResolver(store, manager, e.clock, cfg.Cache.FollowingTTL, cfg.StoreTimeout, e.logger)
	e.strategy = NewStrategy(store, cfg, e.logger)
	e.enricher = NewEnricher(store, cfg, e.logger)
	return e, nil
}

// Cache returns the manager backing the engine.
func (e *Engine) Cache() *cache.Manager { return e.cache }

// Resolver returns the following set resolver.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// Feed returns the viewer's first page. A fresh cache entry is returned
// without touching the store. Otherwise the pipeline runs; if it fails and
// any cached entry exists, that entry is served as a degraded result.
func (e *Engine) Feed(ctx context.Context, viewerID string) (Result, error) {
	ctx, span := tracer.Start(ctx, "feedcache.Engine.Feed", trace.WithAttributes(attribute.String("viewer_id", viewerID)))
	defer span.End()

	if viewerID == "" {
		return Result{}, feed.ErrViewerRequired
	}

	if entry, ok := e.cache.Fresh(viewerID); ok {
		feedRequests.WithLabelValues(string(SourceCache)).Inc()
		return Result{Posts: entry.Posts, FetchedAt: entry.FetchedAt, Source: SourceCache}, nil
	}

	if _, ok := e.cache.Posts(viewerID); !ok && e.cache.Restore(ctx, viewerID) {
		if entry, ok := e.restored(ctx, viewerID); ok {
			feedRequests.WithLabelValues(string(SourceCache)).Inc()
			return Result{Posts: entry.Posts, FetchedAt: entry.FetchedAt, Source: SourceCache}, nil
		}
	}

	entry, err := e.refresh(ctx, viewerID)
	if err != nil {
		span.RecordError(err)
		if stale, ok := e.cache.Posts(viewerID); ok {
			feedRequests.WithLabelValues(string(SourceStale)).Inc()
			e.logger.Warn().Err(err).Str("viewer_id", viewerID).Dur("age", stale.Age(e.clock.Now())).Msg("feed refresh failed, serving stale cache")
			return Result{Posts: stale.Posts, FetchedAt: stale.FetchedAt, Source: SourceStale}, nil
		}
		return Result{}, err
	}

	feedRequests.WithLabelValues(string(SourceStore)).Inc()
	return Result{Posts: entry.Posts, FetchedAt: entry.FetchedAt, Source: SourceStore}, nil
}

// ForceRefresh drops the viewer's posts tier and fetches again.
func (e *Engine) ForceRefresh(ctx context.Context, viewerID string) (Result, error) {
	if viewerID == "" {
		return Result{}, feed.ErrViewerRequired
	}
	e.cache.InvalidatePosts(viewerID)
	return e.Feed(ctx, viewerID)
}

// LoadMore fetches the page after displayed and appends it to the cache.
// It returns only the new posts, all strictly older than the last
// displayed post and none already displayed. A pageSize of zero uses the
// configured page size.
func (e *Engine) LoadMore(ctx context.Context, viewerID string, displayed []feed.Post, pageSize int) ([]feed.Post, error) {
	ctx, span := tracer.Start(ctx, "feedcache.Engine.LoadMore", trace.WithAttributes(attribute.String("viewer_id", viewerID)))
	defer span.End()

	cursor, ok := feed.Cursor(displayed)
	if !ok {
		return nil, feed.ErrNothingToPage
	}
	if viewerID == "" {
		return nil, feed.ErrViewerRequired
	}
	if pageSize <= 0 {
		pageSize = e.cfg.PageSize
	}

	gen := e.cache.Generation(viewerID)
	posts, err := e.fetchPage(ctx, viewerID, pageSize, cursor, NewSeenSet(displayed...))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(posts) > 0 && !e.cache.AppendPosts(viewerID, posts, gen) {
		e.logger.Debug().Str("viewer_id", viewerID).Int("posts", len(posts)).Msg("page not appended to cache")
	}
	return posts, nil
}

// PostCreated handles a new post by the viewer.
func (e *Engine) PostCreated(viewerID string) {
	e.cache.InvalidatePosts(viewerID)
}

// FollowChanged handles the viewer following or unfollowing anyone.
func (e *Engine) FollowChanged(viewerID string) {
	e.cache.InvalidateAll(viewerID)
}

// SignedOut drops everything cached for the viewer, snapshots included.
func (e *Engine) SignedOut(viewerID string) {
	e.cache.InvalidateAll(viewerID)
}

// LikeChanged patches the viewer's cached copy of postID in place.
func (e *Engine) LikeChanged(viewerID, postID string, liked bool) bool {
	return e.cache.UpdatePost(viewerID, postID, func(p *feed.Post) {
		if p.LikedByViewer == liked {
			return
		}
		p.LikedByViewer = liked
		if liked {
			p.LikeCount++
		} else if p.LikeCount > 0 {
			p.LikeCount--
		}
	})
}

// restored returns a fresh restored entry with like state filled in.
// Snapshots never carry LikedByViewer, so the enriched copy replaces the
// restored one before it is served.
func (e *Engine) restored(ctx context.Context, viewerID string) (feed.Entry, bool) {
	gen := e.cache.Generation(viewerID)
	entry, ok := e.cache.Fresh(viewerID)
	if !ok {
		return feed.Entry{}, false
	}
	entry.Posts = e.enricher.Enrich(ctx, entry.Posts, viewerID)
	if !e.cache.PutPosts(viewerID, entry, gen) {
		return feed.Entry{}, false
	}
	return entry, true
}

// refresh runs the full pipeline for the first page and caches the result.
// Concurrent refreshes for the same viewer and generation share one fetch.
func (e *Engine) refresh(ctx context.Context, viewerID string) (feed.Entry, error) {
	gen := e.cache.Generation(viewerID)
	ch := e.flights.DoChan(flightKey(viewerID, gen), func() (any, error) {
		entry, err := e.fetchEntry(context.WithoutCancel(ctx), viewerID)
		if err != nil {
			return nil, err
		}
		if !e.cache.PutPosts(viewerID, entry, gen) {
			e.logger.Debug().Str("viewer_id", viewerID).Msg("viewer invalidated during fetch, result not cached")
		}
		return entry, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return feed.Entry{}, res.Err
		}
		entry := res.Val.(feed.Entry)
		entry.Posts = feed.ClonePosts(entry.Posts)
		return entry, nil
	case <-ctx.Done():
		return feed.Entry{}, ctx.Err()
	}
}

// fetchEntry runs the pipeline for the first page without caching.
func (e *Engine) fetchEntry(ctx context.Context, viewerID string) (feed.Entry, error) {
	posts, err := e.fetchPage(ctx, viewerID, e.cfg.PageSize, time.Time{}, nil)
	if err != nil {
		return feed.Entry{}, err
	}
	return feed.Entry{Posts: posts, FetchedAt: e.clock.Now()}, nil
}

func (e *Engine) fetchPage(ctx context.Context, viewerID string, pageSize int, before time.Time, seen SeenSet) ([]feed.Post, error) {
	set, err := e.resolver.Resolve(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	batches, err := e.strategy.Fetch(ctx, set, pageSize, before)
	if err != nil {
		return nil, err
	}

	posts := Merge(batches, seen)
	if len(posts) > pageSize {
		posts = posts[:pageSize]
	}
	return e.enricher.Enrich(ctx, posts, viewerID), nil
}

func flightKey(viewerID string, gen uint64) string {
	return viewerID + "#" + strconv.FormatUint(gen, 10)
}
