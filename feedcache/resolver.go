package feedcache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-feed-cache/cache"
	"github.com/goliatone/go-feed-cache/feed"
)

// Resolver returns the set of authors whose posts make up a viewer's feed.
type Resolver struct {
	store   feed.FollowStore
	cache   *cache.Manager
	clock   feed.Clock
	ttl     time.Duration
	timeout time.Duration
	logger  zerolog.Logger
	flights singleflight.Group
}

func NewResolver(store feed.FollowStore, manager *cache.Manager, clock feed.Clock, ttl, timeout time.Duration, logger zerolog.Logger) *Resolver {
	if clock == nil {
		clock = feed.SystemClock{}
	}
	return &Resolver{
		store:   store,
		cache:   manager,
		clock:   clock,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve returns the cached following set while it is younger than the
// following TTL, otherwise it queries the store. The viewer is always part
// of the result.
func (r *Resolver) Resolve(ctx context.Context, viewerID string) (feed.FollowingSet, error) {
	if viewerID == "" {
		return feed.FollowingSet{}, feed.ErrViewerRequired
	}

	if set, ok := r.cache.Following(viewerID); ok && r.clock.Now().Sub(set.CachedAt) < r.ttl {
		return set, nil
	}

	gen := r.cache.FollowingGeneration(viewerID)
	ch := r.flights.DoChan(flightKey(viewerID, gen), func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		followees, err := r.store.Followees(qctx, viewerID)
		if err != nil {
			return nil, storeError("followees", err)
		}

		set := feed.NewFollowingSet(viewerID, followees, r.clock.Now())
		if !r.cache.PutFollowing(set, gen) {
			r.logger.Debug().Str("viewer_id", viewerID).Msg("following set changed during resolve, not cached")
		}
		return set, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return feed.FollowingSet{}, res.Err
		}
		return res.Val.(feed.FollowingSet), nil
	case <-ctx.Done():
		return feed.FollowingSet{}, ctx.Err()
	}
}

// storeError marks err as a store transport failure unless it already is
// one, the caller gave up, or the store rejected the query as too large.
// The last is a configuration error and retrying cannot fix it.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, feed.ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, feed.ErrMembershipTooLarge):
		return err
	}
	return feed.Unavailable(op, err)
}
