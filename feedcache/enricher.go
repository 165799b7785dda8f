package feedcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-feed-cache/feed"
)

// Enricher fills LikedByViewer. It never fails: a check that cannot be
// answered leaves the post unliked.
type Enricher struct {
	store      feed.LikeStore
	batchLimit int
	workers    int
	timeout    time.Duration
	logger     zerolog.Logger
}

func NewEnricher(store feed.LikeStore, cfg Config, logger zerolog.Logger) *Enricher {
	return &Enricher{
		store:      store,
		batchLimit: cfg.BatchLimit,
		workers:    cfg.LikeWorkers,
		timeout:    cfg.StoreTimeout,
		logger:     logger,
	}
}

// Enrich returns a copy of posts with LikedByViewer set for viewerID.
func (e *Enricher) Enrich(ctx context.Context, posts []feed.Post, viewerID string) []feed.Post {
	out := feed.ClonePosts(posts)
	for i := range out {
		out[i].LikedByViewer = false
	}
	if viewerID == "" || len(out) == 0 {
		return out
	}

	if batch, ok := e.store.(feed.LikeBatchStore); ok {
		e.enrichBatched(ctx, batch, out, viewerID)
		return out
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range out {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			liked, err := e.store.LikeExists(cctx, out[i].ID, viewerID)
			if err != nil {
				likeCheckFailures.Inc()
				e.logger.Warn().Err(err).Str("viewer_id", viewerID).Str("post_id", out[i].ID).Msg("like check failed, defaulting to false")
				return nil
			}
			out[i].LikedByViewer = liked
			return nil
		})
	}
	g.Wait()
	return out
}

func (e *Enricher) enrichBatched(ctx context.Context, store feed.LikeBatchStore, out []feed.Post, viewerID string) {
	var g errgroup.Group
	g.SetLimit(e.workers)
	for start := 0; start < len(out); start += e.batchLimit {
		end := min(start+e.batchLimit, len(out))
		chunk := out[start:end]

		g.Go(func() error {
			ids := make([]string, len(chunk))
			for i, p := range chunk {
				ids[i] = p.ID
			}

			cctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			liked, err := store.LikedPostIDs(cctx, viewerID, ids)
			if err != nil {
				likeCheckFailures.Add(float64(len(chunk)))
				e.logger.Warn().Err(err).Str("viewer_id", viewerID).Int("posts", len(chunk)).Msg("batch like check failed, defaulting to false")
				return nil
			}
			for i := range chunk {
				chunk[i].LikedByViewer = liked[chunk[i].ID]
			}
			return nil
		})
	}
	g.Wait()
}
