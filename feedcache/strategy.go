package feedcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-feed-cache/feed"
)

// Plan is the query shape chosen for a following set.
type Plan int

const (
	PlanEmpty Plan = iota
	PlanSingle
	PlanBatched
	PlanBroadScan
)

func (p Plan) String() string {
	switch p {
	case PlanEmpty:
		return "empty"
	case PlanSingle:
		return "single"
	case PlanBatched:
		return "batched"
	case PlanBroadScan:
		return "broad_scan"
	}
	return fmt.Sprintf("plan(%d)", int(p))
}

// Strategy turns a following set into post queries the store can answer.
type Strategy struct {
	store  feed.PostStore
	cfg    Config
	logger zerolog.Logger
}

func NewStrategy(store feed.PostStore, cfg Config, logger zerolog.Logger) *Strategy {
	return &Strategy{store: store, cfg: cfg, logger: logger}
}

// Plan picks the query shape for a following set of n members.
func (s *Strategy) Plan(n int) Plan {
	switch {
	case n == 0:
		return PlanEmpty
	case n <= s.cfg.BatchLimit:
		return PlanSingle
	case n <= s.cfg.BroadScanThreshold:
		return PlanBatched
	default:
		return PlanBroadScan
	}
}

// Fetch runs the plan for set and returns one ordered page per query. A
// zero before means no upper bound. Failed batches are skipped as long as
// one batch succeeds.
func (s *Strategy) Fetch(ctx context.Context, set feed.FollowingSet, pageSize int, before time.Time) ([][]feed.Post, error) {
	plan := s.Plan(set.Len())
	ctx, span := tracer.Start(ctx, "feedcache.Strategy.Fetch", trace.WithAttributes(
		attribute.String("plan", plan.String()),
		attribute.Int("following", set.Len()),
	))
	defer span.End()

	s.logger.Debug().
		Str("viewer_id", set.ViewerID).
		Str("plan", plan.String()).
		Int("following", set.Len()).
		Msg("fetching feed page")

	limit := s.cfg.queryLimit(pageSize)

	switch plan {
	case PlanEmpty:
		return nil, nil

	case PlanSingle:
		page, err := s.query(ctx, plan, feed.PostQuery{AuthorIDs: set.UserIDs, Before: before, Limit: limit})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return [][]feed.Post{page}, nil

	case PlanBroadScan:
		page, err := s.query(ctx, plan, feed.PostQuery{Before: before, Limit: limit * s.cfg.BroadScanFactor})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		members := set.Members()
		filtered := make([]feed.Post, 0, len(page))
		for _, p := range page {
			if _, ok := members[p.AuthorID]; ok {
				filtered = append(filtered, p)
			}
		}
		return [][]feed.Post{filtered}, nil
	}

	batches := set.Batches(s.cfg.BatchLimit)
	pages := make([][]feed.Post, len(batches))
	errs := make([]error, len(batches))

	var g errgroup.Group
	g.SetLimit(s.cfg.FetchWorkers)
	for i, ids := range batches {
		g.Go(func() error {
			pages[i], errs[i] = s.query(ctx, plan, feed.PostQuery{AuthorIDs: ids, Before: before, Limit: limit})
			return nil
		})
	}
	g.Wait()

	out := make([][]feed.Post, 0, len(pages))
	var failed []error
	for i, page := range pages {
		if errs[i] != nil {
			failed = append(failed, fmt.Errorf("batch %d: %w", i, errs[i]))
			continue
		}
		out = append(out, page)
	}

	if len(out) == 0 {
		err := errors.Join(failed...)
		if !errors.Is(err, feed.ErrMembershipTooLarge) {
			err = feed.Unavailable("query posts", err)
		}
		span.RecordError(err)
		return nil, err
	}
	if len(failed) > 0 {
		s.logger.Warn().
			Err(errors.Join(failed...)).
			Str("viewer_id", set.ViewerID).
			Int("failed", len(failed)).
			Int("batches", len(batches)).
			Msg("partial feed fetch, continuing with successful batches")
	}
	return out, nil
}

func (s *Strategy) query(ctx context.Context, plan Plan, q feed.PostQuery) ([]feed.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	storeQueries.WithLabelValues(plan.String()).Inc()
	page, err := s.store.QueryPosts(ctx, q)
	if err != nil {
		batchFailures.WithLabelValues(plan.String()).Inc()
		return nil, storeError("query posts", err)
	}
	return s.sanitize(page), nil
}

// sanitize drops records that cannot be ordered or deduplicated.
func (s *Strategy) sanitize(page []feed.Post) []feed.Post {
	out := make([]feed.Post, 0, len(page))
	for _, p := range page {
		if err := feed.CheckPost(p); err != nil {
			decodeFailures.Inc()
			s.logger.Warn().Err(err).Str("post_id", p.ID).Msg("skipping undecodable post")
			continue
		}
		out = append(out, p)
	}
	return out
}
