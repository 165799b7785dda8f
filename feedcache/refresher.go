package feedcache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-feed-cache/feed"
)

// UpdateHandler is called after the refresher replaced a viewer's feed.
type UpdateHandler func(viewerID string, entry feed.Entry)

// Refresher periodically re-fetches cached feeds that have grown old.
// It checks every interval but only refetches entries at least threshold
// old, and it never surfaces errors.
type Refresher struct {
	engine    *Engine
	interval  time.Duration
	threshold time.Duration
	logger    zerolog.Logger
	onUpdate  UpdateHandler

	stopOnce sync.Once
	quit     chan struct{}
	doneCh   chan struct{}
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithUpdateHandler registers fn to be called when a feed was replaced.
func WithUpdateHandler(fn UpdateHandler) RefresherOption {
	return func(r *Refresher) { r.onUpdate = fn }
}

// WithRefresherLogger overrides the engine logger for the refresher.
func WithRefresherLogger(l zerolog.Logger) RefresherOption {
	return func(r *Refresher) { r.logger = l }
}

// NewRefresher creates a Refresher using the engine's RefreshInterval and
// RefreshThreshold.
func NewRefresher(engine *Engine, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		engine:    engine,
		interval:  engine.cfg.RefreshInterval,
		threshold: engine.cfg.RefreshThreshold,
		logger:    engine.logger,
		quit:      make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the refresher in a background goroutine.
func (r *Refresher) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop signals the refresher to stop and returns immediately.
// Call Done() to wait for it to exit.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// Done returns a channel that is closed when the refresher has fully stopped.
func (r *Refresher) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshNow(ctx)
		}
	}
}

// RefreshNow runs one pass over every cached viewer and returns how many
// feeds were replaced.
func (r *Refresher) RefreshNow(ctx context.Context) int {
	replaced := 0
	for _, viewerID := range r.engine.cache.Viewers() {
		if ctx.Err() != nil {
			break
		}
		if r.refreshViewer(ctx, viewerID) {
			replaced++
		}
	}
	return replaced
}

func (r *Refresher) refreshViewer(ctx context.Context, viewerID string) bool {
	manager := r.engine.cache
	age, ok := manager.Age(viewerID)
	if !ok || age < r.threshold {
		refreshOutcomes.WithLabelValues("skipped").Inc()
		return false
	}

	gen := manager.Generation(viewerID)
	current, _ := manager.Posts(viewerID)

	entry, err := r.engine.fetchEntry(ctx, viewerID)
	if err != nil {
		refreshOutcomes.WithLabelValues("failed").Inc()
		r.logger.Debug().Err(err).Str("viewer_id", viewerID).Msg("background refresh failed")
		return false
	}

	if sameLeading(current, entry) {
		manager.Touch(viewerID, gen)
		refreshOutcomes.WithLabelValues("unchanged").Inc()
		return false
	}

	if !manager.PutPosts(viewerID, entry, gen) {
		refreshOutcomes.WithLabelValues("stale").Inc()
		return false
	}

	refreshOutcomes.WithLabelValues("replaced").Inc()
	r.logger.Debug().Str("viewer_id", viewerID).Int("posts", len(entry.Posts)).Msg("background refresh replaced feed")
	if r.onUpdate != nil {
		r.onUpdate(viewerID, entry)
	}
	return true
}

// sameLeading compares the newest post of two entries by id and time.
func sameLeading(a, b feed.Entry) bool {
	la, okA := a.Leading()
	lb, okB := b.Leading()
	if !okA || !okB {
		return okA == okB
	}
	return la.ID == lb.ID && la.CreatedAt.Equal(lb.CreatedAt)
}
