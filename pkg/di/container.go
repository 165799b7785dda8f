package di

import (
	"context"
	"errors"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-feed-cache/bunstore"
	"github.com/goliatone/go-feed-cache/cache"
	"github.com/goliatone/go-feed-cache/events"
	"github.com/goliatone/go-feed-cache/feed"
	"github.com/goliatone/go-feed-cache/feedcache"
	"github.com/goliatone/go-feed-cache/snapshotstore"
)

// Container wires a feed cache node: store, snapshot store, cache manager,
// engine, background refresher and, when configured, the event bus.
type Container struct {
	config Config
	logger zerolog.Logger
	clock  feed.Clock

	db        *bun.DB
	store     feed.Store
	snapshots cache.SnapshotStore
	redis     *snapshotstore.Redis
	manager   *cache.Manager
	engine    *feedcache.Engine
	refresher *feedcache.Refresher

	nc      *nats.Conn
	subs    []*nats.Subscription
	started bool
}

type Option func(*Container)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

func WithClock(clock feed.Clock) Option {
	return func(c *Container) { c.clock = clock }
}

// WithStore replaces the SQL store. No database is opened.
func WithStore(store feed.Store) Option {
	return func(c *Container) { c.store = store }
}

// WithSnapshotStore replaces the configured snapshot store.
func WithSnapshotStore(store cache.SnapshotStore) Option {
	return func(c *Container) { c.snapshots = store }
}

// NewContainer validates cfg and builds every component. Components that
// talk to the network are dialed here, so ctx bounds startup.
func NewContainer(ctx context.Context, cfg Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config: cfg,
		logger: NewLogger(cfg.Log),
		clock:  feed.SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.build(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDefaults builds a fully in-process container.
func NewContainerWithDefaults(ctx context.Context) (*Container, error) {
	return NewContainer(ctx, DefaultConfig())
}

func (c *Container) build(ctx context.Context) error {
	if c.store == nil {
		db, err := bunstore.Open(c.config.Database.Driver, c.config.Database.DSN)
		if err != nil {
			return err
		}
		c.db = db
		if err := bunstore.CreateSchema(ctx, db); err != nil {
			return err
		}
		c.store = bunstore.New(db,
			bunstore.WithLogger(c.logger.With().Str("component", "bunstore").Logger()),
			bunstore.WithMaxMembership(c.config.Database.MaxMembership),
		)
	}

	if c.snapshots == nil {
		if c.config.Redis.Address != "" {
			r, err := snapshotstore.DialRedis(ctx,
				c.config.Redis.Address,
				c.config.Redis.Password,
				c.config.Redis.DB,
				c.config.Redis.Prefix,
			)
			if err != nil {
				return err
			}
			c.redis = r
			c.snapshots = r
		} else {
			c.snapshots = snapshotstore.NewMemory(c.config.Snapshots.Capacity, c.config.Feed.Cache.ColdTTL)
		}
	}

	manager, err := cache.NewManager(c.config.Feed.Cache,
		cache.WithLogger(c.logger.With().Str("component", "cache").Logger()),
		cache.WithClock(c.clock),
		cache.WithSnapshotStore(c.snapshots),
	)
	if err != nil {
		return err
	}
	c.manager = manager

	engine, err := feedcache.New(c.store, manager, c.config.Feed,
		feedcache.WithLogger(c.logger.With().Str("component", "engine").Logger()),
		feedcache.WithClock(c.clock),
	)
	if err != nil {
		return err
	}
	c.engine = engine
	c.refresher = feedcache.NewRefresher(engine,
		feedcache.WithRefresherLogger(c.logger.With().Str("component", "refresher").Logger()),
	)

	if c.config.NATS.URL != "" {
		nc, err := nats.Connect(c.config.NATS.URL, nats.Name("feedcache"))
		if err != nil {
			return err
		}
		c.nc = nc
	}
	return nil
}

// Start launches the refresher and subscribes to mutation events when a
// NATS connection is configured.
func (c *Container) Start(ctx context.Context) error {
	if c.nc != nil {
		subs, err := c.SubscribeEvents(c.nc)
		if err != nil {
			return err
		}
		c.subs = subs
	}
	c.refresher.Start(ctx)
	c.started = true
	c.logger.Info().Bool("events", c.nc != nil).Msg("feed cache started")
	return nil
}

// SubscribeEvents routes mutation events from conn into the engine.
func (c *Container) SubscribeEvents(conn events.Subscriber) ([]*nats.Subscription, error) {
	h := events.NewHandler(c.engine, c.logger.With().Str("component", "events").Logger())
	return h.Subscribe(conn)
}

// Close stops background work, flushes pending snapshots and releases
// connections. It is safe on a partially built container.
func (c *Container) Close() error {
	var errs []error

	if c.refresher != nil {
		c.refresher.Stop()
		if c.started {
			<-c.refresher.Done()
		}
	}
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.nc != nil {
		if err := c.nc.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.manager != nil {
		if err := c.manager.Flush(context.Background()); err != nil {
			errs = append(errs, err)
		}
		c.manager.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Container) Config() Config                     { return c.config }
func (c *Container) Logger() zerolog.Logger             { return c.logger }
func (c *Container) Store() feed.Store                  { return c.store }
func (c *Container) SnapshotStore() cache.SnapshotStore { return c.snapshots }
func (c *Container) Cache() *cache.Manager              { return c.manager }
func (c *Container) Engine() *feedcache.Engine          { return c.engine }
func (c *Container) Refresher() *feedcache.Refresher    { return c.refresher }

// DB is nil when the store was supplied with WithStore.
func (c *Container) DB() *bun.DB { return c.db }

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
