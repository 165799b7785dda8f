// Package feedcache assembles a viewer's feed from a store that only
// answers narrow queries: equality and range filters plus a membership
// test capped at a small number of ids.
//
// # Pipeline
//
// A feed request flows through these steps:
//
//   - Resolver: the following set, cached per viewer with its own TTL
//   - Strategy: one membership query, parallel batches or a broad scan
//     filtered in process, chosen from the following set size
//   - Merge: drops ids already seen and sorts newest first
//   - Enricher: per viewer like state on a bounded worker pool
//
// Engine.Feed serves a fresh cache entry without touching the store. When
// the entry is stale or missing the pipeline runs; if it fails, a stale
// entry is still served and the Result is marked degraded.
//
//	manager, _ := cache.NewManager(cfg.Cache, cache.WithSnapshotStore(snapshots))
//	engine, _ := feedcache.New(store, manager, cfg)
//
//	res, err := engine.Feed(ctx, viewerID)
//	more, err := engine.LoadMore(ctx, viewerID, res.Posts, 0)
//
// # Invalidation
//
// Mutations elsewhere in the system call PostCreated, FollowChanged,
// SignedOut and LikeChanged. Every invalidation bumps the viewer's cache
// generation, so a fetch that started earlier cannot write its result back.
//
// # Background refresh
//
// Refresher checks cached viewers on a fixed interval and only refetches
// entries older than a separate threshold. A feed is replaced only when its
// leading post changed; otherwise the entry is marked fresh again.
package feedcache
