// Package cache holds the per-viewer feed state: a following tier and a
// posts tier with independent TTLs, plus an optional persisted snapshot of
// both for cold starts.
//
// # Overview
//
// Manager is the only type that mutates cached feed state:
//
//   - Following tier: the viewer's resolved FollowingSet, kept in a sturdyc
//     store with FollowingTTL.
//   - Posts tier: the viewer's feed.Entry, judged fresh while younger than
//     PostsTTL.
//   - Snapshots: every write to either tier is encoded with msgpack and
//     handed to a background writer that saves it to a SnapshotStore with
//     ColdTTL as the blob lifetime.
//
// # Generations
//
// Each viewer carries a generation counter per tier. Invalidation bumps it,
// and writers pass the generation they observed before fetching:
//
//	gen := manager.Generation(viewerID)
//	entry, err := fetch(ctx, viewerID)
//	if err != nil {
//		return err
//	}
//	if !manager.PutPosts(viewerID, entry, gen) {
//		// invalidated while fetching; entry was not cached
//	}
//
// A fetch that started before an invalidation can therefore never
// overwrite the newer state, in memory or in the snapshot store.
//
// # Snapshot Keys
//
// Keys are built by a KeySerializer from a namespace and the viewer id.
// The default serializer produces keys such as:
//
//	cached_posts_data::viewer-123
//	cached_following_users::viewer-123
//
// Supply WithKeySerializer to change the layout, for example to add a
// tenant segment.
//
// # Cold Start
//
// Restore loads both snapshots for a viewer. Snapshots older than ColdTTL
// are ignored and undecodable ones are deleted. A restored entry keeps its
// original FetchedAt, so callers see it as stale and can serve it while a
// refresh runs. A tier invalidated since the manager started is never
// restored: its snapshot delete may still be waiting on the writer.
//
// Snapshots do not carry LikedByViewer. Callers that serve a restored entry
// must recompute like state first.
//
// # Error Handling
//
// Snapshot failures never fail a cache operation. They are logged and
// counted; the in-memory tiers keep working without persistence.
package cache
