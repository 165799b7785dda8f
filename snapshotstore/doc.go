// Package snapshotstore implements cache.SnapshotStore on redis and in
// process memory. Snapshots are opaque blobs written by the cache manager's
// background writer and read back on cold start.
package snapshotstore
