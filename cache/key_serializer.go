package cache

import "strings"

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// Key namespaces used by the manager. The snapshot names are shared with
// any other process reading the same blob store.
const (
	FollowingNamespace   = "following"
	PostsSnapshotKey     = "cached_posts_data"
	FollowingSnapshotKey = "cached_following_users"
)

// KeySerializer builds the key for one viewer within a namespace. Both the
// following tier and the snapshot store are addressed through it.
type KeySerializer interface {
	SerializeKey(namespace, viewerID string) string
}

type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey joins namespace and viewerID with KeySeparator. Separators
// inside viewerID are escaped so two viewers never share a key.
func (s *defaultKeySerializer) SerializeKey(namespace, viewerID string) string {
	if viewerID == "" {
		return namespace
	}
	return namespace + KeySeparator + strings.ReplaceAll(viewerID, KeySeparator, `\:\:`)
}
