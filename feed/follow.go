package feed

import (
	"sort"
	"time"
)

// FollowEdge records that FollowerID follows FolloweeID. At most one edge
// exists per ordered pair.
type FollowEdge struct {
	FollowerID string
	FolloweeID string
	CreatedAt  time.Time
}

// Validate rejects empty ids and self edges.
func (e FollowEdge) Validate() error {
	if e.FollowerID == "" || e.FolloweeID == "" {
		return ErrViewerRequired
	}
	if e.FollowerID == e.FolloweeID {
		return ErrSelfFollow
	}
	return nil
}

// FollowingSet is the set of authors whose posts appear in a viewer's feed.
// The viewer is always a member.
type FollowingSet struct {
	ViewerID string
	UserIDs  []string
	CachedAt time.Time
}

// NewFollowingSet builds the following set for viewerID from its followees.
// UserIDs is deduplicated, sorted and always contains the viewer.
func NewFollowingSet(viewerID string, followees []string, at time.Time) FollowingSet {
	members := make(map[string]struct{}, len(followees)+1)
	if viewerID != "" {
		members[viewerID] = struct{}{}
	}
	for _, id := range followees {
		if id == "" {
			continue
		}
		members[id] = struct{}{}
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return FollowingSet{
		ViewerID: viewerID,
		UserIDs:  ids,
		CachedAt: at,
	}
}

// Len returns the number of members.
func (s FollowingSet) Len() int {
	return len(s.UserIDs)
}

// Contains reports whether userID is a member. UserIDs is kept sorted.
func (s FollowingSet) Contains(userID string) bool {
	i := sort.SearchStrings(s.UserIDs, userID)
	return i < len(s.UserIDs) && s.UserIDs[i] == userID
}

// Members returns the set as a lookup map.
func (s FollowingSet) Members() map[string]struct{} {
	m := make(map[string]struct{}, len(s.UserIDs))
	for _, id := range s.UserIDs {
		m[id] = struct{}{}
	}
	return m
}

// Batches splits the members into consecutive chunks of at most size ids.
func (s FollowingSet) Batches(size int) [][]string {
	if size <= 0 || len(s.UserIDs) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(s.UserIDs)+size-1)/size)
	for i := 0; i < len(s.UserIDs); i += size {
		end := i + size
		if end > len(s.UserIDs) {
			end = len(s.UserIDs)
		}
		out = append(out, s.UserIDs[i:end])
	}
	return out
}
