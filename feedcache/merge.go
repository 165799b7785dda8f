package feedcache

import "github.com/goliatone/go-feed-cache/feed"

// SeenSet holds the post ids already handed out by one operation.
type SeenSet map[string]struct{}

// NewSeenSet seeds a set with the ids of displayed.
func NewSeenSet(displayed ...feed.Post) SeenSet {
	s := make(SeenSet, len(displayed))
	for _, p := range displayed {
		s[p.ID] = struct{}{}
	}
	return s
}

func (s SeenSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s SeenSet) Add(id string) {
	s[id] = struct{}{}
}

// Merge concatenates batches, drops posts whose id is in seen, records the
// survivors in seen and returns them in feed order. A nil seen is treated
// as empty.
func Merge(batches [][]feed.Post, seen SeenSet) []feed.Post {
	if seen == nil {
		seen = SeenSet{}
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}

	out := make([]feed.Post, 0, total)
	for _, batch := range batches {
		for _, p := range batch {
			if seen.Has(p.ID) {
				continue
			}
			seen.Add(p.ID)
			out = append(out, p)
		}
	}

	feed.SortPosts(out)
	return out
}
