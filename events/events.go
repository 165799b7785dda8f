package events

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-feed-cache/feed"
)

// Subjects carrying feed mutations. Payloads are JSON encoded Event values.
const (
	SubjectPostCreated   = "feed.post.created"
	SubjectFollowChanged = "feed.follow.changed"
	SubjectLikeChanged   = "feed.like.changed"
	SubjectSignedOut     = "feed.session.signed_out"
)

// Subjects lists every subject the Handler consumes.
var Subjects = []string{
	SubjectPostCreated,
	SubjectFollowChanged,
	SubjectLikeChanged,
	SubjectSignedOut,
}

var ErrPostRequired = errors.New("events: post id required")

// Event is the payload shared by all subjects. PostID and Liked are only
// read on SubjectLikeChanged.
type Event struct {
	ViewerID string `json:"viewer_id"`
	PostID   string `json:"post_id,omitempty"`
	Liked    bool   `json:"liked,omitempty"`
}

// Validate checks the fields subject needs.
func (e Event) Validate(subject string) error {
	if e.ViewerID == "" {
		return feed.ErrViewerRequired
	}
	if subject == SubjectLikeChanged && e.PostID == "" {
		return ErrPostRequired
	}
	return nil
}

func (e Event) String() string {
	if e.PostID == "" {
		return fmt.Sprintf("viewer=%s", e.ViewerID)
	}
	return fmt.Sprintf("viewer=%s post=%s liked=%t", e.ViewerID, e.PostID, e.Liked)
}
