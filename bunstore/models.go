package bunstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-feed-cache/feed"
)

// PostRecord is the persisted row behind a feed.Post.
type PostRecord struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID           uuid.UUID `bun:"id,pk,type:varchar(36)"`
	AuthorID     string    `bun:"author_id,notnull"`
	Kind         string    `bun:"kind,notnull"`
	Content      string    `bun:"content"`
	Media        string    `bun:"media"`
	LikeCount    int       `bun:"like_count,notnull,default:0"`
	CommentCount int       `bun:"comment_count,notnull,default:0"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

// LikeRecord marks a post as liked by a user.
type LikeRecord struct {
	bun.BaseModel `bun:"table:likes,alias:l"`

	ID        uuid.UUID `bun:"id,pk,type:varchar(36)"`
	PostID    string    `bun:"post_id,notnull"`
	UserID    string    `bun:"user_id,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// FollowRecord is a directed follower -> followee edge.
type FollowRecord struct {
	bun.BaseModel `bun:"table:follows,alias:f"`

	ID         uuid.UUID `bun:"id,pk,type:varchar(36)"`
	FollowerID string    `bun:"follower_id,notnull"`
	FolloweeID string    `bun:"followee_id,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func newPostRecord(p feed.Post) (*PostRecord, error) {
	id := uuid.New()
	if p.ID != "" {
		parsed, err := uuid.Parse(p.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}

	media := ""
	if len(p.MediaURLs) > 0 {
		raw, err := json.Marshal(p.MediaURLs)
		if err != nil {
			return nil, err
		}
		media = string(raw)
	}

	return &PostRecord{
		ID:           id,
		AuthorID:     p.AuthorID,
		Kind:         string(p.Kind),
		Content:      p.Content,
		Media:        media,
		LikeCount:    p.LikeCount,
		CommentCount: p.CommentCount,
		CreatedAt:    p.CreatedAt.UTC(),
	}, nil
}

// toPost decodes a row. Rows with an unknown kind or unreadable media are
// reported as *feed.DecodeError.
func (r *PostRecord) toPost() (feed.Post, error) {
	id := r.ID.String()
	kind := feed.PostKind(r.Kind)
	if !kind.Valid() {
		return feed.Post{}, &feed.DecodeError{DocumentID: id, Reason: "unknown kind " + r.Kind}
	}

	var media []string
	if r.Media != "" {
		if err := json.Unmarshal([]byte(r.Media), &media); err != nil {
			return feed.Post{}, &feed.DecodeError{DocumentID: id, Reason: "media", Err: err}
		}
	}

	p := feed.Post{
		ID:           id,
		AuthorID:     r.AuthorID,
		CreatedAt:    r.CreatedAt.UTC(),
		Content:      r.Content,
		Kind:         kind,
		MediaURLs:    media,
		LikeCount:    r.LikeCount,
		CommentCount: r.CommentCount,
	}
	if err := feed.CheckPost(p); err != nil {
		return feed.Post{}, err
	}
	return p, nil
}
