package bunstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-feed-cache/feed"
)

// DefaultMaxMembership mirrors the membership limit of document stores the
// feed was first built against.
const DefaultMaxMembership = 10

// Store is a feed.Store over a SQL database. It also implements
// feed.LikeBatchStore.
type Store struct {
	db      *bun.DB
	posts   repository.Repository[*PostRecord]
	likes   repository.Repository[*LikeRecord]
	follows repository.Repository[*FollowRecord]

	maxMembership int
	logger        zerolog.Logger
	now           func() time.Time
}

var (
	_ feed.Store          = (*Store)(nil)
	_ feed.LikeBatchStore = (*Store)(nil)
)

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMaxMembership sets the largest AuthorIDs list QueryPosts accepts.
func WithMaxMembership(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMembership = n
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:            db,
		posts:         repository.NewRepository[*PostRecord](db, postHandlers()),
		likes:         repository.NewRepository[*LikeRecord](db, likeHandlers()),
		follows:       repository.NewRepository[*FollowRecord](db, followHandlers()),
		maxMembership: DefaultMaxMembership,
		logger:        zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) DB() *bun.DB {
	return s.db
}

// QueryPosts runs the single supported query shape. Rows that fail to decode
// are logged and skipped.
func (s *Store) QueryPosts(ctx context.Context, q feed.PostQuery) ([]feed.Post, error) {
	if len(q.AuthorIDs) > s.maxMembership {
		return nil, fmt.Errorf("%w: %d ids, limit %d", feed.ErrMembershipTooLarge, len(q.AuthorIDs), s.maxMembership)
	}

	criteria := []repository.SelectCriteria{
		func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("created_at DESC", "id DESC")
		},
	}
	if !q.Broad() {
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("author_id IN (?)", bun.In(q.AuthorIDs))
		})
	}
	if !q.Before.IsZero() {
		before := q.Before.UTC()
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("created_at < ?", before)
		})
	}
	if q.Limit > 0 {
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Limit(q.Limit)
		})
	}

	records, _, err := s.posts.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}

	out := make([]feed.Post, 0, len(records))
	for _, r := range records {
		p, err := r.toPost()
		if err != nil {
			s.logger.Warn().Err(err).Str("post_id", r.ID.String()).Msg("skipping undecodable post")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) LikeExists(ctx context.Context, postID, viewerID string) (bool, error) {
	n, err := s.likes.Count(ctx, func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Where("post_id = ?", postID).Where("user_id = ?", viewerID)
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) LikedPostIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool)
	if len(postIDs) == 0 {
		return liked, nil
	}
	if len(postIDs) > s.maxMembership {
		return nil, fmt.Errorf("%w: %d ids, limit %d", feed.ErrMembershipTooLarge, len(postIDs), s.maxMembership)
	}

	records, _, err := s.likes.List(ctx, func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Where("user_id = ?", viewerID).Where("post_id IN (?)", bun.In(postIDs))
	})
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		liked[r.PostID] = true
	}
	return liked, nil
}

func (s *Store) Followees(ctx context.Context, followerID string) ([]string, error) {
	records, _, err := s.follows.List(ctx, func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Where("follower_id = ?", followerID).Order("followee_id ASC")
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.FolloweeID)
	}
	return out, nil
}

// CreatePost stores p. A missing ID or CreatedAt is assigned; the stored
// post is returned.
func (s *Store) CreatePost(ctx context.Context, p feed.Post) (feed.Post, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	record, err := newPostRecord(p)
	if err != nil {
		return feed.Post{}, fmt.Errorf("bunstore: post record: %w", err)
	}
	created, err := s.posts.Create(ctx, record)
	if err != nil {
		return feed.Post{}, err
	}
	return created.toPost()
}

// Follow adds the edge followerID -> followeeID.
func (s *Store) Follow(ctx context.Context, followerID, followeeID string) error {
	edge := feed.FollowEdge{FollowerID: followerID, FolloweeID: followeeID}
	if err := edge.Validate(); err != nil {
		return err
	}

	n, err := s.follows.Count(ctx, edgeCriteria(followerID, followeeID))
	if err != nil {
		return err
	}
	if n > 0 {
		return feed.ErrAlreadyFollowing
	}

	_, err = s.follows.Create(ctx, &FollowRecord{
		ID:         uuid.New(),
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  s.now().UTC(),
	})
	return err
}

func (s *Store) Unfollow(ctx context.Context, followerID, followeeID string) error {
	n, err := s.follows.Count(ctx, edgeCriteria(followerID, followeeID))
	if err != nil {
		return err
	}
	if n == 0 {
		return feed.ErrNotFollowing
	}
	return s.follows.DeleteWhere(ctx, func(dq *bun.DeleteQuery) *bun.DeleteQuery {
		return dq.Where("follower_id = ?", followerID).Where("followee_id = ?", followeeID)
	})
}

// Like records a like and bumps the post counter in one transaction.
// It reports false if the like already existed.
func (s *Store) Like(ctx context.Context, postID, viewerID string) (bool, error) {
	if viewerID == "" {
		return false, feed.ErrViewerRequired
	}
	exists, err := s.LikeExists(ctx, postID, viewerID)
	if err != nil || exists {
		return false, err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := s.likes.CreateTx(ctx, tx, &LikeRecord{
			ID:        uuid.New(),
			PostID:    postID,
			UserID:    viewerID,
			CreatedAt: s.now().UTC(),
		})
		if err != nil {
			return err
		}
		return s.bumpLikes(ctx, tx, postID, 1)
	})
	return err == nil, err
}

// Unlike removes a like. It reports false if there was none.
func (s *Store) Unlike(ctx context.Context, postID, viewerID string) (bool, error) {
	exists, err := s.LikeExists(ctx, postID, viewerID)
	if err != nil || !exists {
		return false, err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := s.likes.DeleteWhereTx(ctx, tx, func(dq *bun.DeleteQuery) *bun.DeleteQuery {
			return dq.Where("post_id = ?", postID).Where("user_id = ?", viewerID)
		})
		if err != nil {
			return err
		}
		return s.bumpLikes(ctx, tx, postID, -1)
	})
	return err == nil, err
}

func (s *Store) bumpLikes(ctx context.Context, tx bun.IDB, postID string, delta int) error {
	id, err := uuid.Parse(postID)
	if err != nil {
		// likes on posts outside this store keep no counter
		return nil
	}
	_, err = tx.NewUpdate().
		Model((*PostRecord)(nil)).
		Set("like_count = like_count + ?", delta).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func edgeCriteria(followerID, followeeID string) repository.SelectCriteria {
	return func(sq *bun.SelectQuery) *bun.SelectQuery {
		return sq.Where("follower_id = ?", followerID).Where("followee_id = ?", followeeID)
	}
}

