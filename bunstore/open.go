package bunstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Open connects to driver at dsn and wraps the handle in a bun.DB with the
// matching dialect.
func Open(driver, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("bunstore: open %s: %w", driver, err)
	}

	switch driver {
	case DriverSQLite:
		// sqlite serialises writers; one connection keeps in-memory
		// databases shared across the pool.
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		sqldb.Close()
		return nil, fmt.Errorf("bunstore: unsupported driver %q", driver)
	}
}

// CreateSchema creates the posts, likes and follows tables and their
// lookup indexes if they do not exist.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*PostRecord)(nil),
		(*LikeRecord)(nil),
		(*FollowRecord)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("bunstore: create table: %w", err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
		unique  bool
	}{
		{(*PostRecord)(nil), "idx_posts_author_created", []string{"author_id", "created_at"}, false},
		{(*PostRecord)(nil), "idx_posts_created", []string{"created_at", "id"}, false},
		{(*LikeRecord)(nil), "idx_likes_user_post", []string{"user_id", "post_id"}, true},
		{(*FollowRecord)(nil), "idx_follows_edge", []string{"follower_id", "followee_id"}, true},
	}
	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("bunstore: create index %s: %w", idx.name, err)
		}
	}
	return nil
}
