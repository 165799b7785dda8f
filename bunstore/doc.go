// Package bunstore implements feed.Store on a SQL database through
// go-repository-bun.
//
// Posts, likes and follows live in three tables. QueryPosts keeps the
// restricted query shape of the document store the engine was designed for:
// an optional author membership list capped at WithMaxMembership ids, an
// optional created_at upper bound, newest first, and a limit.
//
//	db, err := bunstore.Open(bunstore.DriverSQLite, "file:feed.db")
//	if err != nil {
//		return err
//	}
//	if err := bunstore.CreateSchema(ctx, db); err != nil {
//		return err
//	}
//	store := bunstore.New(db, bunstore.WithLogger(logger))
package bunstore
