// Package feed defines the domain model shared by the feed cache engine:
// posts, follow edges, following sets, cache entries, the remote store ports
// and the error taxonomy.
//
// Feed order is CreatedAt descending with ties broken by descending ID. All
// sequences produced by the engine are strictly ordered and free of
// duplicate IDs; IsOrdered checks both.
package feed
