// Package events carries feed mutations over NATS.
//
// A writer publishes with Publisher after it commits a post, follow, like or
// sign out. Each cache node runs a Handler subscribed to the same subjects,
// which forwards the event to the feed engine so its cached feeds are
// invalidated or patched. Trace context travels in the message headers.
package events
