package feedcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var feedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedcache_feed_requests_total",
	Help: "Number of feed requests by how they were served",
}, []string{"source"})

var storeQueries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedcache_store_queries_total",
	Help: "Number of post queries sent to the store by fetch plan",
}, []string{"plan"})

var batchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedcache_batch_failures_total",
	Help: "Number of failed post queries by fetch plan",
}, []string{"plan"})

var decodeFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedcache_decode_failures_total",
	Help: "Number of store records dropped because they could not be used as posts",
})

var likeCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedcache_like_check_failures_total",
	Help: "Number of like checks that failed and defaulted to not liked",
})

var refreshOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedcache_background_refresh_total",
	Help: "Number of background refresh attempts by outcome",
}, []string{"outcome"})
