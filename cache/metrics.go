package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedcache_cache_lookups_total",
	Help: "Number of cache tier lookups by tier and result",
}, []string{"tier", "result"})

var staleWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedcache_cache_stale_writes_total",
	Help: "Number of cache writes rejected because the viewer was invalidated meanwhile",
}, []string{"tier"})

var snapshotOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedcache_snapshot_ops_total",
	Help: "Number of snapshot store operations by op and outcome",
}, []string{"op", "outcome"})
