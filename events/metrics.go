package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedcache_events_handled_total",
	Help: "mutation events received, by subject and outcome",
}, []string{"subject", "outcome"})
