package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts events decoded and persisted.
	EventsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_events_ingested_total",
			Help: "Total number of contract events persisted",
		},
	)

	// EventWritesDropped counts events lost to store failures.
	EventWritesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_event_writes_dropped_total",
			Help: "Total number of events dropped because the store write failed",
		},
	)

	// ReorgNotices counts removed-log notifications from the node.
	ReorgNotices = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_reorg_notices_total",
			Help: "Total number of log notifications retracted by a chain reorganization",
		},
	)

	// SubscriptionRestarts counts subscription recovery cycles.
	SubscriptionRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_subscription_restarts_total",
			Help: "Total number of times the log subscription was restarted",
		},
	)

	// LookupsTotal counts lookups by outcome (found, not_found, error).
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_lookups_total",
			Help: "Total number of transaction lookups",
		},
		[]string{"outcome"},
	)

	// LookupAttempts tracks how many store queries a lookup needed.
	LookupAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_lookup_attempts",
			Help:    "Store queries per lookup before it resolved",
			Buckets: prometheus.LinearBuckets(1, 5, 7),
		},
	)
)
