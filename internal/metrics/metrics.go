// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts requests per route and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vecdb",
		Name:      "http_requests_total",
		Help:      "HTTP requests processed, by route and status code.",
	}, []string{"route", "code"})

	// UpsertTotal counts records written.
	UpsertTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecdb",
		Name:      "upsert_total",
		Help:      "Records written through the upsert path.",
	})

	// SearchTotal counts searches served.
	SearchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecdb",
		Name:      "search_total",
		Help:      "Vector searches served.",
	})

	// WALAppendTotal counts log entries appended.
	WALAppendTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecdb",
		Name:      "wal_append_total",
		Help:      "Write-ahead log entries appended.",
	})

	// SnapshotSeconds observes snapshot durations.
	SnapshotSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vecdb",
		Name:      "snapshot_duration_seconds",
		Help:      "Time spent serializing all indexes to the snapshot directory.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
