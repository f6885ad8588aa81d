package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queryTotal counts query executions by level and final state
	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_query_total",
		Help: "Total query executions by level and final state",
	}, []string{"level", "state"})

	// queryDuration tracks the time from execution to the end of the stream
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archive_query_duration_seconds",
		Help:    "Query duration in seconds, from execution until the cursor is released",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	}, []string{"level"})

	// queryRows counts streamed rows by outcome: yielded, dropped or skipped
	queryRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_query_rows_total",
		Help: "Total rows read from the store by level and outcome",
	}, []string{"level", "outcome"})

	// queryAggregateFallbacks counts rows whose aggregates were not stored for the view
	queryAggregateFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_query_aggregate_fallbacks_total",
		Help: "Rows that requested aggregates from the aggregate source",
	}, []string{"level"})

	// queryAncestorDecodes counts ancestor attribute sets assembled during streaming
	queryAncestorDecodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_query_ancestor_decodes_total",
		Help: "Ancestor attribute sets assembled, by ancestor level",
	}, []string{"level"})
)
