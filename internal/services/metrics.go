package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aggregateLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_aggregate_lookups_total",
		Help: "Aggregate cache lookups by level and result (hit, miss, vanished).",
	}, []string{"level", "result"})

	aggregateComputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archive_aggregate_compute_duration_seconds",
		Help:    "Time spent computing aggregates from instances.",
		Buckets: prometheus.DefBuckets,
	}, []string{"level"})

	patientResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_patient_resolutions_total",
		Help: "Patient identity resolutions by outcome.",
	}, []string{"outcome"})

	storedInstances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_stored_instances_total",
		Help: "Store requests by outcome.",
	}, []string{"outcome"})

	refreshJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_aggregate_refresh_jobs_total",
		Help: "Aggregate refresh jobs processed by outcome.",
	}, []string{"outcome"})
)
