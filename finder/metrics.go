package finder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	windowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findtofollow_windows_processed_total",
		Help: "Number of id windows looked up and filtered",
	})

	profilesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "findtofollow_profiles_fetched_total",
		Help: "Profiles fed into the filter, by where they came from",
	}, []string{"source"})

	profilesPassed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "findtofollow_profiles_passed_total",
		Help: "Profiles that passed the filter",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "findtofollow_run_duration_seconds",
		Help:    "Wall time of successful runs",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
