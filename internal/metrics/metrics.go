package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagemirror",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	jobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagemirror",
			Name:      "sync_jobs_enqueued_total",
			Help:      "Sync jobs created, by trigger type.",
		},
		[]string{"trigger"},
	)

	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagemirror",
			Name:      "sync_jobs_completed_total",
			Help:      "Finished sync attempts, by outcome (succeeded, retried, failed).",
		},
		[]string{"outcome"},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pagemirror",
			Name:      "sync_duration_seconds",
			Help:      "Wall time of a single page-sync attempt.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, jobsEnqueued, jobsCompleted, syncDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncEnqueued counts a newly created sync job.
func IncEnqueued(trigger string) {
	jobsEnqueued.WithLabelValues(trigger).Inc()
}

// IncCompleted counts a finished sync attempt by outcome.
func IncCompleted(outcome string) {
	jobsCompleted.WithLabelValues(outcome).Inc()
}

// ObserveSyncDuration records how long one sync attempt took.
func ObserveSyncDuration(seconds float64) {
	syncDuration.Observe(seconds)
}
