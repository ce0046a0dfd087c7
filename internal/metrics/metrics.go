// Package metrics exposes Prometheus collectors for the checker service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	checksTotal            *prometheus.CounterVec
	fetchRetriesTotal      *prometheus.CounterVec
	identityRotationsTotal prometheus.Counter
	rateLimitDelaySeconds  *prometheus.HistogramVec
	ratingsExtractedTotal  *prometheus.CounterVec
	extractFailuresTotal   *prometheus.CounterVec
	batchTasksTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		checksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checker_availability_checks_total",
				Help: "Total availability checks, labeled by page kind and verdict.",
			},
			[]string{"kind", "verdict"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checker_fetch_retries_total",
				Help: "Total fetch retries, labeled by error kind.",
			},
			[]string{"kind"},
		)

		identityRotationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "checker_identity_rotations_total",
				Help: "Total header identity rotations after rejections.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checker_rate_limit_delay_seconds",
				Help:    "Histogram of session pool token waits, labeled by tier.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"tier"},
		)

		ratingsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checker_ratings_extracted_total",
				Help: "Total ratings extracted from search fragments, labeled by vendor.",
			},
			[]string{"vendor"},
		)

		extractFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checker_extract_failures_total",
				Help: "Total parse/extraction failures, labeled by stage.",
			},
			[]string{"stage"},
		)

		batchTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checker_batch_tasks_total",
				Help: "Total per-identifier batch tasks, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCheck records one classified page fetch.
func ObserveCheck(kind string, available bool) {
	verdict := "unavailable"
	if available {
		verdict = "available"
	}
	checksTotal.WithLabelValues(kind, verdict).Inc()
}

// ObserveRetry increments the retry counter for the given error kind.
func ObserveRetry(kind string) {
	fetchRetriesTotal.WithLabelValues(kind).Inc()
}

// ObserveIdentityRotation counts one header identity swap.
func ObserveIdentityRotation() {
	identityRotationsTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a token bucket wait.
func ObserveRateLimitDelay(tier string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(tier).Observe(duration.Seconds())
}

// ObserveRating counts one extracted rating for a vendor.
func ObserveRating(vendor string) {
	ratingsExtractedTotal.WithLabelValues(vendor).Inc()
}

// ObserveExtractFailure counts one parse failure for a pipeline stage.
func ObserveExtractFailure(stage string) {
	extractFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveTask counts one finished per-identifier task.
func ObserveTask(stage string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	batchTasksTotal.WithLabelValues(stage, outcome).Inc()
}
