// Package metrics holds the Prometheus collectors shared by the server and
// worker processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "findoc"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// JobsSubmitted counts accepted uploads by dispatch mode (queued or synchronous).
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_submitted_total",
		Help:      "Analyses accepted, by dispatch mode.",
	}, []string{"mode"})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finished_total",
		Help:      "Analyses reaching a terminal state, by status and error kind.",
	}, []string{"status", "error_kind"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Wall time from processing to terminal state.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_duration_seconds",
		Help:      "LLM agent stage latency by task.",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"task"})

	QueueFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_fallbacks_total",
		Help:      "Submissions executed synchronously because the broker was unavailable.",
	})

	WorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_busy",
		Help:      "Consumers currently executing a job.",
	})

	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "panics_recovered_total",
		Help:      "Panics caught by the HTTP recovery middleware, by route pattern.",
	}, []string{"route"})
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
