// Package metrics exposes Prometheus collectors for the tracking service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	crawlResultsTotal          *prometheus.CounterVec
	ingestResultsTotal         *prometheus.CounterVec
	workerBatchesTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		crawlResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_crawl_results_total",
				Help: "Total crawl outcomes produced by the worker, labeled by status.",
			},
			[]string{"status"},
		)

		ingestResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_ingest_results_total",
				Help: "Total reported results ingested by the API, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		workerBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_worker_batches_total",
				Help: "Total crawl batches run by the worker, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCrawlResult counts one worker crawl outcome.
func ObserveCrawlResult(status string) {
	if crawlResultsTotal == nil {
		return
	}
	crawlResultsTotal.WithLabelValues(status).Inc()
}

// ObserveIngest counts reported results by ingestion outcome.
func ObserveIngest(outcome string, n int) {
	if ingestResultsTotal == nil || n <= 0 {
		return
	}
	ingestResultsTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveBatch counts one worker batch run.
func ObserveBatch(kind, result string) {
	if workerBatchesTotal == nil {
		return
	}
	workerBatchesTotal.WithLabelValues(kind, result).Inc()
}
