package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// MentionsIngested counts per-candidate outcomes of the ingestion pipeline.
	MentionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_ingested_total",
			Help: "Mention candidates handled by the ingestion pipeline",
		},
		[]string{"source", "outcome"},
	)

	PointsAwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mention_points_awarded_total",
			Help: "Sum of points credited to accounts",
		},
	)

	PullRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mention_pull_run_duration_seconds",
			Help:    "Duration of pull-mode ingestion runs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	LeaderboardCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_cache_requests_total",
			Help: "Leaderboard cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheDegraded counts operations that continued without the cache.
	CacheDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_degraded_total",
			Help: "Operations that skipped the cache because it was unavailable",
		},
		[]string{"operation"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobqueue_jobs_total",
			Help: "Background jobs finished, by type and status",
		},
		[]string{"type", "status"},
	)
)

// Middleware records request metrics. Labels use the matched route template to
// keep cardinality low.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		labels := prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(c.Response().StatusCode()),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}
