package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptcanvas",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "promptcanvas",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)

	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptcanvas",
			Name:      "generations_total",
			Help:      "Total image generation attempts",
		},
		[]string{"identity_type", "status"},
	)

	QuotaDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptcanvas",
			Name:      "quota_denied_total",
			Help:      "Requests rejected by the daily usage limit",
		},
		[]string{"identity_type"},
	)

	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptcanvas",
			Name:      "store_writes_total",
			Help:      "Atomic file writes performed by the persistent store",
		},
		[]string{"collection", "status"},
	)

	StoreSnapshotsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "promptcanvas",
			Name:      "store_snapshots_total",
			Help:      "Timestamped backup snapshots taken",
		},
	)

	StoreRecoveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "promptcanvas",
			Name:      "store_recoveries_total",
			Help:      "Reads served from a .backup file after a corrupt or missing primary",
		},
	)
)

// Middleware records request counts and latencies per route. It uses the
// route template, not the raw URL, to keep the label cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		RequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
