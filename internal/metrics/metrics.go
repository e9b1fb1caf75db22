// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "brainplus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route and status class.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RedirectResolutionsTotal разделяет настоящие попадания и fallback
	RedirectResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirect_resolutions_total",
			Help:      "Redirect token resolutions by outcome (hit, fallback, error).",
		},
		[]string{"outcome"},
	)

	RedirectMintsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redirect_mints_total",
		Help:      "Redirect tokens minted.",
	})

	RedirectTokenCollisionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redirect_token_collisions_total",
		Help:      "Generated tokens that collided with a live mapping and were regenerated.",
	})

	RiskScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "risk_scores",
		Help:      "Distribution of computed risk scores.",
		Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	RiskHighTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_high_total",
		Help:      "Scoring calls that crossed the high-risk threshold.",
	})

	RiskTrackedIdentities = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "risk_tracked_identities",
		Help:      "Identities with a live event history.",
	})

	AttributionEventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attribution_events_dropped_total",
		Help:      "Attribution events dropped because the worker buffer was full.",
	})

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter, by limiter scope.",
		},
		[]string{"scope"},
	)

	PointsAwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_awarded_total",
			Help:      "Points awarded for signal batches, by outcome (awarded, flagged).",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RedirectResolutionsTotal,
		RedirectMintsTotal,
		RedirectTokenCollisionsTotal,
		RiskScores,
		RiskHighTotal,
		RiskTrackedIdentities,
		AttributionEventsDroppedTotal,
		RateLimitedTotal,
		PointsAwardedTotal,
	)
}

// Middleware собирает метрики по каждому запросу
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// FullPath вместо URL.Path: токены в пути не должны раздувать кардинальность
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, path))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusBucket(c.Writer.Status())).Inc()
	}
}

// Handler отдаёт /metrics
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
