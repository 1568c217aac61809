package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attribly_store_query_duration_seconds",
			Help:    "Store query duration in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"query"},
	)

	QueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribly_store_query_errors_total",
			Help: "Total number of failed store queries",
		},
		[]string{"query"},
	)

	ReportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attribly_report_duration_seconds",
			Help:    "Time to compute a channel report",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"channel"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribly_cache_lookups_total",
			Help: "Report cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribly_http_requests_total",
			Help: "Total HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(QueryDuration)
		prometheus.MustRegister(QueryErrors)
		prometheus.MustRegister(ReportDuration)
		prometheus.MustRegister(CacheLookups)
		prometheus.MustRegister(HTTPRequests)
	})
}

// ObserveQuery records the duration and outcome of one store query.
func ObserveQuery(query string, start time.Time, err error) {
	QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	if err != nil {
		QueryErrors.WithLabelValues(query).Inc()
	}
}

func ObserveReport(channel string, start time.Time) {
	ReportDuration.WithLabelValues(channel).Observe(time.Since(start).Seconds())
}

// Cache lookup results
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

func ObserveCache(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

func ObserveRequest(route string, status int) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
