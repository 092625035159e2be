package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aqualog"

var (
	once sync.Once

	intakeLogged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_events_total",
			Help:      "Count of intake events recorded locally.",
		},
	)

	intakeVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_volume_ml_total",
			Help:      "Total water volume recorded locally, in millilitres.",
		},
	)

	intakeDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_deleted_total",
			Help:      "Count of intake events removed locally.",
		},
	)

	syncRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Count of records moved by the sync reconciler by direction.",
		},
		[]string{"direction"},
	)

	syncFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_failures_total",
			Help:      "Count of failed sync phases.",
		},
		[]string{"phase"},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of full sync runs.",
			Buckets:   []float64{.05, .1, .5, 1, 2, 5, 10, 30},
		},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Count of hydration reminders by delivery status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of latencies for HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			intakeLogged, intakeVolume, intakeDeleted,
			syncRecords, syncFailures, syncDuration,
			remindersSent,
			httpRequests, httpDuration,
		)
	})
}

func IncIntakeLogged(amountMl int) {
	intakeLogged.Inc()
	intakeVolume.Add(float64(amountMl))
}

func AddIntakeDeleted(n int64) {
	intakeDeleted.Add(float64(n))
}

// AddSynced counts records pushed or pulled. direction is "push" or "pull".
func AddSynced(direction string, n int) {
	if n > 0 {
		syncRecords.WithLabelValues(direction).Add(float64(n))
	}
}

func IncSyncFailure(phase string) {
	syncFailures.WithLabelValues(phase).Inc()
}

func ObserveSyncDuration(start time.Time) {
	syncDuration.Observe(time.Since(start).Seconds())
}

func IncReminder(status string) {
	remindersSent.WithLabelValues(status).Inc()
}

// Middleware records request count and latency labelled by chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern is only complete once chi has finished routing, so it must be
// read after the handler ran.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
