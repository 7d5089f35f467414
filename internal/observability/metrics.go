package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	settlements *prometheus.CounterVec
	accepts     *prometheus.CounterVec
	conflicts   prometheus.Counter
	cacheLookup *prometheus.CounterVec
	quotations  *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mrp_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mrp_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mrp_settlement_status_total",
		Help: "Derived invoice settlement statuses by display status.",
	}, []string{"status"})
	accepts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mrp_stocktaking_accept_total",
		Help: "Stocktaking item accept attempts by outcome.",
	}, []string{"outcome"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mrp_stocktaking_conflicts_total",
		Help: "Reservation conflicts reported by preflight and completion checks.",
	})
	cacheLookup := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mrp_cache_lookups_total",
		Help: "Cache lookups by cache name and result.",
	}, []string{"cache", "result"})
	quotations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mrp_quotations_total",
		Help: "Computed quotations by labor time source.",
	}, []string{"source"})
	registry.MustRegister(requests, duration, settlements, accepts, conflicts, cacheLookup, quotations)
	for _, status := range []string{"paid", "partially_paid", "unpaid", "overdue"} {
		settlements.WithLabelValues(status)
	}
	for _, source := range []string{"matrix", "estimated"} {
		quotations.WithLabelValues(source)
	}
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		settlements:     settlements,
		accepts:         accepts,
		conflicts:       conflicts,
		cacheLookup:     cacheLookup,
		quotations:      quotations,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveSettlement counts one derived settlement status.
func (m *Metrics) ObserveSettlement(status string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status).Inc()
}

// ObserveAccept counts one accept attempt.
func (m *Metrics) ObserveAccept(outcome string) {
	if m == nil {
		return
	}
	m.accepts.WithLabelValues(outcome).Inc()
}

// ObserveConflicts adds reported reservation conflicts.
func (m *Metrics) ObserveConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflicts.Add(float64(n))
}

// CacheHit counts a cache hit.
func (m *Metrics) CacheHit(name string) {
	if m == nil {
		return
	}
	m.cacheLookup.WithLabelValues(name, "hit").Inc()
}

// CacheMiss counts a cache miss.
func (m *Metrics) CacheMiss(name string) {
	if m == nil {
		return
	}
	m.cacheLookup.WithLabelValues(name, "miss").Inc()
}

// ObserveQuotation counts a computed quotation.
func (m *Metrics) ObserveQuotation(estimated bool) {
	if m == nil {
		return
	}
	source := "matrix"
	if estimated {
		source = "estimated"
	}
	m.quotations.WithLabelValues(source).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
