package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	stockOperations *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsConsumed  *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		stockOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_stock_operations_total",
			Help: "Stock engine operations by outcome.",
		}, []string{"op", "result"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_requests_total",
			Help: "Product cache lookups by outcome.",
		}, []string{"result"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "ProductCreated publications by outcome.",
		}, []string{"result"}),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "ProductCreated deliveries by outcome.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.stockOperations, m.cacheRequests, m.eventsPublished, m.eventsConsumed, m.httpDuration)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) StockOperation(op string, err error) {
	if m == nil {
		return
	}
	m.stockOperations.WithLabelValues(op, ResultLabel(err)).Inc()
}

func (m *Metrics) CacheHit(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) EventPublished(err error) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(ResultLabel(err)).Inc()
}

func (m *Metrics) EventConsumed(err error) {
	if m == nil {
		return
	}
	m.eventsConsumed.WithLabelValues(ResultLabel(err)).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ResultLabel collapses an error into a low-cardinality label value.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
