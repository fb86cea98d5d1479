package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "takeout"

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	ordersSubmitted    prometheus.Counter
	orderAmount        prometheus.Counter
	cartOps            *prometheus.CounterVec
	lifecycleChanges   *prometheus.CounterVec
	lifecycleConflicts *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ordersSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders committed by checkout.",
		}),
		orderAmount: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_amount_total",
			Help:      "Sum of committed order amounts.",
		}),
		cartOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Cart mutations by operation.",
		}, []string{"op"}),
		lifecycleChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lifecycle_changes_total",
			Help:      "Applied status changes and deletions of catalog items.",
		}, []string{"kind", "op"}),
		lifecycleConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lifecycle_conflicts_total",
			Help:      "Status changes and deletions rejected by the lifecycle guard.",
		}, []string{"kind", "op"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) OrderSubmitted(amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.ordersSubmitted.Inc()
	m.orderAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) CartOp(op string) {
	if m == nil {
		return
	}
	m.cartOps.WithLabelValues(op).Inc()
}

func (m *Metrics) LifecycleChange(kind, op string) {
	if m == nil {
		return
	}
	m.lifecycleChanges.WithLabelValues(kind, op).Inc()
}

func (m *Metrics) LifecycleConflict(kind, op string) {
	if m == nil {
		return
	}
	m.lifecycleConflicts.WithLabelValues(kind, op).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
