package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the hook's prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	callbacks       *prometheus.CounterVec
	callbackLatency *prometheus.HistogramVec
	ordersPlaced    *prometheus.CounterVec
	ordersCanceled  *prometheus.CounterVec
	ordersEvicted   *prometheus.CounterVec
	fills           *prometheus.CounterVec
	bookDepth       *prometheus.GaugeVec
	published       *prometheus.CounterVec
}

// New creates the collectors under namespace and registers them.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_callbacks_total",
			Help:      "Hook callbacks by name and outcome",
		}, []string{"callback", "outcome"}),

		callbackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hook_callback_seconds",
			Help:      "Hook callback latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 15),
		}, []string{"callback"}),

		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders accepted by the book",
		}, []string{"pool", "side"}),

		ordersCanceled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_canceled_total",
			Help:      "Orders canceled by their owner",
		}, []string{"pool"}),

		ordersEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_evicted_total",
			Help:      "Orders evicted by the depth cap",
		}, []string{"pool"}),

		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Resting orders filled, partially or fully",
		}, []string{"pool", "side"}),

		bookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orderbook_depth",
			Help:      "Resting orders by side",
		}, []string{"pool", "side"}),

		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to each sink",
		}, []string{"sink", "outcome"}),
	}

	registry.MustRegister(
		m.callbacks,
		m.callbackLatency,
		m.ordersPlaced,
		m.ordersCanceled,
		m.ordersEvicted,
		m.fills,
		m.bookDepth,
		m.published,
	)
	return m
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCallback records one callback invocation.
func (m *Metrics) ObserveCallback(name string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(name, outcome(err)).Inc()
	m.callbackLatency.WithLabelValues(name).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RecordOrderPlaced(pool, side string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(pool, side).Inc()
}

func (m *Metrics) RecordOrderCanceled(pool string) {
	if m == nil {
		return
	}
	m.ordersCanceled.WithLabelValues(pool).Inc()
}

func (m *Metrics) RecordOrderEvicted(pool string) {
	if m == nil {
		return
	}
	m.ordersEvicted.WithLabelValues(pool).Inc()
}

// RecordFills counts n fills against resting orders of side.
func (m *Metrics) RecordFills(pool, side string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.fills.WithLabelValues(pool, side).Add(float64(n))
}

// UpdateBookDepth sets the resting order count of one side.
func (m *Metrics) UpdateBookDepth(pool, side string, n int) {
	if m == nil {
		return
	}
	m.bookDepth.WithLabelValues(pool, side).Set(float64(n))
}

// RecordPublish counts one event handed to sink.
func (m *Metrics) RecordPublish(sink string, err error) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(sink, outcome(err)).Inc()
}
