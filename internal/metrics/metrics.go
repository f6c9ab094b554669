// Package metrics exposes the framework's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors behind a dedicated registry, constructed at
// bootstrap and passed to whoever records. No ambient globals.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	storeQueries prometheus.Counter
	storeErrors  prometheus.Counter
	storeLatency prometheus.Histogram
}

// New builds the collector set.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modgate",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method"}),

		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modgate",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Total module method dispatches.",
		}, []string{"module", "method", "status"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modgate",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Duration of module method dispatches.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"module", "method"}),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modgate",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits in the data layer.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modgate",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses in the data layer.",
		}),
		storeQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modgate",
			Subsystem: "store",
			Name:      "queries_total",
			Help:      "Total statements sent to the relational store.",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modgate",
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Total store errors.",
		}),
		storeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "modgate",
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Latency of store statements.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.dispatches,
		m.dispatchDuration,
		m.cacheHits,
		m.cacheMisses,
		m.storeQueries,
		m.storeErrors,
		m.storeLatency,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPRequest records one completed HTTP request.
func (m *Metrics) HTTPRequest(method, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, status).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// InFlight adjusts the in-flight gauge by delta.
func (m *Metrics) InFlight(delta float64) {
	m.httpInFlight.Add(delta)
}

// Dispatch records one module method invocation.
func (m *Metrics) Dispatch(module, method, status string, d time.Duration) {
	m.dispatches.WithLabelValues(module, method, status).Inc()
	m.dispatchDuration.WithLabelValues(module, method).Observe(d.Seconds())
}

// CacheHit implements storage.Recorder.
func (m *Metrics) CacheHit() { m.cacheHits.Inc() }

// CacheMiss implements storage.Recorder.
func (m *Metrics) CacheMiss() { m.cacheMisses.Inc() }

// StoreQuery implements storage.Recorder.
func (m *Metrics) StoreQuery(d time.Duration) {
	m.storeQueries.Inc()
	m.storeLatency.Observe(d.Seconds())
}

// StoreError implements storage.Recorder.
func (m *Metrics) StoreError() { m.storeErrors.Inc() }
