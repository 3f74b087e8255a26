package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values
const (
	ResultSuccess = "success"
)

// RatesMetrics holds the collectors for rate fetches and conversions
type RatesMetrics struct {
	registry *prometheus.Registry

	FetchTotal        *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	SnapshotSize      prometheus.Gauge
	SnapshotFetchedAt prometheus.Gauge

	ConversionsTotal *prometheus.CounterVec
}

// NewRatesMetrics registers all collectors on a fresh registry
func NewRatesMetrics() *RatesMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &RatesMetrics{
		registry: registry,

		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_fetch_total",
				Help: "Rate feed fetches by provider and result",
			},
			[]string{"provider", "result"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rates_fetch_duration_seconds",
				Help:    "Rate feed fetch latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		SnapshotSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_snapshot_size",
				Help: "Number of currencies in the current rate snapshot",
			},
		),
		SnapshotFetchedAt: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_snapshot_fetched_timestamp_seconds",
				Help: "Unix time the current rate snapshot was fetched",
			},
		),
		ConversionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversions_total",
				Help: "Conversions by result",
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *RatesMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *RatesMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
