package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector holds the service metrics. It implements engine.Observer
// so every session's worker reports into the same series.
type MetricsCollector struct {
	frameDuration  prometheus.Histogram
	fps            prometheus.Histogram
	ticksTotal     prometheus.Counter
	messagesTotal  *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	catalogReloads *prometheus.CounterVec
}

// NewMetricsCollector creates the metrics and registers them with reg
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	m := &MetricsCollector{
		frameDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orrery_frame_duration_seconds",
				Help:    "Time spent simulating and syncing one frame",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
		),
		fps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orrery_fps",
				Help:    "Frame rate reported to clients",
				Buckets: []float64{5, 15, 24, 30, 45, 55, 60, 90, 120},
			},
		),
		ticksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orrery_ticks_total",
				Help: "Total number of simulation ticks",
			},
		),
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orrery_messages_total",
				Help: "Inbound messages applied, by type",
			},
			[]string{"type"},
		),
		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orrery_outbound_dropped_total",
				Help: "Outbound messages dropped because a client was slow",
			},
			[]string{"type"},
		),
		rejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orrery_inbound_rejected_total",
				Help: "Inbound messages rejected before dispatch",
			},
			[]string{"reason"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orrery_sessions_active",
				Help: "Connected websocket sessions",
			},
		),
		catalogReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orrery_catalog_reloads_total",
				Help: "Catalog file reloads",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.frameDuration,
		m.fps,
		m.ticksTotal,
		m.messagesTotal,
		m.droppedTotal,
		m.rejectedTotal,
		m.sessionsActive,
		m.catalogReloads,
	)
	return m
}

func (m *MetricsCollector) ObserveMessage(kind string) {
	m.messagesTotal.WithLabelValues(kind).Inc()
}

func (m *MetricsCollector) ObserveTick(d time.Duration) {
	m.ticksTotal.Inc()
	m.frameDuration.Observe(d.Seconds())
}

func (m *MetricsCollector) ObserveFPS(fps int) {
	m.fps.Observe(float64(fps))
}

func (m *MetricsCollector) ObserveDrop(kind string) {
	m.droppedTotal.WithLabelValues(kind).Inc()
}

func (m *MetricsCollector) RecordRejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

func (m *MetricsCollector) SessionOpened() {
	m.sessionsActive.Inc()
}

func (m *MetricsCollector) SessionClosed() {
	m.sessionsActive.Dec()
}

func (m *MetricsCollector) RecordCatalogReload(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.catalogReloads.WithLabelValues(result).Inc()
}

// MetricsHandler serves the metrics gathered by g
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
