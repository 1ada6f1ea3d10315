package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mescon/Linkarr/internal/domain"
	"github.com/mescon/Linkarr/internal/eventbus"
	"github.com/mescon/Linkarr/internal/logger"
)

// MetricsService exposes Prometheus metrics for Linkarr
type MetricsService struct {
	eventBus eventbus.Publisher

	// Counters
	filesDetected      prometheus.Counter
	importsTotal       *prometheus.CounterVec
	skipsTotal         *prometheus.CounterVec
	parseFailures      prometheus.Counter
	placementFailures  prometheus.Counter
	retriesScheduled   prometheus.Counter
	pathsAbandoned     prometheus.Counter
	scansTotal         prometheus.Counter
	notificationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsService creates and registers Prometheus metrics
func NewMetricsService(eb eventbus.Publisher) *MetricsService {
	m := &MetricsService{
		eventBus: eb,

		filesDetected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linkarr_files_detected_total",
				Help: "Total number of candidate files announced by event sources",
			},
		),

		importsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkarr_imports_total",
				Help: "Total number of files placed into the library by outcome",
			},
			[]string{"outcome"}, // linked, upgraded
		),

		skipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkarr_skips_total",
				Help: "Total number of files skipped by reason",
			},
			[]string{"reason"},
		),

		parseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linkarr_parse_failures_total",
				Help: "Total number of filenames that defeated the parser",
			},
		),

		placementFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linkarr_placement_failures_total",
				Help: "Total number of failed placement attempts",
			},
		),

		retriesScheduled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linkarr_retries_scheduled_total",
				Help: "Total number of stability re-checks scheduled",
			},
		),

		pathsAbandoned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linkarr_paths_abandoned_total",
				Help: "Total number of paths abandoned after exhausting retries",
			},
		),

		scansTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linkarr_scans_total",
				Help: "Total number of completed watch folder rescans",
			},
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkarr_notifications_total",
				Help: "Total number of notifications by outcome",
			},
			[]string{"outcome"}, // sent, failed
		),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.filesDetected,
		m.importsTotal,
		m.skipsTotal,
		m.parseFailures,
		m.placementFailures,
		m.retriesScheduled,
		m.pathsAbandoned,
		m.scansTotal,
		m.notificationsTotal,
	)

	return m
}

// Start subscribes to pipeline events and begins recording metrics.
func (m *MetricsService) Start() {
	m.eventBus.Subscribe(domain.FileDetected, func(e domain.Event) {
		m.filesDetected.Inc()
	})
	m.eventBus.Subscribe(domain.FileLinked, func(e domain.Event) {
		m.importsTotal.WithLabelValues("linked").Inc()
	})
	m.eventBus.Subscribe(domain.FileUpgraded, func(e domain.Event) {
		m.importsTotal.WithLabelValues("upgraded").Inc()
	})
	m.eventBus.Subscribe(domain.FileSkipped, func(e domain.Event) {
		m.skipsTotal.WithLabelValues(e.GetStringOr("reason", "unknown")).Inc()
	})
	m.eventBus.Subscribe(domain.ParseFailed, func(e domain.Event) {
		m.parseFailures.Inc()
	})
	m.eventBus.Subscribe(domain.PlacementFailed, func(e domain.Event) {
		m.placementFailures.Inc()
	})
	m.eventBus.Subscribe(domain.RetryScheduled, func(e domain.Event) {
		m.retriesScheduled.Inc()
	})
	m.eventBus.Subscribe(domain.PathAbandoned, func(e domain.Event) {
		m.pathsAbandoned.Inc()
	})
	m.eventBus.Subscribe(domain.ScanCompleted, func(e domain.Event) {
		m.scansTotal.Inc()
	})
	m.eventBus.Subscribe(domain.NotificationSent, func(e domain.Event) {
		m.notificationsTotal.WithLabelValues("sent").Inc()
	})
	m.eventBus.Subscribe(domain.NotificationFailed, func(e domain.Event) {
		m.notificationsTotal.WithLabelValues("failed").Inc()
	})

	logger.Infof("Metrics service started")
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
