package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FeedMetrics holds Prometheus metrics for feed generation.
// Export metrics carry profile and format labels.
type FeedMetrics struct {
	registry *prometheus.Registry

	ExportsTotal    *prometheus.CounterVec
	RecordsExported *prometheus.CounterVec
	ExportDuration  *prometheus.HistogramVec
	LastExportTime  *prometheus.GaugeVec
	EnrichDuration  *prometheus.HistogramVec
	ParentCacheHits *prometheus.CounterVec
	ParentLookups   *prometheus.CounterVec
	MissingPrices   *prometheus.CounterVec
	MissingImages   *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}

// NewFeedMetrics creates feed metrics registered on reg. A nil reg creates
// a private registry, which Registry returns.
func NewFeedMetrics(namespace string, reg *prometheus.Registry) *FeedMetrics {
	if namespace == "" {
		namespace = "feedgen"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)
	subsystem := "feed"

	return &FeedMetrics{
		registry: reg,

		// =======================================================================
		// Exports
		// =======================================================================
		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "exports_total",
				Help:      "Total feed exports",
			},
			[]string{"profile", "format", "status"}, // status: success, error
		),
		RecordsExported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "records_exported_total",
				Help:      "Total records written to feed files",
			},
			[]string{"profile", "format"},
		),
		ExportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "export_duration_seconds",
				Help:      "Time to serialize one feed file",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"profile", "format"},
		),
		LastExportTime: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful export",
			},
			[]string{"profile", "format"},
		),

		// =======================================================================
		// Enrichment
		// =======================================================================
		EnrichDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "enrich_duration_seconds",
				Help:      "Time to load and enrich the catalog of a profile run",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"profile"},
		),
		ParentCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "parent_cache_hits_total",
				Help:      "Variant rows served from the per-run parent cache",
			},
			[]string{"profile"},
		),
		ParentLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "parent_lookups_total",
				Help:      "Parent products loaded from the catalog",
			},
			[]string{"profile"},
		),
		MissingPrices: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "missing_prices_total",
				Help:      "Records exported without a resolvable price",
			},
			[]string{"profile"},
		),
		MissingImages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "missing_images_total",
				Help:      "Records exported without an image",
			},
			[]string{"profile"},
		),

		// =======================================================================
		// Delivery
		// =======================================================================
		PublishFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "publish_failures_total",
				Help:      "Feed uploads to storage that failed",
			},
			[]string{"profile", "format"},
		),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_published_total",
				Help:      "Export completion events sent",
			},
			[]string{"status"},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *FeedMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordExport records the outcome of one feed file.
func (m *FeedMetrics) RecordExport(profile, format string, records int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ExportsTotal.WithLabelValues(profile, format, status).Inc()
	if err != nil {
		return
	}
	m.RecordsExported.WithLabelValues(profile, format).Add(float64(records))
	m.ExportDuration.WithLabelValues(profile, format).Observe(duration.Seconds())
	m.LastExportTime.WithLabelValues(profile, format).SetToCurrentTime()
}

// RecordEnrichment records the catalog pass of one profile run.
func (m *FeedMetrics) RecordEnrichment(profile string, duration time.Duration, parentLookups, cacheHits, missingPrices, missingImages int) {
	if m == nil {
		return
	}
	m.EnrichDuration.WithLabelValues(profile).Observe(duration.Seconds())
	m.ParentLookups.WithLabelValues(profile).Add(float64(parentLookups))
	m.ParentCacheHits.WithLabelValues(profile).Add(float64(cacheHits))
	m.MissingPrices.WithLabelValues(profile).Add(float64(missingPrices))
	m.MissingImages.WithLabelValues(profile).Add(float64(missingImages))
}

// RecordPublishFailure counts a failed storage upload.
func (m *FeedMetrics) RecordPublishFailure(profile, format string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(profile, format).Inc()
}

// RecordEvent counts a completion event by outcome.
func (m *FeedMetrics) RecordEvent(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EventsPublished.WithLabelValues("error").Inc()
		return
	}
	m.EventsPublished.WithLabelValues("success").Inc()
}

// WriteTextfile writes every metric to path in the node_exporter textfile
// format, for one-shot runs that exit before a scrape.
func (m *FeedMetrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
