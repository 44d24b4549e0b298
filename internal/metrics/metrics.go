package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Lifecycle
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_status_transitions_total",
			Help: "Media status transitions applied",
		},
		[]string{"from", "to"},
	)

	TransitionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_status_transition_rejections_total",
			Help: "Status transitions rejected by the compare-and-swap guard",
		},
		[]string{"to"},
	)

	MediaByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediavault_media",
			Help: "Media rows by status",
		},
		[]string{"status"},
	)

	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_imports_total",
			Help: "Files imported into the vault",
		},
		[]string{"result"},
	)

	// Uploads
	UploadAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_upload_attempts_total",
			Help: "Upload attempts by outcome",
		},
		[]string{"result"}, // "uploaded", "error", "timeout", "breaker_open", "interrupted"
	)

	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediavault_upload_duration_seconds",
			Help:    "Duration of upload attempts",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)

	// Bus and reconciler
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_events_published_total",
			Help: "Notification bus events published",
		},
		[]string{"kind"},
	)

	CollectionsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_collections_reclaimed_total",
			Help: "Empty collections removed by the reconciler",
		},
	)

	// Cache
	CacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediavault_cache_bytes",
			Help: "Bytes held in the materialization cache",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediavault_cache_entries",
			Help: "Files held in the materialization cache",
		},
	)
)

// RecordTransition counts an applied status change.
func RecordTransition(from, to string) {
	TransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordRejectedTransition counts a transition lost to a concurrent writer.
func RecordRejectedTransition(to string) {
	TransitionRejections.WithLabelValues(to).Inc()
}

// RecordImport counts one imported file.
func RecordImport(err error) {
	result := "sealed"
	if err != nil {
		result = "failed"
	}
	ImportsTotal.WithLabelValues(result).Inc()
}

// RecordUpload records an upload attempt outcome and its duration.
func RecordUpload(result string, duration time.Duration) {
	UploadAttempts.WithLabelValues(result).Inc()
	if duration > 0 {
		UploadDuration.Observe(duration.Seconds())
	}
}

// RecordEvent counts a published bus event.
func RecordEvent(kind string) {
	EventsPublished.WithLabelValues(kind).Inc()
}

// RecordReclaimed counts removed empty collections.
func RecordReclaimed(n int) {
	if n > 0 {
		CollectionsReclaimed.Add(float64(n))
	}
}

// UpdateStatusGauges replaces the per-status gauges.
func UpdateStatusGauges(counts map[string]int) {
	MediaByStatus.Reset()
	for status, count := range counts {
		MediaByStatus.WithLabelValues(status).Set(float64(count))
	}
}

// UpdateCacheGauges records the cache footprint.
func UpdateCacheGauges(bytes int64, entries int) {
	CacheBytes.Set(float64(bytes))
	CacheEntries.Set(float64(entries))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
