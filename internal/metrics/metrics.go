// Package metrics holds the prometheus collectors shared by the store and the
// fetch pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "saveit"

// Result label values.
const (
	ResultOK       = "ok"
	ResultCached   = "cached"
	ResultDegraded = "degraded"
	ResultFailed   = "failed"
	ResultSkipped  = "skipped"
)

var (
	PreviewFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "preview_fetch_total",
			Help:      "Preview lookups by outcome",
		},
		[]string{"result"},
	)

	PreviewDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "preview_fetch_duration_seconds",
			Help:      "Time spent resolving a preview",
			Buckets:   prometheus.DefBuckets,
		},
	)

	ContentExtractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "content_extract_total",
			Help:      "Content extraction attempts by source and outcome",
		},
		[]string{"source", "result"},
	)

	PersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "store_persist_failures_total",
			Help:      "Snapshot saves that failed",
		},
		[]string{"collection"},
	)

	Links = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "links",
			Help:      "Stored links by reading status",
		},
		[]string{"status"},
	)

	RemindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reminders_sent_total",
			Help:      "Reading reminders delivered",
		},
	)
)

// SetLinkCounts publishes the number of links per status.
func SetLinkCounts(counts map[string]int) {
	for _, status := range []string{"unread", "reading", "completed"} {
		Links.WithLabelValues(status).Set(float64(counts[status]))
	}
}
