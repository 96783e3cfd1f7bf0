// Package metrics exposes Prometheus counters for collection, extraction and
// report synthesis.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intelbrief"

var (
	ArticlesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "articles_collected_total",
		Help:      "Articles returned by collection, by source.",
	}, []string{"source"})

	Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extractions_total",
		Help:      "Full-text extraction attempts by outcome (fetched, cached, failed).",
	}, []string{"outcome"})

	Narratives = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "narratives_total",
		Help:      "Narratives produced by origin (model, fallback, no_content).",
	}, []string{"origin"})

	Reports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_total",
		Help:      "Country reports assembled, by threat level.",
	}, []string{"threat_level"})

	ReportCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_cache_total",
		Help:      "Report cache lookups by result (hit, miss).",
	}, []string{"result"})

	CountryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "country_synthesis_duration_seconds",
		Help:      "Time to synthesize one country report.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)

// RecordExtraction counts one extraction outcome.
func RecordExtraction(outcome string) {
	Extractions.WithLabelValues(outcome).Inc()
}

// RecordNarrative counts one narrative by origin.
func RecordNarrative(origin string) {
	Narratives.WithLabelValues(origin).Inc()
}

// RecordReport counts one assembled report.
func RecordReport(level string, elapsed time.Duration) {
	Reports.WithLabelValues(level).Inc()
	CountryDuration.Observe(elapsed.Seconds())
}

// RecordCache counts a report cache lookup.
func RecordCache(hit bool) {
	if hit {
		ReportCache.WithLabelValues("hit").Inc()
		return
	}
	ReportCache.WithLabelValues("miss").Inc()
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
