package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RetrievalMetrics observes retrieval passes and per-document ingestion.
type RetrievalMetrics struct {
	service string

	passTotal         *prometheus.CounterVec
	passDuration      *prometheus.HistogramVec
	documentsTotal    *prometheus.CounterVec
	fragmentsIngested *prometheus.CounterVec
	searchDuration    *prometheus.HistogramVec
}

// NewRetrievalMetrics registers on registerer. A nil registerer gets a
// private registry, which keeps the collectors usable without /metrics.
func NewRetrievalMetrics(service string, registerer prometheus.Registerer) *RetrievalMetrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	passTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "passes_total",
			Help:      "Total retrieval passes by outcome status.",
		},
		[]string{"service", "status"},
	)
	passDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "pass_duration_seconds",
			Help:      "Retrieval pass duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "documents_total",
			Help:      "Documents handled per source by status.",
		},
		[]string{"service", "source", "status"},
	)
	fragmentsIngested := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "fragments_ingested_total",
			Help:      "Fragments added to the index per source.",
		},
		[]string{"service", "source"},
	)

	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Vector index search latency in seconds by answer path.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"service", "path"},
	)

	registerer.MustRegister(passTotal, passDuration, documentsTotal, fragmentsIngested, searchDuration)

	return &RetrievalMetrics{
		service:           service,
		passTotal:         passTotal,
		passDuration:      passDuration,
		documentsTotal:    documentsTotal,
		fragmentsIngested: fragmentsIngested,
		searchDuration:    searchDuration,
	}
}

func (m *RetrievalMetrics) ObserveDocument(source, status string, fragments int) {
	if status == "" {
		status = "unknown"
	}
	m.documentsTotal.WithLabelValues(m.service, source, status).Inc()
	if fragments > 0 {
		m.fragmentsIngested.WithLabelValues(m.service, source).Add(float64(fragments))
	}
}

func (m *RetrievalMetrics) ObservePass(status string, _ int, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.passTotal.WithLabelValues(m.service, status).Inc()
	m.passDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

// ObserveSearch records one index search. Hit count is carried by the
// query answer metrics.
func (m *RetrievalMetrics) ObserveSearch(path string, _ int, duration time.Duration) {
	m.searchDuration.WithLabelValues(m.service, path).Observe(duration.Seconds())
}
