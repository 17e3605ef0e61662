package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmextract_extractions_total",
			Help: "Extractions by output format and outcome.",
		},
		[]string{"format", "outcome"},
	)

	extractionSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmextract_extraction_duration_seconds",
			Help:    "Duration of extractions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 16), // 0.5s to ~9h
		},
		[]string{"format"},
	)

	outputBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmextract_output_bytes_total",
			Help: "Uncompressed bytes of produced files.",
		},
		[]string{"format"},
	)

	converterFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmextract_converter_failures_total",
			Help: "Failed or timed out external converter runs.",
		},
		[]string{"format", "timeout"},
	)

	rowsStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osmextract_rows_streamed_total",
			Help: "Rows streamed from the database cursor.",
		},
	)

	indexHints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmextract_index_hints_total",
			Help: "Selected spatial index hints by kind.",
		},
		[]string{"kind"},
	)
)

const (
	OutcomeOK          = "ok"
	OutcomeFailed      = "failed"
	OutcomeUnconfirmed = "unconfirmed"
)

func ObserveExtraction(format, outcome string, d time.Duration, bytes int64) {
	extractionsTotal.WithLabelValues(format, outcome).Inc()
	extractionSeconds.WithLabelValues(format).Observe(d.Seconds())
	if bytes > 0 {
		outputBytes.WithLabelValues(format).Add(float64(bytes))
	}
}

func ConverterFailure(format string, timedOut bool) {
	t := "false"
	if timedOut {
		t = "true"
	}
	converterFailures.WithLabelValues(format, t).Inc()
}

func AddRows(n int) {
	rowsStreamed.Add(float64(n))
}

// IndexHint counts hints by kind: country_exact, country, grid or none.
func IndexHint(kind string) {
	indexHints.WithLabelValues(kind).Inc()
}
