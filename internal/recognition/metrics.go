package recognition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fallback attempt outcomes.
const (
	outcomeUsed      = "used"
	outcomeKeptLocal = "kept_local"
	outcomeError     = "error"
	outcomeTimeout   = "timeout"
)

var (
	recognitionConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docscan_recognition_confidence",
			Help:    "Confidence reported by each recognition engine",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"engine"},
	)

	fallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_fallback_attempts_total",
			Help: "Fallback engine attempts by outcome",
		},
		[]string{"outcome"}, // used, kept_local, error, timeout
	)
)
