package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run statuses.
const (
	statusSuccess   = "success"
	statusError     = "error"
	statusCancelled = "cancelled"
)

var (
	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_pipeline_runs_total",
			Help: "Pipeline runs by terminal status",
		},
		[]string{"status"}, // success, error, cancelled
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docscan_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"}, // preprocess, recognize, extract
	)

	extractedFieldsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_extracted_fields_total",
			Help: "Extracted fields by field type",
		},
		[]string{"type"},
	)
)
