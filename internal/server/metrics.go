package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline-level counters (runs, stages, fields, fallback attempts) live in
// the pipeline and recognition packages. These cover the HTTP surface.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docscan_http_request_duration_seconds",
			Help:    "HTTP request latency including upload parsing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// route: image, pdf, batch, websocket
	documentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_document_requests_total",
			Help: "Documents submitted for extraction, by route and outcome",
		},
		[]string{"route", "status"},
	)

	documentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docscan_document_duration_seconds",
			Help:    "Time to extract one document, queueing for a pipeline included",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"route"},
	)

	recognizedTextChars = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docscan_recognized_text_chars",
			Help:    "Characters of recognized text per document",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"route"},
	)

	fieldsPerDocument = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docscan_fields_per_document",
			Help:    "Extracted fields per document",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"route"},
	)

	documentsByType = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_documents_total",
			Help: "Documents by classified type and answering engine",
		},
		[]string{"document_type", "engine"},
	)

	// type: minute, hour, requests, data
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_rate_limit_hits_total",
			Help: "Requests refused by the per-client rate limiter",
		},
		[]string{"type"},
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docscan_upload_size_bytes",
			Help:    "Size of uploaded document images and PDFs",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)

	// route: multipart, websocket
	uploadsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_uploads_rejected_total",
			Help: "Uploads refused for exceeding max_upload_mb",
		},
		[]string{"route"},
	)

	poolBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docscan_pipelines_busy",
			Help: "Pipelines currently processing a document",
		},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docscan_websocket_active_connections",
			Help: "Open /ws/ocr connections",
		},
	)

	// direction: sent, received
	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docscan_websocket_messages_total",
			Help: "Messages exchanged on /ws/ocr",
		},
		[]string{"direction"},
	)
)
