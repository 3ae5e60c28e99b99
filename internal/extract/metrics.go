package extract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckscan_documents_total",
			Help: "Total number of documents processed",
		},
		[]string{"outcome"}, // outcome: ok, malformed, cancelled
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckscan_pages_total",
			Help: "Total number of pages processed by extraction method",
		},
		[]string{"method"}, // method: Native, OCR, None
	)

	pageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckscan_page_duration_seconds",
			Help:    "Time spent on a single page",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	pageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckscan_page_failures_total",
			Help: "Pages that degraded to no text, by reason",
		},
		[]string{"reason"}, // reason: render, blank, ocr_init, ocr_recognize, ocr_empty
	)

	ocrSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckscan_ocr_sessions_total",
			Help: "OCR engine session lifecycle events",
		},
		[]string{"engine", "status"}, // status: started, failed, terminated
	)
)
