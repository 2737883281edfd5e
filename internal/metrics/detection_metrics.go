package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Detection-runtime metrics (C6). Adapted from the teacher's AI-overlay
// metric set (internal/metrics/ai_metrics.go): same promauto/global-registry
// idiom and the same no-high-cardinality-label discipline (no camera_id or
// track_id labels), renamed from the teacher's overlay-streaming domain to
// the sampling/annotation/violation domain this spec actually has.
var (
	DetectionSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detection_samples_total",
			Help: "Total frames sampled for detection, by simulated/real",
		},
		[]string{"mode"},
	)

	DetectionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detection_sample_latency_ms",
			Help:    "Time spent in Detector.Detect per sampled frame",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	DetectionQueueDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detection_queue_drops_total",
			Help: "Total results dropped from the bounded per-camera result queue",
		},
	)

	ViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "violations_total",
			Help: "Total violations recorded, by type",
		},
		[]string{"violation_type"},
	)
)
