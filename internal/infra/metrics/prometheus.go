package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframe_jobs_total",
		Help: "Total number of extraction runs, by mode and final status",
	}, []string{"mode", "status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyframe_stage_duration_seconds",
		Help:    "Duration of each extraction pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframe_frames_decoded_total",
		Help: "Total number of video frames decoded, by backend",
	}, []string{"backend"})

	KeyframesExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframe_keyframes_extracted_total",
		Help: "Total number of keyframes written, by reason",
	}, []string{"reason"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyframe_active_workers",
		Help: "Number of workers currently processing a job",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframe_retry_total",
		Help: "Total number of job retries, by attempt",
	}, []string{"attempt"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframe_http_requests_total",
		Help: "HTTP requests served, by route and status code",
	}, []string{"route", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyframe_http_request_duration_seconds",
		Help:    "HTTP request latency, by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	ProgressViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyframe_progress_viewers",
		Help: "Connected progress stream clients",
	})
)
