// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teslashibe/go-affect/pkg/pipeline"
)

var (
	// ChatRequests counts chat requests by outcome (ok, rate_limited,
	// invalid, unavailable, error).
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affectd_chat_requests_total",
			Help: "Chat requests by outcome",
		},
		[]string{"outcome"},
	)

	// GenerationDuration tracks generator latency.
	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "affectd_generation_seconds",
			Help:    "Text generation latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	// FramesAnalyzed counts worker results by dominant emotion.
	FramesAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affectd_frames_analyzed_total",
			Help: "Frames analysed by the background worker, by emotion",
		},
		[]string{"emotion"},
	)

	// FrameProcessing tracks per-frame analysis time.
	FrameProcessing = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "affectd_frame_processing_seconds",
			Help:    "Face analysis time per frame in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// FrameErrors counts results that carry an error annotation.
	FrameErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affectd_frame_errors_total",
			Help: "Frames whose analysis degraded to a fallback result",
		},
	)
)

// Chat outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// ObserveGeneration records one generator call.
func ObserveGeneration(d time.Duration) {
	GenerationDuration.Observe(d.Seconds())
}

// ObserveFrame records one worker result. It is a pipeline subscriber.
func ObserveFrame(e pipeline.Entry) {
	FramesAnalyzed.WithLabelValues(e.Result.Emotion).Inc()
	FrameProcessing.Observe(e.Result.ProcessingMs / 1000)
	if e.Result.Error != "" {
		FrameErrors.Inc()
	}
}

// RegisterPipeline exports the pipeline's queue counters. Registering twice
// is not an error.
func RegisterPipeline(stats func() pipeline.Stats) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "affectd_frames_enqueued_total",
			Help: "Frames accepted into the queue",
		}, func() float64 { return float64(stats().Enqueued) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "affectd_frames_dropped_total",
			Help: "Queued frames evicted by a newer frame",
		}, func() float64 { return float64(stats().Dropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "affectd_frames_rejected_total",
			Help: "Frames rejected because the queue stayed full",
		}, func() float64 { return float64(stats().Rejected) }),
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
