package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide instrumentation. Collectors register
// against the given registry so tests can use isolated registries.
type Metrics struct {
	FramesAnalyzed    prometheus.Counter
	FramesSkipped     prometheus.Counter
	AnalysisErrors    prometheus.Counter
	AnalysisDuration  prometheus.Histogram
	AlertsTotal       *prometheus.CounterVec
	TerminationsTotal *prometheus.CounterVec
	FocusScore        prometheus.Gauge
	CameraHealthy     prometheus.Gauge
}

func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		FramesAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Name: "examguard_frames_analyzed_total",
			Help: "Frames run through the attention pipeline.",
		}),
		FramesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "examguard_frames_skipped_total",
			Help: "Frames skipped because their content matched the previous frame.",
		}),
		AnalysisErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "examguard_analysis_errors_total",
			Help: "Frame analysis ticks that failed or panicked.",
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "examguard_analysis_duration_seconds",
			Help:    "Wall time of one frame analysis tick.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "examguard_alerts_total",
			Help: "Alerts raised, by alert type.",
		}, []string{"type"}),
		TerminationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "examguard_terminations_total",
			Help: "Sessions terminated, by reason.",
		}, []string{"reason"}),
		FocusScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "examguard_focus_score",
			Help: "Most recent focus score for the active session.",
		}),
		CameraHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "examguard_camera_healthy",
			Help: "Whether the camera feed currently looks healthy (1) or covered/dark (0).",
		}),
	}
}
