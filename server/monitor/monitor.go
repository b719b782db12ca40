package monitor

import (
	"sync"
	"time"

	"github.com/san-kum/examguard/server/cache"
	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/config"
	"github.com/san-kum/examguard/server/detection"
	"github.com/san-kum/examguard/server/estimator"
	"github.com/san-kum/examguard/server/events"
	"github.com/san-kum/examguard/server/metrics"
	"github.com/san-kum/examguard/server/ml"
	"github.com/san-kum/examguard/server/models"
	"github.com/san-kum/examguard/server/scoring"
	"go.uber.org/zap"
)

// AttentionMonitor samples the video feed on a fixed interval and runs
// each frame through pose estimation, scoring, and device detection.
// Analysis is strictly sequential: the next sample waits until the
// previous one finishes, so a slow model stretches the effective interval
// instead of piling up work.
type AttentionMonitor struct {
	source    capture.VideoSource
	estimator estimator.PoseEstimator
	detector  ml.ObjectDetector
	scorer    *scoring.Scorer
	processor *detection.Processor
	debouncer *detection.Debouncer
	cache     cache.Cache
	cfg       config.MonitorConfig
	bus       *events.Bus
	metrics   *metrics.Metrics
	logger    *zap.Logger

	stats MonitorStats

	prevScore       int
	noFaceActive    bool
	multiFaceActive bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	statsMu  sync.RWMutex
}

type MonitorStats struct {
	StartTime      time.Time `json:"start_time"`
	TotalTicks     int64     `json:"total_ticks"`
	FramesAnalyzed int64     `json:"frames_analyzed"`
	FramesSkipped  int64     `json:"frames_skipped"`
	Failed         int64     `json:"failed"`
	AverageLatency float64   `json:"average_latency_ms"`
}

type Options struct {
	Source    capture.VideoSource
	Estimator estimator.PoseEstimator
	Detector  ml.ObjectDetector
	Cache     cache.Cache
	Monitor   config.MonitorConfig
	Scoring   config.ScoringConfig
	Detection config.DetectionConfig
	Bus       *events.Bus
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

func New(opts Options) *AttentionMonitor {
	return &AttentionMonitor{
		source:    opts.Source,
		estimator: opts.Estimator,
		detector:  opts.Detector,
		scorer:    scoring.NewScorer(opts.Scoring, opts.Monitor.HistorySize),
		processor: detection.NewProcessor(opts.Detection),
		debouncer: detection.NewDebouncer(opts.Detection.WindowSize, opts.Detection.RequiredCount),
		cache:     opts.Cache,
		cfg:       opts.Monitor,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		prevScore: 100,
		done:      make(chan struct{}),
		stats:     MonitorStats{StartTime: time.Now()},
	}
}

func (m *AttentionMonitor) Scorer() *scoring.Scorer {
	return m.scorer
}

func (m *AttentionMonitor) Start() {
	m.wg.Add(1)
	go m.run()
}

func (m *AttentionMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

func (m *AttentionMonitor) run() {
	defer m.wg.Done()

	timer := time.NewTimer(m.cfg.SampleInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			m.tick()
			timer.Reset(m.cfg.SampleInterval)
		case <-m.done:
			return
		}
	}
}

func (m *AttentionMonitor) tick() {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("frame analysis panic", zap.Any("panic", r))
			m.recordFailure()
		}
	}()

	m.statsMu.Lock()
	m.stats.TotalTicks++
	m.statsMu.Unlock()

	if !m.source.Active() {
		return
	}

	frame, err := m.source.Read()
	if err != nil {
		m.logger.Debug("frame read failed", zap.Error(err))
		m.recordFailure()
		return
	}

	if m.cfg.SkipSimilarFrames && m.isSimilarFrame(frame) {
		m.statsMu.Lock()
		m.stats.FramesSkipped++
		m.statsMu.Unlock()
		if m.metrics != nil {
			m.metrics.FramesSkipped.Inc()
		}
		return
	}

	m.analyzeFrame(frame)

	m.updateLatencyStats(time.Since(start))
	if m.metrics != nil {
		m.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *AttentionMonitor) analyzeFrame(frame *capture.Frame) {
	deviceInView := m.checkDevices(frame)

	pose, err := m.estimator.EstimatePose(frame)
	if err != nil {
		m.logger.Error("pose estimation failed", zap.Error(err))
		m.recordFailure()
		return
	}

	if pose == nil {
		m.handleNoFace(frame.Timestamp)
		return
	}

	if m.noFaceActive {
		m.noFaceActive = false
		m.logger.Debug("face reacquired")
	}

	snapshot := m.scorer.BuildMetrics(*pose, deviceInView, frame.Timestamp)
	if m.detector != nil {
		snapshot.DetectorStatus = m.detector.Status()
	} else {
		snapshot.DetectorStatus = models.ModelStatusUnavailable
	}
	m.scorer.Push(snapshot.FocusScore)

	m.statsMu.Lock()
	m.stats.FramesAnalyzed++
	m.statsMu.Unlock()

	if m.metrics != nil {
		m.metrics.FramesAnalyzed.Inc()
		m.metrics.FocusScore.Set(float64(snapshot.FocusScore))
	}

	m.bus.Publish(events.Event{
		Type:      events.TypeMetrics,
		Timestamp: frame.Timestamp,
		Metrics:   &snapshot,
	})

	if alert := m.scorer.GenerateAlert(snapshot, m.prevScore); alert != nil {
		m.publishAlert(alert)
	}
	m.prevScore = snapshot.FocusScore
}

// checkDevices runs object detection when the model is available and
// feeds the outcome through the debouncer. Returns whether a device is
// currently believed to be in view.
func (m *AttentionMonitor) checkDevices(frame *capture.Frame) bool {
	if m.detector == nil || m.detector.Status() != models.ModelStatusReady {
		return false
	}

	objects, err := m.detector.DetectObjects(frame)
	if err != nil {
		m.logger.Warn("object detection failed", zap.Error(err))
		return m.debouncer.Active()
	}

	m.checkExtraPeople(objects, frame.Timestamp)

	result := m.processor.ProcessDetections(objects, frame.Timestamp)
	detected := result.HasPhone || result.HasTablet || result.HasOtherDevice

	if m.debouncer.Observe(detected) {
		m.bus.Publish(events.Event{
			Type:      events.TypeDeviceDetection,
			Timestamp: frame.Timestamp,
			Devices:   &result,
		})
		m.publishAlert(&models.AlertEvent{
			Type:      models.AlertTypeDeviceDetected,
			Severity:  detection.Severity(result),
			Message:   detection.Message(result),
			Timestamp: frame.Timestamp,
		})
	}

	return m.debouncer.Active()
}

// checkExtraPeople raises an alert when more than one person is in frame.
// Fires once per episode, like the no-face alert.
func (m *AttentionMonitor) checkExtraPeople(objects []models.DetectedObject, at time.Time) {
	people := 0
	for _, obj := range objects {
		if obj.Class == "person" && obj.Score >= 0.5 {
			people++
		}
	}

	if people <= 1 {
		m.multiFaceActive = false
		return
	}

	if m.multiFaceActive {
		return
	}
	m.multiFaceActive = true
	m.publishAlert(&models.AlertEvent{
		Type:      models.AlertTypeMultipleFaces,
		Severity:  models.SeverityHigh,
		Message:   "More than one person visible in the camera frame",
		Timestamp: at,
	})
}

func (m *AttentionMonitor) handleNoFace(at time.Time) {
	if m.noFaceActive {
		return
	}
	m.noFaceActive = true
	m.publishAlert(&models.AlertEvent{
		Type:      models.AlertTypeNoFace,
		Severity:  models.SeverityMedium,
		Message:   "No face visible in the camera frame",
		Timestamp: at,
	})
}

func (m *AttentionMonitor) publishAlert(alert *models.AlertEvent) {
	if m.metrics != nil {
		m.metrics.AlertsTotal.WithLabelValues(string(alert.Type)).Inc()
	}
	m.bus.Publish(events.Event{
		Type:      events.TypeAlert,
		Timestamp: alert.Timestamp,
		Alert:     alert,
	})
}

func (m *AttentionMonitor) isSimilarFrame(frame *capture.Frame) bool {
	if m.cache == nil {
		return false
	}

	key := cache.GenerateFrameKey("similarity", frame.Image.Pix)
	if m.cache.Exists(key) {
		return true
	}

	if err := m.cache.Set(key, true, m.cfg.SimilarityTTL); err != nil {
		m.logger.Warn("failed to cache frame similarity", zap.Error(err))
	}

	return false
}

func (m *AttentionMonitor) recordFailure() {
	m.statsMu.Lock()
	m.stats.Failed++
	m.statsMu.Unlock()
	if m.metrics != nil {
		m.metrics.AnalysisErrors.Inc()
	}
}

func (m *AttentionMonitor) updateLatencyStats(latency time.Duration) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	current := float64(latency.Milliseconds())
	if m.stats.AverageLatency == 0 {
		m.stats.AverageLatency = current
	} else {
		alpha := 0.1
		m.stats.AverageLatency = alpha*current + (1-alpha)*m.stats.AverageLatency
	}
}

func (m *AttentionMonitor) GetStats() MonitorStats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	return m.stats
}
