package camera

import (
	"sync"
	"time"

	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/config"
	"github.com/san-kum/examguard/server/events"
	"github.com/san-kum/examguard/server/metrics"
	"go.uber.org/zap"
)

// Monitor watches a video source for covering and disconnection. A frame
// looks bad when it is too dark, too flat, or too noisy; several bad
// frames in a row mean the lens is covered. A covered camera fires one
// event and stops the feed, which terminates the session upstream.
type Monitor struct {
	source  capture.VideoSource
	cfg     config.CameraConfig
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewMonitor(source capture.VideoSource, cfg config.CameraConfig, bus *events.Bus, m *metrics.Metrics, logger *zap.Logger) *Monitor {
	return &Monitor{
		source:  source,
		cfg:     cfg,
		bus:     bus,
		metrics: m,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	m.wg.Add(2)
	go m.sampleLoop()
	go m.watchEnded()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

func (m *Monitor) sampleLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	consecutiveBad := 0
	for {
		select {
		case <-ticker.C:
			if !m.source.Active() {
				return
			}

			frame, err := m.source.Read()
			if err != nil {
				m.logger.Debug("camera health sample failed", zap.Error(err))
				continue
			}

			sample := capture.Downsample(frame.Image, m.cfg.SampleWidth, m.cfg.SampleHeight)
			stats := ComputeFrameStats(sample)

			if m.isBadFrame(stats) {
				consecutiveBad++
				m.setHealthGauge(0)
				m.logger.Debug("camera frame looks bad",
					zap.Float64("mean", stats.Mean),
					zap.Float64("std", stats.StdDev),
					zap.Int("consecutive", consecutiveBad))

				if consecutiveBad >= m.cfg.RequiredConsecutive {
					m.logger.Warn("camera appears covered, stopping feed",
						zap.Float64("mean", stats.Mean),
						zap.Float64("std", stats.StdDev))
					m.bus.Publish(events.Event{
						Type:      events.TypeCameraCovered,
						Timestamp: frame.Timestamp,
					})
					m.source.Stop()
					return
				}
			} else {
				consecutiveBad = 0
				m.setHealthGauge(1)
			}

		case <-m.done:
			return
		}
	}
}

func (m *Monitor) watchEnded() {
	defer m.wg.Done()

	select {
	case reason := <-m.source.Ended():
		m.logger.Warn("camera feed ended", zap.String("reason", reason))
		m.setHealthGauge(0)
		m.bus.Publish(events.Event{
			Type:   events.TypeCameraEnded,
			Reason: reason,
		})
	case <-m.done:
	}
}

func (m *Monitor) isBadFrame(stats FrameStats) bool {
	return stats.Mean < m.cfg.DarkThreshold ||
		stats.StdDev < m.cfg.LowStdThreshold ||
		stats.StdDev > m.cfg.HighStdThreshold
}

func (m *Monitor) setHealthGauge(v float64) {
	if m.metrics != nil {
		m.metrics.CameraHealthy.Set(v)
	}
}
