package events

import (
	"sync"
	"time"

	"github.com/san-kum/examguard/server/models"
	"go.uber.org/zap"
)

type Type string

const (
	TypeAlert            Type = "alert"
	TypeMetrics          Type = "metrics"
	TypeDeviceDetection  Type = "device_detection"
	TypeCameraCovered    Type = "camera_covered"
	TypeCameraEnded      Type = "camera_ended"
	TypeGraceCountdown   Type = "grace_countdown"
	TypeSessionState     Type = "session_state"
	TypeSubmissionGraded Type = "submission_graded"
	TypeRecordingStopped Type = "recording_stopped"
)

// Event is one message on the bus. Only the fields relevant to the type
// are populated.
type Event struct {
	Type      Type
	Timestamp time.Time

	Alert          *models.AlertEvent
	Metrics        *models.AttentionMetrics
	Devices        *models.DeviceDetectionResult
	Reason         string
	Countdown      int
	State          string
	RecordingKey   string
	RecordingSaved bool
}

// Bus is a buffered single-consumer event channel. Publishing never
// blocks the producer; events are dropped with a warning when the
// consumer falls behind.
type Bus struct {
	ch        chan Event
	logger    *zap.Logger
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewBus(size int, logger *zap.Logger) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{
		ch:     make(chan Event, size),
		logger: logger,
	}
}

func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.ch <- event:
	default:
		b.logger.Warn("event bus full, dropping event",
			zap.String("type", string(event.Type)))
	}
}

// Events returns the consumer channel. It is closed by Close.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.ch)
	})
}
