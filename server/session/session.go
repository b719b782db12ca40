package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/config"
	"github.com/san-kum/examguard/server/events"
	"github.com/san-kum/examguard/server/metrics"
	"github.com/san-kum/examguard/server/models"
	"github.com/san-kum/examguard/server/storage"
	"go.uber.org/zap"
)

var (
	ErrTestNotFound     = errors.New("session: test code not found")
	ErrSessionFinished  = errors.New("session: already finished")
	ErrSessionNotActive = errors.New("session: not active")
)

// Store is the persistence surface a session needs.
type Store interface {
	GetTestByCode(code string) (*models.Test, error)
	UpsertSession(session *models.TestSession) error
	AppendAlert(alert *models.AlertEvent) error
	SaveSubmission(submission *models.Submission) error
	FindRecording(testCode, studentName string) (*models.RecordingMeta, error)
	ListUnlinkedRecordings() ([]models.RecordingMeta, error)
	UpdateRecordingMetadata(key, testCode, studentName string) error
}

// Recorder is the session's view of the recording controller.
type Recorder interface {
	Start() error
	StopAndUpload(key, testCode, studentName string) string
	IsRecording() bool
}

// ScoreSource exposes the rolling attention average kept by the monitor.
type ScoreSource interface {
	Average() int
}

// ValidateTestCode normalizes and resolves a join code.
func ValidateTestCode(store Store, code string) (*models.Test, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, ErrTestNotFound
	}

	test, err := store.GetTestByCode(normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("session: failed to look up test: %w", err)
	}
	return test, nil
}

// Session drives one student's exam attempt. It becomes active only once
// the student has joined and the camera is running, consumes monitoring
// events while active, and finishes exactly once, by submission or
// termination.
type Session struct {
	test       *models.Test
	timeLimit  time.Duration
	cfg        config.SessionConfig
	store      Store
	pipeline   *events.Bus
	host       *events.Bus
	enumerator capture.DeviceEnumerator
	recorder   Recorder
	scores     ScoreSource
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu              sync.Mutex
	session         models.TestSession
	answers         map[string]string
	joined          bool
	cameraActive    bool
	activated       bool
	finalizing      bool
	graceRemaining  int
	graceReason     string
	baselineDevices []string
	baselineSet     bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type Options struct {
	Test        *models.Test
	StudentName string
	DeviceInfo  models.DeviceInfo
	Config      config.SessionConfig
	Store       Store
	Pipeline    *events.Bus
	Host        *events.Bus
	Enumerator  capture.DeviceEnumerator
	Recorder    Recorder
	Scores      ScoreSource
	Metrics     *metrics.Metrics
	Logger      *zap.Logger

	// TimeLimit caps the attempt length. Zero derives the limit from the
	// test's duration in minutes.
	TimeLimit time.Duration
}

func New(opts Options) *Session {
	timeLimit := opts.TimeLimit
	if timeLimit <= 0 && opts.Test.Duration > 0 {
		timeLimit = time.Duration(opts.Test.Duration) * time.Minute
	}

	return &Session{
		test:       opts.Test,
		timeLimit:  timeLimit,
		cfg:        opts.Config,
		store:      opts.Store,
		pipeline:   opts.Pipeline,
		host:       opts.Host,
		enumerator: opts.Enumerator,
		recorder:   opts.Recorder,
		scores:     opts.Scores,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		answers:    make(map[string]string),
		done:       make(chan struct{}),
		session: models.TestSession{
			TestCode:       opts.Test.Code,
			StudentName:    opts.StudentName,
			AttentionScore: 100,
			DeviceInfo:     opts.DeviceInfo,
		},
	}
}

// Join marks the student as present. The session activates once the
// camera is also live.
func (s *Session) Join() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalizing {
		return ErrSessionFinished
	}
	s.joined = true
	return s.maybeActivate()
}

// SetCameraActive reports camera stream state. Activation requires both a
// joined student and a live camera.
func (s *Session) SetCameraActive(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalizing {
		return ErrSessionFinished
	}

	s.cameraActive = active
	if active {
		return s.maybeActivate()
	}
	return nil
}

func (s *Session) maybeActivate() error {
	if s.activated || !s.joined || !s.cameraActive {
		return nil
	}

	s.activated = true
	s.session.StartTime = time.Now()
	s.session.Status = models.SessionStatusActive

	if err := s.store.UpsertSession(&s.session); err != nil {
		return fmt.Errorf("session: failed to persist session start: %w", err)
	}

	if s.recorder != nil {
		if err := s.recorder.Start(); err != nil {
			s.logger.Warn("recorder failed to start", zap.Error(err))
		}
	}

	s.wg.Add(1)
	go s.run()

	s.publishState(string(models.SessionStatusActive), "")
	s.logger.Info("session active",
		zap.String("test_code", s.test.Code),
		zap.String("student", s.session.StudentName))
	return nil
}

// Active reports whether the session is running and not yet finished.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activated && !s.finalizing
}

func (s *Session) run() {
	defer s.wg.Done()

	graceTicker := time.NewTicker(time.Second)
	defer graceTicker.Stop()

	deviceTicker := time.NewTicker(s.cfg.DeviceCheckInterval)
	defer deviceTicker.Stop()

	var expiry <-chan time.Time
	if s.timeLimit > 0 {
		timer := time.NewTimer(s.timeLimit)
		defer timer.Stop()
		expiry = timer.C
	}

	s.checkDevices()

	for {
		select {
		case event, ok := <-s.pipeline.Events():
			if !ok {
				return
			}
			s.handleEvent(event)
		case <-graceTicker.C:
			s.tickGrace()
		case <-deviceTicker.C:
			s.checkDevices()
		case <-expiry:
			s.logger.Info("test time expired",
				zap.String("test_code", s.test.Code))
			if err := s.finalize(models.SessionStatusCompleted, ""); err != nil && !errors.Is(err, ErrSessionFinished) {
				s.logger.Error("time expiry submission failed", zap.Error(err))
			}
			return
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleEvent(event events.Event) {
	switch event.Type {
	case events.TypeMetrics:
		s.mu.Lock()
		if s.scores != nil {
			s.session.AttentionScore = s.scores.Average()
		}
		s.mu.Unlock()
		s.host.Publish(event)

	case events.TypeAlert:
		if event.Alert != nil {
			s.recordAlert(*event.Alert)
		}

	case events.TypeDeviceDetection:
		s.host.Publish(event)
		s.beginGrace("device_detected")

	case events.TypeCameraCovered:
		s.mu.Lock()
		s.cameraActive = false
		s.mu.Unlock()
		s.recordAlert(models.AlertEvent{
			Type:      models.AlertTypeCameraCovered,
			Severity:  models.SeverityHigh,
			Message:   "Camera appears to be covered",
			Timestamp: event.Timestamp,
		})
		if err := s.terminate("camera_covered"); err != nil && !errors.Is(err, ErrSessionFinished) {
			s.logger.Error("camera covered termination failed", zap.Error(err))
		}

	case events.TypeCameraEnded:
		s.mu.Lock()
		s.cameraActive = false
		s.mu.Unlock()
		s.recordAlert(models.AlertEvent{
			Type:      models.AlertTypeCameraOff,
			Severity:  models.SeverityHigh,
			Message:   "Camera stream ended: " + event.Reason,
			Timestamp: event.Timestamp,
		})
		if err := s.terminate("camera_off"); err != nil && !errors.Is(err, ErrSessionFinished) {
			s.logger.Error("camera off termination failed", zap.Error(err))
		}
	}
}

// recordAlert persists an alert and keeps the most recent ones on the
// session snapshot.
func (s *Session) recordAlert(alert models.AlertEvent) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.TestCode = s.test.Code
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	s.mu.Lock()
	alert.StudentName = s.session.StudentName
	s.session.Alerts = append(s.session.Alerts, alert)
	if limit := s.cfg.RecentAlertCap; limit > 0 && len(s.session.Alerts) > limit {
		s.session.Alerts = s.session.Alerts[len(s.session.Alerts)-limit:]
	}
	s.mu.Unlock()

	if err := s.store.AppendAlert(&alert); err != nil {
		s.logger.Error("failed to persist alert", zap.Error(err))
	}

	s.host.Publish(events.Event{
		Type:      events.TypeAlert,
		Timestamp: alert.Timestamp,
		Alert:     &alert,
	})

	s.logger.Warn("session alert",
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message))
}

func (s *Session) beginGrace(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalizing || s.graceRemaining > 0 {
		return
	}

	s.graceRemaining = int(s.cfg.GracePeriod / time.Second)
	s.graceReason = reason

	s.host.Publish(events.Event{
		Type:      events.TypeGraceCountdown,
		Countdown: s.graceRemaining,
		Reason:    reason,
	})
}

// CancelGraceCountdown aborts a running countdown, e.g. when the student
// puts the detected device away before the deadline.
func (s *Session) CancelGraceCountdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelGraceLocked()
}

func (s *Session) cancelGraceLocked() {
	if s.graceRemaining == 0 {
		return
	}
	s.graceRemaining = 0
	s.graceReason = ""
	s.host.Publish(events.Event{
		Type:      events.TypeGraceCountdown,
		Countdown: 0,
		Reason:    "cancelled",
	})
}

func (s *Session) tickGrace() {
	s.mu.Lock()
	if s.graceRemaining == 0 || s.finalizing {
		s.mu.Unlock()
		return
	}

	s.graceRemaining--
	remaining := s.graceRemaining
	reason := s.graceReason
	s.mu.Unlock()

	s.host.Publish(events.Event{
		Type:      events.TypeGraceCountdown,
		Countdown: remaining,
		Reason:    reason,
	})

	if remaining == 0 {
		if err := s.terminate(reason); err != nil && !errors.Is(err, ErrSessionFinished) {
			s.logger.Error("grace termination failed", zap.Error(err))
		}
	}
}

// checkDevices enumerates attached media devices and terminates the
// session when suspicious hardware appears after the baseline scan.
// Whatever is plugged in at session start is assumed declared and
// allowed; new labels are merged into the baseline before terminating.
func (s *Session) checkDevices() {
	if s.enumerator == nil {
		return
	}

	devices, err := s.enumerator.Enumerate()
	if err != nil {
		s.logger.Debug("device enumeration failed", zap.Error(err))
		return
	}

	suspicious := FilterSuspiciousDevices(devices)

	s.mu.Lock()
	if !s.baselineSet {
		s.baselineSet = true
		s.baselineDevices = suspicious
		s.session.DeviceInfo.DetectedDevices = append([]string(nil), suspicious...)
		s.mu.Unlock()
		return
	}

	added := diffNewDevices(s.baselineDevices, suspicious)
	if len(added) > 0 {
		s.baselineDevices = append(s.baselineDevices, added...)
		s.session.DeviceInfo.DetectedDevices = append(s.session.DeviceInfo.DetectedDevices, added...)
	}
	s.mu.Unlock()

	if len(added) > 0 {
		s.recordAlert(models.AlertEvent{
			Type:     models.AlertTypeExternalDevice,
			Severity: models.SeverityHigh,
			Message:  "Suspicious device connected: " + strings.Join(added, ", "),
		})
		if err := s.terminate("external_device"); err != nil && !errors.Is(err, ErrSessionFinished) {
			s.logger.Error("external device termination failed", zap.Error(err))
		}
	}
}

// PageHidden handles the test page losing visibility. Hiding the page is
// treated as leaving the exam and terminates immediately, no grace.
func (s *Session) PageHidden() {
	s.mu.Lock()
	finished := s.finalizing
	s.mu.Unlock()
	if finished {
		return
	}

	s.recordAlert(models.AlertEvent{
		Type:     models.AlertTypeTabSwitch,
		Severity: models.SeverityHigh,
		Message:  "Test page lost visibility",
	})

	if err := s.terminate("tab_switch"); err != nil && !errors.Is(err, ErrSessionFinished) {
		s.logger.Error("tab switch termination failed", zap.Error(err))
	}
}

// SetAnswer records or replaces the student's answer to a question.
func (s *Session) SetAnswer(questionID, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalizing {
		return ErrSessionFinished
	}
	if !s.activated {
		return ErrSessionNotActive
	}

	s.answers[questionID] = answer
	return nil
}

// Submit completes the session normally.
func (s *Session) Submit() error {
	return s.finalize(models.SessionStatusCompleted, "")
}

func (s *Session) terminate(reason string) error {
	if s.metrics != nil {
		s.metrics.TerminationsTotal.WithLabelValues(reason).Inc()
	}
	return s.finalize(models.SessionStatusTerminated, reason)
}

// finalize runs the teardown sequence exactly once: stop consuming
// events, flush the recording, grade, and persist the final snapshot.
func (s *Session) finalize(status models.SessionStatus, reason string) error {
	s.mu.Lock()
	if s.finalizing {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	if !s.activated {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	s.finalizing = true
	s.graceRemaining = 0
	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	studentName := s.session.StudentName
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.done) })

	if s.recorder != nil {
		var key string
		if s.recorder.IsRecording() {
			key = s.recorder.StopAndUpload(storage.NewRecordingKey(), s.test.Code, studentName)
		}
		savedKey, saved := s.waitForRecording(key, studentName)
		s.host.Publish(events.Event{
			Type:           events.TypeRecordingStopped,
			RecordingKey:   savedKey,
			RecordingSaved: saved,
		})
	}

	submission := Grade(s.test, answers, time.Now())
	submission.StudentName = studentName
	submission.TerminationReason = reason
	if err := s.store.SaveSubmission(submission); err != nil {
		s.logger.Error("failed to save submission", zap.Error(err))
	}

	s.mu.Lock()
	now := time.Now()
	s.session.EndTime = &now
	s.session.Status = status
	if s.scores != nil {
		s.session.AttentionScore = s.scores.Average()
	}
	snapshot := s.session
	s.mu.Unlock()

	if err := s.store.UpsertSession(&snapshot); err != nil {
		s.logger.Error("failed to persist final session", zap.Error(err))
	}

	s.publishState(string(status), reason)
	s.host.Publish(events.Event{
		Type:  events.TypeSubmissionGraded,
		State: string(status),
	})

	s.logger.Info("session finished",
		zap.String("test_code", s.test.Code),
		zap.String("student", studentName),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Int("attention_score", snapshot.AttentionScore))
	return nil
}

// waitForRecording polls until the recording upload lands, then falls
// back to claiming the newest unlinked upload. Uploads normally finish
// within the window; the fallback covers uploads that started before the
// session knew its identity. Returns the saved key and whether a
// recording ended up linked to this session.
func (s *Session) waitForRecording(key, studentName string) (string, bool) {
	deadline := time.Now().Add(s.cfg.RecordingWaitTimeout)

	for time.Now().Before(deadline) {
		if meta, err := s.store.FindRecording(s.test.Code, studentName); err == nil {
			return meta.Key, true
		}
		time.Sleep(s.cfg.RecordingWaitPoll)
	}

	unlinked, err := s.store.ListUnlinkedRecordings()
	if err != nil || len(unlinked) == 0 {
		s.logger.Warn("recording never arrived",
			zap.String("key", key),
			zap.String("test_code", s.test.Code))
		return key, false
	}

	claimed := unlinked[0].Key
	if err := s.store.UpdateRecordingMetadata(claimed, s.test.Code, studentName); err != nil {
		s.logger.Warn("failed to claim unlinked recording",
			zap.String("key", claimed),
			zap.Error(err))
		return key, false
	}
	s.logger.Info("claimed unlinked recording", zap.String("key", claimed))
	return claimed, true
}

func (s *Session) publishState(state, reason string) {
	s.host.Publish(events.Event{
		Type:   events.TypeSessionState,
		State:  state,
		Reason: reason,
	})
}

// Snapshot returns a copy of the session's current persisted view.
func (s *Session) Snapshot() models.TestSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Wait blocks until the event loop has exited.
func (s *Session) Wait() {
	s.wg.Wait()
}
