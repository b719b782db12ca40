package session

import (
	"testing"
	"time"

	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/config"
	"github.com/san-kum/examguard/server/events"
	"github.com/san-kum/examguard/server/models"
	"github.com/san-kum/examguard/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRecorder struct {
	store     *storage.MemoryStore
	recording bool
	started   int
}

func (r *fakeRecorder) Start() error {
	r.recording = true
	r.started++
	return nil
}

func (r *fakeRecorder) StopAndUpload(key, testCode, studentName string) string {
	r.recording = false
	r.store.SaveRecording(key, []byte("data"), models.RecordingMeta{
		Key:         key,
		TestCode:    testCode,
		StudentName: studentName,
		CreatedAt:   time.Now(),
	})
	return key
}

func (r *fakeRecorder) IsRecording() bool {
	return r.recording
}

type fakeScores struct{ avg int }

func (f *fakeScores) Average() int { return f.avg }

type harness struct {
	session  *Session
	store    *storage.MemoryStore
	pipeline *events.Bus
	host     *events.Bus
	enum     *capture.StaticEnumerator
	recorder *fakeRecorder
	test     *models.Test
}

func newHarness(t *testing.T, mutate func(*config.SessionConfig), mutateOpts ...func(*Options)) *harness {
	t.Helper()

	cfg := config.LoadConfig().Session
	cfg.RecordingWaitTimeout = 200 * time.Millisecond
	cfg.RecordingWaitPoll = 10 * time.Millisecond
	cfg.DeviceCheckInterval = 20 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	store := storage.NewMemoryStore()
	test := &models.Test{
		ID:            "t1",
		Code:          "ABC123",
		Title:         "Algebra Quiz",
		Duration:      30,
		InterfaceType: models.InterfaceTypeStandard,
		CreatedAt:     time.Now(),
		Questions: []models.Question{
			{ID: "q1", Text: "2+2?", Type: models.QuestionTypeMultipleChoice,
				Options: []string{"3", "4"}, CorrectAnswer: "4", Points: 2},
			{ID: "q2", Text: "Capital of France?", Type: models.QuestionTypeText,
				CorrectAnswer: "Paris", Points: 3},
		},
	}
	require.NoError(t, store.SaveTest(test))

	pipeline := events.NewBus(64, zap.NewNop())
	host := events.NewBus(256, zap.NewNop())
	t.Cleanup(func() {
		pipeline.Close()
		host.Close()
	})

	enum := capture.NewStaticEnumerator([]capture.MediaDeviceInfo{
		{DeviceID: "cam0", Kind: capture.DeviceKindVideoInput, Label: "Integrated Camera"},
	})
	recorder := &fakeRecorder{store: store}

	opts := Options{
		Test:        test,
		StudentName: "alice",
		Config:      cfg,
		Store:       store,
		Pipeline:    pipeline,
		Host:        host,
		Enumerator:  enum,
		Recorder:    recorder,
		Scores:      &fakeScores{avg: 85},
		Logger:      zap.NewNop(),
	}
	for _, fn := range mutateOpts {
		fn(&opts)
	}
	sess := New(opts)

	return &harness{
		session:  sess,
		store:    store,
		pipeline: pipeline,
		host:     host,
		enum:     enum,
		recorder: recorder,
		test:     test,
	}
}

func (h *harness) activate(t *testing.T) {
	t.Helper()
	require.NoError(t, h.session.Join())
	require.NoError(t, h.session.SetCameraActive(true))
	require.True(t, h.session.Active())
}

func hostEvent(t *testing.T, h *harness, want events.Type, timeout time.Duration) *events.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case event := <-h.host.Events():
			if event.Type == want {
				return &event
			}
		case <-deadline:
			return nil
		}
	}
}

func TestValidateTestCode(t *testing.T) {
	h := newHarness(t, nil)

	test, err := ValidateTestCode(h.store, " abc123 ")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", test.Code)

	_, err = ValidateTestCode(h.store, "ZZZZZZ")
	assert.ErrorIs(t, err, ErrTestNotFound)

	_, err = ValidateTestCode(h.store, "  ")
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestSessionActivationRequiresBothSignals(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.session.Join())
	assert.False(t, h.session.Active(), "joining alone does not activate")

	require.NoError(t, h.session.SetCameraActive(true))
	assert.True(t, h.session.Active())
	assert.Equal(t, 1, h.recorder.started)

	stored, err := h.store.GetSession("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, stored.Status)
}

func TestSessionCameraFirstThenJoin(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.session.SetCameraActive(true))
	assert.False(t, h.session.Active())

	require.NoError(t, h.session.Join())
	assert.True(t, h.session.Active())
}

func TestSessionSubmitGradesAnswers(t *testing.T) {
	h := newHarness(t, nil)
	h.activate(t)

	require.NoError(t, h.session.SetAnswer("q1", "4"))
	require.NoError(t, h.session.SetAnswer("q2", "  paris "))
	require.NoError(t, h.session.Submit())

	submission, err := h.store.GetSubmission("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, submission.TotalScore)
	assert.Equal(t, 5, submission.TotalPoints)
	assert.Equal(t, 100, submission.Percentage)
	assert.Empty(t, submission.TerminationReason)

	stored, err := h.store.GetSession("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, stored.Status)
	assert.NotNil(t, stored.EndTime)
	assert.Equal(t, 85, stored.AttentionScore)
}

func TestSessionFinishesExactlyOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.activate(t)

	require.NoError(t, h.session.Submit())
	assert.ErrorIs(t, h.session.Submit(), ErrSessionFinished)
	assert.ErrorIs(t, h.session.SetAnswer("q1", "4"), ErrSessionFinished)

	h.session.PageHidden()

	stored, err := h.store.GetSession("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, stored.Status,
		"termination after submission must not override the result")
}

func TestSessionPageHiddenTerminatesImmediately(t *testing.T) {
	h := newHarness(t, nil)
	h.activate(t)

	h.session.PageHidden()

	stored, err := h.store.GetSession("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusTerminated, stored.Status)

	submission, err := h.store.GetSubmission("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "tab_switch", submission.TerminationReason)

	alerts, err := h.store.AlertsForSession("ABC123", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	assert.Equal(t, models.AlertTypeTabSwitch, alerts[0].Type)
}

func TestSessionCameraCoveredTerminatesImmediately(t *testing.T) {
	h := newHarness(t, nil)
	h.activate(t)

	h.pipeline.Publish(events.Event{Type: events.TypeCameraCovered})

	require.Eventually(t, func() bool {
		stored, err := h.store.GetSession("ABC123", "alice")
		return err == nil && stored.Status == models.SessionStatusTerminated
	}, 2*time.Second, 10*time.Millisecond)

	submission, err := h.store.GetSubmission("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "camera_covered", submission.TerminationReason)

	alerts, err := h.store.AlertsForSession("ABC123", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, alerts)
	assert.Equal(t, models.AlertTypeCameraCovered, alerts[0].Type)
}

func TestSessionCameraEndedTerminatesImmediately(t *testing.T) {
	h := newHarness(t, nil)
	h.activate(t)

	h.pipeline.Publish(events.Event{Type: events.TypeCameraEnded, Reason: capture.EndReasonPermissionDenied})

	require.Eventually(t, func() bool {
		stored, err := h.store.GetSession("ABC123", "alice")
		return err == nil && stored.Status == models.SessionStatusTerminated
	}, 2*time.Second, 10*time.Millisecond)

	submission, err := h.store.GetSubmission("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "camera_off", submission.TerminationReason)
}

func TestSessionDeviceDetectionStartsGraceThenTerminates(t *testing.T) {
	h := newHarness(t, func(cfg *config.SessionConfig) {
		cfg.GracePeriod = 2 * time.Second
	})
	h.activate(t)

	h.pipeline.Publish(events.Event{
		Type:    events.TypeDeviceDetection,
		Devices: &models.DeviceDetectionResult{HasPhone: true, DevicesDetected: []string{"cell phone"}},
	})

	countdown := hostEvent(t, h, events.TypeGraceCountdown, time.Second)
	require.NotNil(t, countdown)
	assert.Equal(t, 2, countdown.Countdown)
	assert.Equal(t, "device_detected", countdown.Reason)

	require.Eventually(t, func() bool {
		stored, err := h.store.GetSession("ABC123", "alice")
		return err == nil && stored.Status == models.SessionStatusTerminated
	}, 5*time.Second, 50*time.Millisecond)

	submission, err := h.store.GetSubmission("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "device_detected", submission.TerminationReason)
}

func TestSessionGraceCancelKeepsSessionActive(t *testing.T) {
	h := newHarness(t, func(cfg *config.SessionConfig) {
		cfg.GracePeriod = 2 * time.Second
	})
	h.activate(t)

	h.pipeline.Publish(events.Event{
		Type:    events.TypeDeviceDetection,
		Devices: &models.DeviceDetectionResult{HasPhone: true},
	})

	countdown := hostEvent(t, h, events.TypeGraceCountdown, time.Second)
	require.NotNil(t, countdown)
	assert.Equal(t, "device_detected", countdown.Reason)

	h.session.CancelGraceCountdown()

	time.Sleep(2500 * time.Millisecond)
	assert.True(t, h.session.Active(), "cancelled countdown keeps the session alive")

	stored, err := h.store.GetSession("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, stored.Status)
}

func TestSessionTimeExpiryCompletes(t *testing.T) {
	h := newHarness(t, nil, func(opts *Options) {
		opts.TimeLimit = 200 * time.Millisecond
	})
	h.activate(t)

	require.NoError(t, h.session.SetAnswer("q1", "4"))

	require.Eventually(t, func() bool {
		stored, err := h.store.GetSession("ABC123", "alice")
		return err == nil && stored.Status == models.SessionStatusCompleted
	}, 3*time.Second, 20*time.Millisecond)

	submission, err := h.store.GetSubmission("ABC123", "alice")
	require.NoError(t, err)
	assert.Empty(t, submission.TerminationReason, "expiry submits like an ordinary completion")
	assert.Equal(t, 2, submission.TotalScore)
}

func TestSessionAlertsArePersistedAndCapped(t *testing.T) {
	h := newHarness(t, func(cfg *config.SessionConfig) {
		cfg.RecentAlertCap = 2
	})
	h.activate(t)

	for i := 0; i < 4; i++ {
		h.pipeline.Publish(events.Event{
			Type: events.TypeAlert,
			Alert: &models.AlertEvent{
				Type:     models.AlertTypeDistraction,
				Severity: models.SeverityMedium,
				Message:  "Student appears distracted",
			},
		})
	}

	require.Eventually(t, func() bool {
		alerts, err := h.store.AlertsForSession("ABC123", "alice")
		return err == nil && len(alerts) == 4
	}, 2*time.Second, 10*time.Millisecond)

	snapshot := h.session.Snapshot()
	assert.Len(t, snapshot.Alerts, 2, "snapshot keeps only recent alerts")
}

func TestSessionNewSuspiciousDeviceTerminates(t *testing.T) {
	h := newHarness(t, nil)
	h.enum.SetDevices([]capture.MediaDeviceInfo{
		{DeviceID: "cam0", Kind: capture.DeviceKindVideoInput, Label: "Integrated Camera"},
		{DeviceID: "spk0", Kind: capture.DeviceKindAudioOutput, Label: "Built-in Speaker"},
	})
	h.activate(t)

	time.Sleep(30 * time.Millisecond)

	h.enum.SetDevices([]capture.MediaDeviceInfo{
		{DeviceID: "cam0", Kind: capture.DeviceKindVideoInput, Label: "Integrated Camera"},
		{DeviceID: "spk0", Kind: capture.DeviceKindAudioOutput, Label: "Built-in Speaker"},
		{DeviceID: "bt1", Kind: capture.DeviceKindAudioOutput, Label: "AirPods Pro"},
	})

	require.Eventually(t, func() bool {
		stored, err := h.store.GetSession("ABC123", "alice")
		return err == nil && stored.Status == models.SessionStatusTerminated
	}, 2*time.Second, 10*time.Millisecond)

	submission, err := h.store.GetSubmission("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "external_device", submission.TerminationReason)

	var external *models.AlertEvent
	alerts, err := h.store.AlertsForSession("ABC123", "alice")
	require.NoError(t, err)
	for i := range alerts {
		if alerts[i].Type == models.AlertTypeExternalDevice {
			external = &alerts[i]
		}
	}
	require.NotNil(t, external)
	assert.Contains(t, external.Message, "AirPods Pro")

	snapshot := h.session.Snapshot()
	assert.Contains(t, snapshot.DeviceInfo.DetectedDevices, "AirPods Pro")
	assert.Contains(t, snapshot.DeviceInfo.DetectedDevices, "Built-in Speaker",
		"baseline devices are recorded but not alerted")
}

func TestSessionBaselineDevicesDoNotAlert(t *testing.T) {
	h := newHarness(t, nil)
	h.enum.SetDevices([]capture.MediaDeviceInfo{
		{DeviceID: "bt1", Kind: capture.DeviceKindAudioOutput, Label: "Bluetooth Headset"},
	})
	h.activate(t)

	time.Sleep(100 * time.Millisecond)

	alerts, err := h.store.AlertsForSession("ABC123", "alice")
	require.NoError(t, err)
	for _, alert := range alerts {
		assert.NotEqual(t, models.AlertTypeExternalDevice, alert.Type)
	}
}

func TestSessionRecordingLinkedOnFinish(t *testing.T) {
	h := newHarness(t, nil)
	h.activate(t)

	require.NoError(t, h.session.Submit())

	meta, err := h.store.FindRecording("ABC123", "alice")
	require.NoError(t, err)
	assert.Greater(t, meta.Size, int64(0))

	stopped := hostEvent(t, h, events.TypeRecordingStopped, time.Second)
	require.NotNil(t, stopped)
	assert.True(t, stopped.RecordingSaved)
	assert.Equal(t, meta.Key, stopped.RecordingKey)
}

func TestSessionClaimsUnlinkedRecording(t *testing.T) {
	h := newHarness(t, nil)
	h.activate(t)

	h.recorder.recording = false
	require.NoError(t, h.store.SaveRecording("recording_orphan", []byte("chunks"),
		models.RecordingMeta{Key: "recording_orphan", CreatedAt: time.Now()}))

	require.NoError(t, h.session.Submit())

	meta, err := h.store.FindRecording("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "recording_orphan", meta.Key)
}

func TestSessionAttentionScoreTracksAverage(t *testing.T) {
	h := newHarness(t, nil)
	h.activate(t)

	score := 100
	h.pipeline.Publish(events.Event{
		Type:    events.TypeMetrics,
		Metrics: &models.AttentionMetrics{FocusScore: score},
	})

	require.Eventually(t, func() bool {
		return h.session.Snapshot().AttentionScore == 85
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionSurveyNotGraded(t *testing.T) {
	h := newHarness(t, nil)
	h.test.InterfaceType = models.InterfaceTypeSurvey

	h.activate(t)
	require.NoError(t, h.session.SetAnswer("q1", "4"))
	require.NoError(t, h.session.Submit())

	submission, err := h.store.GetSubmission("ABC123", "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, submission.TotalScore)
	assert.Equal(t, 0, submission.TotalPoints)
	assert.Equal(t, 0, submission.Percentage)
	require.Len(t, submission.Answers, 2)
	assert.Equal(t, "4", submission.Answers[0].Answer)
	assert.False(t, submission.Answers[0].IsCorrect)
}
