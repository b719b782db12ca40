package main

import (
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/examguard/server/cache"
	"github.com/san-kum/examguard/server/camera"
	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/config"
	"github.com/san-kum/examguard/server/estimator"
	"github.com/san-kum/examguard/server/events"
	"github.com/san-kum/examguard/server/metrics"
	"github.com/san-kum/examguard/server/ml"
	"github.com/san-kum/examguard/server/models"
	"github.com/san-kum/examguard/server/monitor"
	"github.com/san-kum/examguard/server/recorder"
	"github.com/san-kum/examguard/server/session"
	"github.com/san-kum/examguard/server/storage"
	"go.uber.org/zap"
)

type Guard struct {
	logger        *zap.Logger
	config        *config.Config
	store         *storage.Store
	cache         cache.Cache
	mlClient      *ml.Client
	source        *capture.SyntheticCamera
	attention     *monitor.AttentionMonitor
	cameraMonitor *camera.Monitor
	recorder      *recorder.Controller
	session       *session.Session
	pipeline      *events.Bus
	host          *events.Bus
	metrics       *metrics.Metrics
}

func main() {
	cfg := config.LoadConfig()

	var logger *zap.Logger
	var err error

	if cfg.Logging.Format == "json" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	guard, err := NewGuard(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to assemble proctoring pipeline", zap.Error(err))
	}

	if err := guard.StartDemoSession(); err != nil {
		logger.Fatal("Failed to start session", zap.Error(err))
	}

	done := make(chan struct{})
	go guard.consumeHostEvents(done)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	if guard.session.Active() {
		if err := guard.session.Submit(); err != nil {
			logger.Error("Failed to submit session on shutdown", zap.Error(err))
		}
	}

	guard.attention.Stop()
	guard.cameraMonitor.Stop()
	guard.source.Stop()
	guard.mlClient.Close()
	guard.pipeline.Close()
	guard.session.Wait()
	guard.host.Close()
	<-done

	if err := guard.cache.Close(); err != nil {
		logger.Error("Failed to close cache", zap.Error(err))
	}
	if err := guard.store.Close(); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}

	logger.Info("Exited")
}

func NewGuard(cfg *config.Config, logger *zap.Logger) (*Guard, error) {
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	cacheInstance := cache.NewMemoryCache()

	mlClient := ml.NewClient(cfg.ML.BaseURL, &ml.ClientConfig{
		Timeout:             cfg.ML.Timeout,
		MaxRetries:          cfg.ML.MaxRetries,
		RetryDelay:          cfg.ML.RetryDelay,
		HealthCheckInterval: cfg.ML.HealthCheckInterval,
	}, logger)

	registry := prometheus.NewRegistry()
	promMetrics := metrics.New(registry)

	pipeline := events.NewBus(256, logger)
	host := events.NewBus(256, logger)

	source := capture.NewSyntheticCamera(func(t time.Time) *image.RGBA {
		return capture.FaceFrame(640, 480, 320, 240)
	})

	poseEstimator := estimator.NewFaceBoxEstimator(mlClient, logger)

	attention := monitor.New(monitor.Options{
		Source:    source,
		Estimator: poseEstimator,
		Detector:  mlClient,
		Cache:     cacheInstance,
		Monitor:   cfg.Monitor,
		Scoring:   cfg.Scoring,
		Detection: cfg.Detection,
		Bus:       pipeline,
		Metrics:   promMetrics,
		Logger:    logger,
	})

	cameraMonitor := camera.NewMonitor(source, cfg.Camera, pipeline, promMetrics, logger)
	recordingController := recorder.NewController(source, store, time.Second, logger)

	return &Guard{
		logger:        logger,
		config:        cfg,
		store:         store,
		cache:         cacheInstance,
		mlClient:      mlClient,
		source:        source,
		attention:     attention,
		cameraMonitor: cameraMonitor,
		recorder:      recordingController,
		pipeline:      pipeline,
		host:          host,
		metrics:       promMetrics,
	}, nil
}

// StartDemoSession seeds a demo test if none exists and runs a session
// against the synthetic camera, exercising the full pipeline end to end.
func (g *Guard) StartDemoSession() error {
	test, err := g.store.GetTestByCode("DEMO01")
	if err != nil {
		test = demoTest()
		if err := g.store.SaveTest(test); err != nil {
			return fmt.Errorf("failed to seed demo test: %w", err)
		}
		g.logger.Info("seeded demo test", zap.String("code", test.Code))
	}

	enumerator := capture.NewStaticEnumerator([]capture.MediaDeviceInfo{
		{DeviceID: "cam0", Kind: capture.DeviceKindVideoInput, Label: "Integrated Camera"},
		{DeviceID: "mic0", Kind: capture.DeviceKindAudioInput, Label: "Default Microphone"},
	})

	g.session = session.New(session.Options{
		Test:        test,
		StudentName: "demo-student",
		Config:      g.config.Session,
		Store:       g.store,
		Pipeline:    g.pipeline,
		Host:        g.host,
		Enumerator:  enumerator,
		Recorder:    g.recorder,
		Scores:      g.attention.Scorer(),
		Metrics:     g.metrics,
		Logger:      g.logger,
	})

	if err := g.session.Join(); err != nil {
		return err
	}
	if err := g.session.SetCameraActive(true); err != nil {
		return err
	}

	g.attention.Start()
	g.cameraMonitor.Start()

	g.logger.Info("proctoring pipeline running",
		zap.String("test_code", test.Code),
		zap.Duration("sample_interval", g.config.Monitor.SampleInterval))
	return nil
}

func (g *Guard) consumeHostEvents(done chan struct{}) {
	defer close(done)

	for event := range g.host.Events() {
		switch event.Type {
		case events.TypeAlert:
			g.logger.Info("alert",
				zap.String("alert_type", string(event.Alert.Type)),
				zap.String("severity", string(event.Alert.Severity)),
				zap.String("message", event.Alert.Message))
		case events.TypeGraceCountdown:
			g.logger.Info("grace countdown",
				zap.Int("remaining", event.Countdown),
				zap.String("reason", event.Reason))
		case events.TypeSessionState:
			g.logger.Info("session state changed",
				zap.String("state", event.State),
				zap.String("reason", event.Reason))
		case events.TypeMetrics:
			g.logger.Debug("attention sample",
				zap.Int("focus_score", event.Metrics.FocusScore),
				zap.Bool("at_screen", event.Metrics.IsLookingAtScreen))
		}
	}
}

func demoTest() *models.Test {
	return &models.Test{
		ID:            "demo",
		Code:          "DEMO01",
		Title:         "Demo Exam",
		Duration:      30,
		InterfaceType: models.InterfaceTypeStandard,
		CreatedAt:     time.Now(),
		CreatorEmail:  "proctor@example.com",
		Questions: []models.Question{
			{ID: "q1", Text: "What is 2 + 2?", Type: models.QuestionTypeMultipleChoice,
				Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Points: 1},
			{ID: "q2", Text: "Name the capital of France.",
				Type: models.QuestionTypeText, CorrectAnswer: "Paris", Points: 2},
		},
	}
}
