package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Monitor   MonitorConfig   `json:"monitor"`
	Scoring   ScoringConfig   `json:"scoring"`
	Detection DetectionConfig `json:"detection"`
	Camera    CameraConfig    `json:"camera"`
	Session   SessionConfig   `json:"session"`
	ML        MLConfig        `json:"ml"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
}

type MonitorConfig struct {
	SampleInterval    time.Duration `json:"sample_interval"`
	HistorySize       int           `json:"history_size"`
	SkipSimilarFrames bool          `json:"skip_similar_frames"`
	SimilarityTTL     time.Duration `json:"similarity_ttl"`
}

// ScoringConfig carries the hand-tuned pose thresholds. The values are
// parameters rather than constants so deployments can retune them, but the
// defaults are the calibrated set.
type ScoringConfig struct {
	ScreenYawLimit   float64 `json:"screen_yaw_limit"`
	ScreenPitchLimit float64 `json:"screen_pitch_limit"`
	ScreenRollLimit  float64 `json:"screen_roll_limit"`
	AwayYawLimit     float64 `json:"away_yaw_limit"`
	AwayPitchLimit   float64 `json:"away_pitch_limit"`
	FocusedMinScore  int     `json:"focused_min_score"`
	DistractedMin    int     `json:"distracted_min_score"`
	DevicePenalty    int     `json:"device_penalty"`
	SuddenDropDelta  int     `json:"sudden_drop_delta"`
	AverageWindow    int     `json:"average_window"`
}

type DetectionConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	WindowSize          int     `json:"window_size"`
	RequiredCount       int     `json:"required_count"`
}

type CameraConfig struct {
	SampleInterval      time.Duration `json:"sample_interval"`
	SampleWidth         int           `json:"sample_width"`
	SampleHeight        int           `json:"sample_height"`
	DarkThreshold       float64       `json:"dark_threshold"`
	LowStdThreshold     float64       `json:"low_std_threshold"`
	HighStdThreshold    float64       `json:"high_std_threshold"`
	RequiredConsecutive int           `json:"required_consecutive"`
}

type SessionConfig struct {
	GracePeriod          time.Duration `json:"grace_period"`
	DeviceCheckInterval  time.Duration `json:"device_check_interval"`
	RecordingWaitTimeout time.Duration `json:"recording_wait_timeout"`
	RecordingWaitPoll    time.Duration `json:"recording_wait_poll"`
	RecentAlertCap       int           `json:"recent_alert_cap"`
}

type MLConfig struct {
	BaseURL             string        `json:"base_url"`
	Timeout             time.Duration `json:"timeout"`
	MaxRetries          int           `json:"max_retries"`
	RetryDelay          time.Duration `json:"retry_delay"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
}

type StorageConfig struct {
	Path string `json:"path"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

func LoadConfig() *Config {
	config := &Config{
		Monitor: MonitorConfig{
			SampleInterval:    getEnvAsDuration("MONITOR_SAMPLE_INTERVAL", 300*time.Millisecond),
			HistorySize:       getEnvAsInt("MONITOR_HISTORY_SIZE", 60),
			SkipSimilarFrames: getEnvAsBool("MONITOR_SKIP_SIMILAR_FRAMES", true),
			SimilarityTTL:     getEnvAsDuration("MONITOR_SIMILARITY_TTL", 5*time.Minute),
		},
		Scoring: ScoringConfig{
			ScreenYawLimit:   getEnvAsFloat("SCORING_SCREEN_YAW_LIMIT", 45),
			ScreenPitchLimit: getEnvAsFloat("SCORING_SCREEN_PITCH_LIMIT", 30),
			ScreenRollLimit:  getEnvAsFloat("SCORING_SCREEN_ROLL_LIMIT", 30),
			AwayYawLimit:     getEnvAsFloat("SCORING_AWAY_YAW_LIMIT", 75),
			AwayPitchLimit:   getEnvAsFloat("SCORING_AWAY_PITCH_LIMIT", 60),
			FocusedMinScore:  getEnvAsInt("SCORING_FOCUSED_MIN", 70),
			DistractedMin:    getEnvAsInt("SCORING_DISTRACTED_MIN", 40),
			DevicePenalty:    getEnvAsInt("SCORING_DEVICE_PENALTY", 45),
			SuddenDropDelta:  getEnvAsInt("SCORING_SUDDEN_DROP_DELTA", 30),
			AverageWindow:    getEnvAsInt("SCORING_AVERAGE_WINDOW", 30),
		},
		Detection: DetectionConfig{
			ConfidenceThreshold: getEnvAsFloat("DETECTION_CONFIDENCE_THRESHOLD", 0.5),
			WindowSize:          getEnvAsInt("DETECTION_WINDOW_SIZE", 3),
			RequiredCount:       getEnvAsInt("DETECTION_REQUIRED_COUNT", 1),
		},
		Camera: CameraConfig{
			SampleInterval:      getEnvAsDuration("CAMERA_SAMPLE_INTERVAL", 250*time.Millisecond),
			SampleWidth:         getEnvAsInt("CAMERA_SAMPLE_WIDTH", 160),
			SampleHeight:        getEnvAsInt("CAMERA_SAMPLE_HEIGHT", 120),
			DarkThreshold:       getEnvAsFloat("CAMERA_DARK_THRESHOLD", 60),
			LowStdThreshold:     getEnvAsFloat("CAMERA_LOW_STD_THRESHOLD", 18),
			HighStdThreshold:    getEnvAsFloat("CAMERA_HIGH_STD_THRESHOLD", 80),
			RequiredConsecutive: getEnvAsInt("CAMERA_REQUIRED_CONSECUTIVE", 2),
		},
		Session: SessionConfig{
			GracePeriod:          getEnvAsDuration("SESSION_GRACE_PERIOD", 5*time.Second),
			DeviceCheckInterval:  getEnvAsDuration("SESSION_DEVICE_CHECK_INTERVAL", 10*time.Second),
			RecordingWaitTimeout: getEnvAsDuration("SESSION_RECORDING_WAIT_TIMEOUT", 5*time.Second),
			RecordingWaitPoll:    getEnvAsDuration("SESSION_RECORDING_WAIT_POLL", 200*time.Millisecond),
			RecentAlertCap:       getEnvAsInt("SESSION_RECENT_ALERT_CAP", 5),
		},
		ML: MLConfig{
			BaseURL:             getEnv("ML_BASE_URL", ""),
			Timeout:             getEnvAsDuration("ML_TIMEOUT", 30*time.Second),
			MaxRetries:          getEnvAsInt("ML_MAX_RETRIES", 3),
			RetryDelay:          getEnvAsDuration("ML_RETRY_DELAY", 1*time.Second),
			HealthCheckInterval: getEnvAsDuration("ML_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		Storage: StorageConfig{
			Path: getEnv("STORAGE_PATH", "examguard.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Monitor.SampleInterval <= 0 {
		errors = append(errors, "monitor sample interval must be positive")
	}

	if c.Monitor.HistorySize <= 0 {
		errors = append(errors, "monitor history size must be positive")
	}

	if c.Scoring.AverageWindow <= 0 {
		errors = append(errors, "scoring average window must be positive")
	}

	if c.Scoring.ScreenYawLimit >= c.Scoring.AwayYawLimit {
		errors = append(errors, "screen yaw limit must be below away yaw limit")
	}

	if c.Scoring.ScreenPitchLimit >= c.Scoring.AwayPitchLimit {
		errors = append(errors, "screen pitch limit must be below away pitch limit")
	}

	if c.Detection.WindowSize < 1 {
		errors = append(errors, "detection window size must be at least 1")
	}

	if c.Detection.RequiredCount < 1 || c.Detection.RequiredCount > c.Detection.WindowSize {
		errors = append(errors, "detection required count must be between 1 and the window size")
	}

	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		errors = append(errors, "detection confidence threshold must be between 0 and 1")
	}

	if c.Camera.SampleInterval <= 0 {
		errors = append(errors, "camera sample interval must be positive")
	}

	if c.Camera.RequiredConsecutive < 1 {
		errors = append(errors, "camera required consecutive samples must be at least 1")
	}

	if c.Camera.LowStdThreshold >= c.Camera.HighStdThreshold {
		errors = append(errors, "camera low std threshold must be below high std threshold")
	}

	if c.Session.GracePeriod <= 0 {
		errors = append(errors, "session grace period must be positive")
	}

	if c.Session.RecordingWaitPoll <= 0 || c.Session.RecordingWaitPoll > c.Session.RecordingWaitTimeout {
		errors = append(errors, "recording wait poll must be positive and no longer than the wait timeout")
	}

	if c.Storage.Path == "" {
		errors = append(errors, "storage path is required")
	}

	if c.ML.BaseURL == "" {
		logger.Warn("ML base URL not set, object detection will run in degraded mode")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
