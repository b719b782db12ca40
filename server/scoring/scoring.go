package scoring

import (
	"math"
	"sync"
	"time"

	"github.com/san-kum/examguard/server/config"
	"github.com/san-kum/examguard/server/models"
)

const (
	yawNormDegrees   = 90.0
	pitchNormDegrees = 90.0
	rollNormDegrees  = 45.0
)

// Scorer turns head poses into focus scores and classifications, keeps a
// rolling score history, and raises attention alerts. Safe for concurrent
// use.
type Scorer struct {
	cfg         config.ScoringConfig
	historySize int

	mu      sync.Mutex
	history []int
}

func NewScorer(cfg config.ScoringConfig, historySize int) *Scorer {
	return &Scorer{
		cfg:         cfg,
		historySize: historySize,
		history:     make([]int, 0, historySize),
	}
}

// Score maps a pose to 0..100. Each axis contributes its deviation from
// neutral as a fraction of its normalization range; the score is 100 at
// perfect neutral and falls linearly with the mean deviation.
func (s *Scorer) Score(pose models.HeadPose) int {
	yawDev := clampUnit(math.Abs(pose.Yaw) / yawNormDegrees)
	pitchDev := clampUnit(math.Abs(pose.Pitch) / pitchNormDegrees)
	rollDev := clampUnit(math.Abs(pose.Roll) / rollNormDegrees)

	avg := (yawDev + pitchDev + rollDev) / 3
	score := int(math.Round(100 * (1 - avg)))

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// Classify applies the pose thresholds. The three flags are mutually
// exclusive for any pose: at-screen within the screen limits, away beyond
// the away limits, distracted in the band between.
func (s *Scorer) Classify(pose models.HeadPose) (atScreen, distracted, away bool) {
	absYaw := math.Abs(pose.Yaw)
	absPitch := math.Abs(pose.Pitch)
	absRoll := math.Abs(pose.Roll)

	atScreen = absYaw <= s.cfg.ScreenYawLimit &&
		absPitch <= s.cfg.ScreenPitchLimit &&
		absRoll <= s.cfg.ScreenRollLimit

	away = absYaw > s.cfg.AwayYawLimit || absPitch > s.cfg.AwayPitchLimit

	distracted = (absYaw > s.cfg.ScreenYawLimit && absYaw <= s.cfg.AwayYawLimit) ||
		(absPitch > s.cfg.ScreenPitchLimit && absPitch <= s.cfg.AwayPitchLimit)
	if away {
		distracted = false
	}

	return atScreen, distracted, away
}

// BuildMetrics computes the full attention snapshot for one frame. When a
// device is in view the focus score takes a flat penalty, floored at zero.
func (s *Scorer) BuildMetrics(pose models.HeadPose, deviceInView bool, at time.Time) models.AttentionMetrics {
	score := s.Score(pose)
	if deviceInView {
		score -= s.cfg.DevicePenalty
		if score < 0 {
			score = 0
		}
	}

	atScreen, distracted, away := s.Classify(pose)

	return models.AttentionMetrics{
		FocusScore:        score,
		HeadPose:          pose,
		IsLookingAtScreen: atScreen,
		IsDistracted:      distracted,
		IsLookingAway:     away,
		Timestamp:         at,
	}
}

// FocusLevelFor buckets a score into the coarse focus levels.
func (s *Scorer) FocusLevelFor(score int) models.FocusLevel {
	switch {
	case score >= s.cfg.FocusedMinScore:
		return models.FocusLevelFocused
	case score >= s.cfg.DistractedMin:
		return models.FocusLevelDistracted
	default:
		return models.FocusLevelAway
	}
}

// Push appends a score to the rolling history, evicting the oldest entry
// once the history is full.
func (s *Scorer) Push(score int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, score)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

// Average returns the mean of the most recent scores, over at most the
// configured averaging window. Zero before any score has arrived.
func (s *Scorer) Average() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return 0
	}

	window := s.history
	if len(window) > s.cfg.AverageWindow {
		window = window[len(window)-s.cfg.AverageWindow:]
	}

	sum := 0
	for _, v := range window {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(window))))
}

// History returns a copy of the retained scores, oldest first.
func (s *Scorer) History() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int, len(s.history))
	copy(out, s.history)
	return out
}

// GenerateAlert inspects one metrics snapshot and decides whether it
// warrants an attention alert. At most one alert comes out of each
// snapshot; looking away wins over distraction, which wins over a sudden
// score drop.
func (s *Scorer) GenerateAlert(metrics models.AttentionMetrics, prevScore int) *models.AlertEvent {
	if metrics.IsLookingAway {
		return &models.AlertEvent{
			Type:      models.AlertTypeLookingAway,
			Severity:  models.SeverityHigh,
			Message:   "Student is looking away from the screen",
			Timestamp: metrics.Timestamp,
		}
	}

	if metrics.IsDistracted && metrics.FocusScore < s.cfg.DistractedMin {
		return &models.AlertEvent{
			Type:      models.AlertTypeDistraction,
			Severity:  models.SeverityMedium,
			Message:   "Student appears distracted",
			Timestamp: metrics.Timestamp,
		}
	}

	if prevScore-metrics.FocusScore > s.cfg.SuddenDropDelta {
		return &models.AlertEvent{
			Type:      models.AlertTypeDistraction,
			Severity:  models.SeverityMedium,
			Message:   "Sudden drop in attention detected",
			Timestamp: metrics.Timestamp,
		}
	}

	return nil
}
