package estimator

import (
	"fmt"

	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/ml"
	"github.com/san-kum/examguard/server/models"
	"go.uber.org/zap"
)

// FaceBoxEstimator derives pose from the face detection model, falling
// back to the skin heuristic whenever the model is not ready or errors.
type FaceBoxEstimator struct {
	detector ml.FaceDetector
	fallback *HeuristicEstimator
	logger   *zap.Logger
}

func NewFaceBoxEstimator(detector ml.FaceDetector, logger *zap.Logger) *FaceBoxEstimator {
	return &FaceBoxEstimator{
		detector: detector,
		fallback: NewHeuristicEstimator(),
		logger:   logger,
	}
}

func (e *FaceBoxEstimator) EstimatePose(frame *capture.Frame) (*models.HeadPose, error) {
	if e.detector == nil || e.detector.Status() != models.ModelStatusReady {
		return e.fallback.EstimatePose(frame)
	}

	box, err := e.detector.DetectFace(frame)
	if err != nil {
		e.logger.Warn("face detection failed, using heuristic fallback", zap.Error(err))
		pose, fallbackErr := e.fallback.EstimatePose(frame)
		if fallbackErr != nil {
			return nil, fmt.Errorf("face detection failed: %w", err)
		}
		return pose, nil
	}

	if box == nil {
		return nil, nil
	}

	bounds := frame.Bounds()
	pose := PoseFromBox(*box, bounds.Dx(), bounds.Dy())
	return &pose, nil
}
