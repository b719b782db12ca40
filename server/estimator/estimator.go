package estimator

import (
	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/models"
)

// PoseEstimator derives a head pose from a frame. A nil pose with nil
// error means no face was found in the frame.
type PoseEstimator interface {
	EstimatePose(frame *capture.Frame) (*models.HeadPose, error)
}

const (
	maxYawDegrees   = 45.0
	maxPitchDegrees = 30.0
)

// PoseFromBox maps a face bounding box to a head pose using the box
// center's offset from the frame center. A face centered in the frame
// yields a neutral pose; offsets scale linearly to the yaw and pitch
// extremes. Roll is not recoverable from a box alone and is left at zero.
func PoseFromBox(box models.BBox, frameWidth, frameHeight int) models.HeadPose {
	if frameWidth <= 0 || frameHeight <= 0 {
		return models.HeadPose{}
	}

	cx := box.X + box.Width/2
	cy := box.Y + box.Height/2

	xOffset := cx/float64(frameWidth) - 0.5
	yOffset := cy/float64(frameHeight) - 0.5

	return models.HeadPose{
		Yaw:   clamp(xOffset*2*maxYawDegrees, -maxYawDegrees, maxYawDegrees),
		Pitch: clamp(yOffset*2*maxPitchDegrees, -maxPitchDegrees, maxPitchDegrees),
		Roll:  0,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
