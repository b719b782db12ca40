package estimator

import (
	"github.com/san-kum/examguard/server/capture"
	"github.com/san-kum/examguard/server/models"
)

const (
	scanStep     = 4
	pseudoWidth  = 80.0
	pseudoHeight = 120.0
)

// HeuristicEstimator locates a face without any model by scanning for
// skin-toned pixels and treating their centroid as the face center. Crude,
// but it keeps attention tracking alive when the face model is down.
type HeuristicEstimator struct{}

func NewHeuristicEstimator() *HeuristicEstimator {
	return &HeuristicEstimator{}
}

func (e *HeuristicEstimator) EstimatePose(frame *capture.Frame) (*models.HeadPose, error) {
	box := FindSkinRegion(frame)
	if box == nil {
		return nil, nil
	}

	bounds := frame.Bounds()
	pose := PoseFromBox(*box, bounds.Dx(), bounds.Dy())
	return &pose, nil
}

// FindSkinRegion scans the frame on a coarse grid for skin-toned pixels
// and returns a fixed-size pseudo face box centered on their centroid, or
// nil if no skin was found.
func FindSkinRegion(frame *capture.Frame) *models.BBox {
	img := frame.Image
	bounds := img.Bounds()

	var sumX, sumY float64
	var count int

	for y := bounds.Min.Y; y < bounds.Max.Y; y += scanStep {
		for x := bounds.Min.X; x < bounds.Max.X; x += scanStep {
			c := img.RGBAAt(x, y)
			if isSkinTone(c.R, c.G, c.B) {
				sumX += float64(x)
				sumY += float64(y)
				count++
			}
		}
	}

	if count == 0 {
		return nil
	}

	cx := sumX / float64(count)
	cy := sumY / float64(count)

	return &models.BBox{
		X:      cx - pseudoWidth/2,
		Y:      cy - pseudoHeight/2,
		Width:  pseudoWidth,
		Height: pseudoHeight,
	}
}

// isSkinTone is the classic RGB skin rule. It overfires on wood tones and
// warm lighting, which is acceptable for a fallback.
func isSkinTone(r, g, b uint8) bool {
	if r <= 95 || g <= 40 || b <= 20 {
		return false
	}
	max := maxU8(r, maxU8(g, b))
	min := minU8(r, minU8(g, b))
	return max-min > 15 && r > g && r > b
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}
