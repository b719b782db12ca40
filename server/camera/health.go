package camera

import (
	"image"
	"math"
)

// FrameStats summarizes the brightness distribution of a frame using the
// standard luma weights.
type FrameStats struct {
	Mean   float64
	StdDev float64
}

func ComputeFrameStats(img *image.RGBA) FrameStats {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return FrameStats{}
	}

	var sum, sumSq float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			luma := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
			sum += luma
			sumSq += luma * luma
		}
	}

	mean := sum / float64(total)
	variance := sumSq/float64(total) - mean*mean
	if variance < 0 {
		variance = 0
	}

	return FrameStats{Mean: mean, StdDev: math.Sqrt(variance)}
}
