package capture

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Downsample scales a frame to the given dimensions using nearest-neighbor
// interpolation. Used for cheap brightness sampling where quality does not
// matter.
func Downsample(src *image.RGBA, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
