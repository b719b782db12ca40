package capture

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"time"
)

var ErrSourceStopped = errors.New("capture: source stopped")

// SyntheticCamera is a VideoSource backed by a programmable frame generator.
// It stands in for a real camera during development and tests.
type SyntheticCamera struct {
	mu       sync.Mutex
	generate func(t time.Time) *image.RGBA
	ended    chan string
	active   bool
	endOnce  sync.Once
}

func NewSyntheticCamera(generate func(t time.Time) *image.RGBA) *SyntheticCamera {
	if generate == nil {
		generate = func(time.Time) *image.RGBA { return UniformFrame(640, 480, 128) }
	}
	return &SyntheticCamera{
		generate: generate,
		ended:    make(chan string, 1),
		active:   true,
	}
}

func (s *SyntheticCamera) Read() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrSourceStopped
	}

	now := time.Now()
	return &Frame{Image: s.generate(now), Timestamp: now}, nil
}

// SetGenerator swaps the frame generator, letting tests drive the feed
// through lighting or occlusion scenarios mid-stream.
func (s *SyntheticCamera) SetGenerator(generate func(t time.Time) *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generate = generate
}

func (s *SyntheticCamera) Ended() <-chan string {
	return s.ended
}

func (s *SyntheticCamera) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *SyntheticCamera) Stop() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// End simulates the feed dying on its own, e.g. the device being unplugged.
func (s *SyntheticCamera) End(reason string) {
	s.Stop()
	s.endOnce.Do(func() {
		s.ended <- reason
	})
}

// UniformFrame returns a frame filled with a single gray level.
func UniformFrame(width, height int, level uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{level, level, level, 255})
		}
	}
	return img
}

// NoiseFrame returns a frame with a deterministic checker-like variance
// around a base gray level, enough to pass low-variance health checks.
func NoiseFrame(width, height int, base uint8, spread uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			level := base
			if (x+y)%2 == 0 {
				level = base + spread
			} else if level >= spread {
				level = base - spread
			}
			img.SetRGBA(x, y, color.RGBA{level, level, level, 255})
		}
	}
	return img
}

// FaceFrame returns a frame with a skin-toned rectangle centered at
// (cx, cy), sized like a face at typical webcam distance.
func FaceFrame(width, height, cx, cy int) *image.RGBA {
	img := NoiseFrame(width, height, 110, 25)
	const faceW, faceH = 80, 120
	skin := color.RGBA{R: 205, G: 140, B: 110, A: 255}
	for y := cy - faceH/2; y < cy+faceH/2; y++ {
		for x := cx - faceW/2; x < cx+faceW/2; x++ {
			if x >= 0 && x < width && y >= 0 && y < height {
				img.SetRGBA(x, y, skin)
			}
		}
	}
	return img
}

// StaticEnumerator is a DeviceEnumerator over a fixed, swappable device
// list.
type StaticEnumerator struct {
	mu      sync.Mutex
	devices []MediaDeviceInfo
	err     error
}

func NewStaticEnumerator(devices []MediaDeviceInfo) *StaticEnumerator {
	return &StaticEnumerator{devices: devices}
}

func (e *StaticEnumerator) Enumerate() ([]MediaDeviceInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	out := make([]MediaDeviceInfo, len(e.devices))
	copy(out, e.devices)
	return out, nil
}

func (e *StaticEnumerator) SetDevices(devices []MediaDeviceInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices = devices
}

func (e *StaticEnumerator) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}
