package capture

import (
	"image"
	"time"
)

// Frame is a single decoded video frame.
type Frame struct {
	Image     *image.RGBA
	Timestamp time.Time
}

func (f *Frame) Bounds() image.Rectangle {
	return f.Image.Bounds()
}

// VideoSource abstracts a live camera feed. Implementations own the
// underlying device; Read returns the most recent frame and blocks at most
// briefly. Ended delivers the reason once the feed stops unexpectedly.
type VideoSource interface {
	Read() (*Frame, error)
	Ended() <-chan string
	Active() bool
	Stop()
}

// MediaDeviceInfo mirrors what a media device enumeration reports about a
// single attached device.
type MediaDeviceInfo struct {
	DeviceID string `json:"device_id"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
}

const (
	DeviceKindAudioInput  = "audioinput"
	DeviceKindAudioOutput = "audiooutput"
	DeviceKindVideoInput  = "videoinput"
)

// Reasons reported on the Ended channel when a feed stops.
const (
	EndReasonTrackEnded       = "track_ended"
	EndReasonDeviceRemoved    = "device_removed"
	EndReasonPermissionDenied = "permission_denied"
)

// DeviceEnumerator lists the media devices currently attached to the host.
type DeviceEnumerator interface {
	Enumerate() ([]MediaDeviceInfo, error)
}
