package session

import (
	"regexp"

	"github.com/san-kum/examguard/server/capture"
)

// suspiciousDevicePattern matches device labels that suggest a secondary
// listening or communication channel. Labels come from the platform's
// media device enumeration and are free-form vendor strings.
var suspiciousDevicePattern = regexp.MustCompile(
	`(?i)bluetooth|bt|airpods|earbuds|headset|handsfree|speaker|phone|iphone|android|pixel`)

// FilterSuspiciousDevices returns the labels of enumerated devices that
// look like unauthorized audio or phone hardware. Devices without labels
// are ignored; enumeration only exposes labels once camera permission is
// granted, so an empty label carries no signal.
func FilterSuspiciousDevices(devices []capture.MediaDeviceInfo) []string {
	var suspicious []string
	for _, device := range devices {
		if device.Label == "" {
			continue
		}
		if suspiciousDevicePattern.MatchString(device.Label) {
			suspicious = append(suspicious, device.Label)
		}
	}
	return suspicious
}

// diffNewDevices returns entries of current not present in baseline.
func diffNewDevices(baseline, current []string) []string {
	known := make(map[string]bool, len(baseline))
	for _, label := range baseline {
		known[label] = true
	}

	var added []string
	for _, label := range current {
		if !known[label] {
			added = append(added, label)
		}
	}
	return added
}
