package detection

import (
	"fmt"
	"strings"
	"time"

	"github.com/san-kum/examguard/server/config"
	"github.com/san-kum/examguard/server/models"
)

// DeviceCategory buckets a detected object class.
type DeviceCategory int

const (
	CategoryNone DeviceCategory = iota
	CategoryPhone
	CategoryTablet
	CategoryOther
)

var phoneClasses = map[string]bool{
	"cell phone":   true,
	"mobile phone": true,
	"phone":        true,
}

var tabletClasses = map[string]bool{
	"tablet": true,
	"ipad":   true,
}

var otherDeviceClasses = map[string]bool{
	"laptop": true,
	"tv":     true,
	"remote": true,
	"book":   true,
}

// CategorizeDevice maps an object class to its device category, or
// CategoryNone for classes that are not devices of interest.
func CategorizeDevice(class string) DeviceCategory {
	normalized := strings.ToLower(strings.TrimSpace(class))
	switch {
	case phoneClasses[normalized]:
		return CategoryPhone
	case tabletClasses[normalized]:
		return CategoryTablet
	case otherDeviceClasses[normalized]:
		return CategoryOther
	default:
		return CategoryNone
	}
}

// IsUnauthorizedDevice reports whether the object class is something a
// student must not have in view during an exam.
func IsUnauthorizedDevice(class string) bool {
	return CategorizeDevice(class) != CategoryNone
}

// Processor filters raw model detections down to confident, unauthorized
// devices.
type Processor struct {
	cfg config.DetectionConfig
}

func NewProcessor(cfg config.DetectionConfig) *Processor {
	return &Processor{cfg: cfg}
}

// ProcessDetections summarizes one frame's detections. Objects below the
// confidence threshold or outside the device vocabulary are ignored.
func (p *Processor) ProcessDetections(objects []models.DetectedObject, at time.Time) models.DeviceDetectionResult {
	result := models.DeviceDetectionResult{Timestamp: at}

	for _, obj := range objects {
		if obj.Score < p.cfg.ConfidenceThreshold {
			continue
		}

		category := CategorizeDevice(obj.Class)
		if category == CategoryNone {
			continue
		}

		result.DevicesDetected = append(result.DevicesDetected, obj.Class)
		if obj.Score > result.Confidence {
			result.Confidence = obj.Score
		}

		switch category {
		case CategoryPhone:
			result.HasPhone = true
		case CategoryTablet:
			result.HasTablet = true
		case CategoryOther:
			result.HasOtherDevice = true
		}
	}

	return result
}

// Severity ranks a detection result. Phones are the primary cheating
// vector and rank highest.
func Severity(result models.DeviceDetectionResult) models.Severity {
	if result.HasPhone {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// Message renders a human-readable alert message for a detection result.
func Message(result models.DeviceDetectionResult) string {
	if len(result.DevicesDetected) == 0 {
		return "Unauthorized device detected"
	}
	return fmt.Sprintf("Unauthorized device detected: %s",
		strings.Join(result.DevicesDetected, ", "))
}
