package models

import "time"

// HeadPose is the estimated orientation of a face relative to the camera,
// in degrees. Yaw and pitch are nominally within [-90, 90], roll within
// [-45, 45] for normalization purposes.
type HeadPose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// AttentionMetrics is produced once per analysis tick and superseded by the
// next tick. Only the focus score survives in a bounded rolling history.
// DetectorStatus reports the object-detection backend so consumers can tell
// pose-only monitoring apart from full monitoring.
type AttentionMetrics struct {
	FocusScore        int         `json:"focus_score"`
	HeadPose          HeadPose    `json:"head_pose"`
	IsLookingAtScreen bool        `json:"is_looking_at_screen"`
	IsDistracted      bool        `json:"is_distracted"`
	IsLookingAway     bool        `json:"is_looking_away"`
	DetectorStatus    ModelStatus `json:"detector_status,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

type FocusLevel string

const (
	FocusLevelFocused    FocusLevel = "focused"
	FocusLevelDistracted FocusLevel = "distracted"
	FocusLevelAway       FocusLevel = "away"
)

type AlertType string

const (
	AlertTypeDistraction    AlertType = "distraction"
	AlertTypeLookingAway    AlertType = "looking_away"
	AlertTypeDeviceDetected AlertType = "device_detected"
	AlertTypeMultipleFaces  AlertType = "multiple_faces"
	AlertTypeNoFace         AlertType = "no_face"
	AlertTypeCameraCovered  AlertType = "camera_covered"
	AlertTypeCameraOff      AlertType = "camera_off"
	AlertTypeExternalDevice AlertType = "external_device"
	AlertTypeTabSwitch      AlertType = "tab_switch"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertEvent is immutable once created. Severity is assigned at creation and
// never revised; alerts are append-only in storage.
type AlertEvent struct {
	ID          string    `json:"id"`
	TestCode    string    `json:"test_code"`
	StudentName string    `json:"student_name"`
	Type        AlertType `json:"type"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type DetectedObject struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
	BBox  BBox    `json:"bbox"`
}

// DeviceDetectionResult is transient, one per sample tick; it feeds the
// device-presence debouncer and is not persisted.
type DeviceDetectionResult struct {
	DevicesDetected []string  `json:"devices_detected"`
	HasPhone        bool      `json:"has_phone"`
	HasTablet       bool      `json:"has_tablet"`
	HasOtherDevice  bool      `json:"has_other_device"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
}

type ModelStatus string

const (
	ModelStatusLoading     ModelStatus = "loading"
	ModelStatusReady       ModelStatus = "ready"
	ModelStatusUnavailable ModelStatus = "unavailable"
)
