package models

import "time"

type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusTerminated SessionStatus = "terminated"
)

// DeviceInfo captures the student's machine at session start. DetectedDevices
// holds the merged baseline of peripheral labels seen during the session.
type DeviceInfo struct {
	IsMobile        bool     `json:"is_mobile"`
	UserAgent       string   `json:"user_agent"`
	DetectedDevices []string `json:"detected_devices,omitempty"`
}

// TestSession is one student's single attempt at one test, identified by the
// (TestCode, StudentName) composite key. Status only ever moves
// active -> completed or active -> terminated.
type TestSession struct {
	TestCode       string        `json:"test_code"`
	StudentName    string        `json:"student_name"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
	Alerts         []AlertEvent  `json:"alerts"`
	AttentionScore int           `json:"attention_score"`
	Status         SessionStatus `json:"status"`
	DeviceInfo     DeviceInfo    `json:"device_info"`
}

// RecordingMeta describes a persisted recording blob. TestCode and
// StudentName are empty until the recording is linked to a submission.
type RecordingMeta struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	TestCode    string    `json:"test_code,omitempty"`
	StudentName string    `json:"student_name,omitempty"`
}
