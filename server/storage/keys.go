package storage

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionKey identifies a session by the pair that makes it unique.
func SessionKey(testCode, studentName string) string {
	return fmt.Sprintf("%s:%s", testCode, studentName)
}

// NewRecordingKey mints a storage key for a new recording.
func NewRecordingKey() string {
	return "recording_" + uuid.NewString()
}

// NewAlertID mints a unique alert identifier.
func NewAlertID() string {
	return uuid.NewString()
}
