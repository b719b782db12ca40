package detection

import (
	"testing"
	"time"

	"github.com/san-kum/examguard/server/config"
	"github.com/san-kum/examguard/server/models"
	"github.com/stretchr/testify/assert"
)

func TestCategorizeDevice(t *testing.T) {
	tests := []struct {
		class string
		want  DeviceCategory
	}{
		{"cell phone", CategoryPhone},
		{"Cell Phone", CategoryPhone},
		{"  phone  ", CategoryPhone},
		{"tablet", CategoryTablet},
		{"laptop", CategoryOther},
		{"book", CategoryOther},
		{"person", CategoryNone},
		{"chair", CategoryNone},
		{"", CategoryNone},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeDevice(tt.class))
		})
	}
}

func TestIsUnauthorizedDevice(t *testing.T) {
	assert.True(t, IsUnauthorizedDevice("cell phone"))
	assert.True(t, IsUnauthorizedDevice("laptop"))
	assert.False(t, IsUnauthorizedDevice("person"))
}

func TestProcessDetections(t *testing.T) {
	cfg := config.LoadConfig().Detection
	p := NewProcessor(cfg)
	now := time.Now()

	t.Run("filters by confidence and vocabulary", func(t *testing.T) {
		result := p.ProcessDetections([]models.DetectedObject{
			{Class: "cell phone", Score: 0.9},
			{Class: "cell phone", Score: 0.3},
			{Class: "person", Score: 0.99},
			{Class: "laptop", Score: 0.6},
		}, now)

		assert.Equal(t, []string{"cell phone", "laptop"}, result.DevicesDetected)
		assert.True(t, result.HasPhone)
		assert.False(t, result.HasTablet)
		assert.True(t, result.HasOtherDevice)
		assert.Equal(t, 0.9, result.Confidence)
	})

	t.Run("empty frame", func(t *testing.T) {
		result := p.ProcessDetections(nil, now)
		assert.Empty(t, result.DevicesDetected)
		assert.False(t, result.HasPhone)
		assert.Equal(t, float64(0), result.Confidence)
	})

	t.Run("score exactly at threshold counts", func(t *testing.T) {
		result := p.ProcessDetections([]models.DetectedObject{
			{Class: "tablet", Score: 0.5},
		}, now)
		assert.True(t, result.HasTablet)
	})
}

func TestSeverityAndMessage(t *testing.T) {
	phone := models.DeviceDetectionResult{HasPhone: true, DevicesDetected: []string{"cell phone"}}
	assert.Equal(t, models.SeverityHigh, Severity(phone))
	assert.Equal(t, "Unauthorized device detected: cell phone", Message(phone))

	other := models.DeviceDetectionResult{HasOtherDevice: true, DevicesDetected: []string{"laptop", "book"}}
	assert.Equal(t, models.SeverityMedium, Severity(other))
	assert.Equal(t, "Unauthorized device detected: laptop, book", Message(other))

	assert.Equal(t, "Unauthorized device detected", Message(models.DeviceDetectionResult{}))
}

func TestDebouncerFiresOncePerEpisode(t *testing.T) {
	d := NewDebouncer(3, 1)

	assert.True(t, d.Observe(true), "first positive confirms")
	assert.True(t, d.Active())

	assert.False(t, d.Observe(true), "episode already confirmed")
	assert.False(t, d.Observe(false), "window still holds positives")
	assert.False(t, d.Observe(false))
	assert.True(t, d.Active(), "one positive still in window")

	assert.False(t, d.Observe(false), "window now clear, episode ends")
	assert.False(t, d.Active())

	assert.True(t, d.Observe(true), "new episode confirms again")
}

func TestDebouncerRequiredCount(t *testing.T) {
	d := NewDebouncer(3, 2)

	assert.False(t, d.Observe(true), "one positive is not enough")
	assert.False(t, d.Observe(false))
	assert.True(t, d.Observe(true), "two positives in window confirm")
}

func TestDebouncerReset(t *testing.T) {
	d := NewDebouncer(3, 1)
	d.Observe(true)
	d.Reset()

	assert.False(t, d.Active())
	assert.True(t, d.Observe(true), "reset re-arms immediately")
}

func TestDebouncerClampsBadParams(t *testing.T) {
	d := NewDebouncer(0, 5)
	assert.True(t, d.Observe(true))
}
