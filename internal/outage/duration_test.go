package outage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimatedDuration(t *testing.T) {
	start := time.Date(2025, 7, 25, 14, 0, 0, 0, time.UTC)
	end := start.Add(2*time.Hour + 30*time.Second)

	d, ok := EstimatedDuration(start, end)
	assert.True(t, ok)
	assert.Equal(t, int64(7230), d)

	again, _ := EstimatedDuration(start, end)
	assert.Equal(t, d, again)

	d, ok = EstimatedDuration(end, start)
	assert.False(t, ok)
	assert.Zero(t, d)

	_, ok = EstimatedDuration(start, start)
	assert.False(t, ok)

	_, ok = EstimatedDuration(time.Time{}, end)
	assert.False(t, ok)
}

func TestEstimatedDurationPtr(t *testing.T) {
	start := time.Date(2025, 7, 25, 14, 0, 0, 0, time.UTC)
	assert.Nil(t, estimatedDurationPtr(start, start.Add(-time.Minute)))
	if p := estimatedDurationPtr(start, start.Add(time.Minute)); assert.NotNil(t, p) {
		assert.Equal(t, int64(60), *p)
	}
}
