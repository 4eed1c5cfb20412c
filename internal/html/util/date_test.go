package util_test

import (
	"testing"
	"time"

	"github.com/mobarasa/roamtech-cypress/internal/html/util"
	"github.com/stretchr/testify/assert"
)

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "30 s ago", util.FormatRelativeTime(now.Add(-30*time.Second), now))
	assert.Equal(t, "5 min ago", util.FormatRelativeTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3 h ago", util.FormatRelativeTime(now.Add(-3*time.Hour), now))
	assert.Equal(t, "1 day ago", util.FormatRelativeTime(now.Add(-25*time.Hour), now))
	assert.Equal(t, "2 days ago", util.FormatRelativeTime(now.Add(-49*time.Hour), now))
	assert.Equal(t, "Mar 1", util.FormatRelativeTime(now.AddDate(0, 0, -19), now))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250 ms", util.FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", util.FormatDuration(1500*time.Millisecond))
}
