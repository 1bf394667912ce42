package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"09:00", 9 * 60},
		{"9:05", 9*60 + 5},
		{"14:00:00", 14 * 60},
		{"9 AM", 9 * 60},
		{"9:30 pm", 21*60 + 30},
		{"8pm", 20 * 60},
		{"12 AM", 0},
		{"12:15 PM", 12*60 + 15},
		{"2025-08-05T09:00:00", 9 * 60},
		{"2025-08-05 16:45", 16*60 + 45},
		{"2025-08-05T09:00:00Z", 9 * 60},
		{"2025-08-05T09:00:00.000+02:00", 9 * 60},
		{"2025-08-05T09:00:00-05:00", 9 * 60},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "noon", "25:00", "13 PM", "0 AM", "9:75", "2025-08-05"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatTimeOfDay(t *testing.T) {
	assert.Equal(t, "00:00", FormatTimeOfDay(0))
	assert.Equal(t, "14:30", FormatTimeOfDay(14*60+30))
	assert.Equal(t, "00:30", FormatTimeOfDay(minutesPerDay+30))
	assert.Equal(t, "23:00", FormatTimeOfDay(-60))

	got, err := CanonicalTime("2:05 pm")
	require.NoError(t, err)
	assert.Equal(t, "14:05", got)
}

func TestDurationArithmetic(t *testing.T) {
	assert.Equal(t, 14*60+30, FinishFrom(14*60, 30))
	assert.Equal(t, 30, FinishFrom(23*60+30, 60))

	assert.Equal(t, 90, DurationBetween(9*60, 10*60+30))
	// 22:00 -> 01:00 spans midnight
	assert.Equal(t, 180, DurationBetween(22*60, 60))
	assert.Equal(t, 0, DurationBetween(600, 600))
}
