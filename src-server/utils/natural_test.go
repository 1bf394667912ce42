package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNaturalDate(t *testing.T) {
	parser := NewWhenParser()
	now := time.Date(2025, time.August, 5, 10, 0, 0, 0, time.UTC)

	date, err := ParseNaturalDate(parser, "2025-09-01", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-01", date)

	date, err = ParseNaturalDate(parser, "tomorrow", now)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-06", date)

	for _, bad := range []string{"", "2025-13-01", "whenever works"} {
		_, err := ParseNaturalDate(parser, bad, now)
		assert.Error(t, err, bad)
	}
}

func TestCleanupString(t *testing.T) {
	assert.Equal(t, "Read chapter 3 of Narnia", CleanupString("  read   chapter 3 of Narnia. "))
	assert.Equal(t, "", CleanupString("   "))
}
