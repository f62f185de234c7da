package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidRangePreset(t *testing.T) {
	assert.True(t, ValidRangePreset(RangePresetLast30Days))
	assert.True(t, ValidRangePreset(RangePresetLast90Days))
	assert.True(t, ValidRangePreset(RangePresetYearToDate))
	assert.False(t, ValidRangePreset("last_7_days"))
	assert.False(t, ValidRangePreset(""))
}

func TestResolveRange(t *testing.T) {
	now := time.Date(2026, time.August, 15, 10, 30, 0, 0, time.UTC)
	day := now.Truncate(24 * time.Hour)

	tests := []struct {
		name      string
		preset    string
		wantStart time.Time
		wantEnd   time.Time
		wantOK    bool
	}{
		{
			name:      "last 30 days",
			preset:    RangePresetLast30Days,
			wantStart: day.AddDate(0, 0, -30),
			wantEnd:   day,
			wantOK:    true,
		},
		{
			name:      "last 90 days",
			preset:    RangePresetLast90Days,
			wantStart: day.AddDate(0, 0, -90),
			wantEnd:   day,
			wantOK:    true,
		},
		{
			name:      "year to date",
			preset:    RangePresetYearToDate,
			wantStart: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   day,
			wantOK:    true,
		},
		{
			name:   "unknown preset",
			preset: "forever",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := ResolveRange(tt.preset, now)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantStart, start)
				assert.Equal(t, tt.wantEnd, end)
			}
		})
	}
}
