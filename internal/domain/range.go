package domain

import "time"

// Range presets accepted on location_overview submissions. A preset is
// stored verbatim and resolved to concrete dates when the report is
// generated, so "last_30_days" means the 30 days before generation, not
// before submission.
const (
	RangePresetLast30Days = "last_30_days"
	RangePresetLast90Days = "last_90_days"
	RangePresetYearToDate = "year_to_date"
)

// DateLayout is the wire format for range dates.
const DateLayout = "2006-01-02"

// ValidRangePreset reports whether p is a recognized preset.
func ValidRangePreset(p string) bool {
	switch p {
	case RangePresetLast30Days, RangePresetLast90Days, RangePresetYearToDate:
		return true
	}
	return false
}

// ResolveRange turns a preset into a concrete [start, end] date pair
// relative to now.
func ResolveRange(preset string, now time.Time) (time.Time, time.Time, bool) {
	end := now.Truncate(24 * time.Hour)
	switch preset {
	case RangePresetLast30Days:
		return end.AddDate(0, 0, -30), end, true
	case RangePresetLast90Days:
		return end.AddDate(0, 0, -90), end, true
	case RangePresetYearToDate:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), end, true
	}
	return time.Time{}, time.Time{}, false
}
