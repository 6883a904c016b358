package monitor

import (
	"testing"
	"time"
)

func TestNextRun(t *testing.T) {
	now := time.Date(2024, time.June, 15, 14, 37, 12, 0, time.UTC)

	tests := []struct {
		frequency string
		expected  time.Time
	}{
		{FrequencyDaily, time.Date(2024, time.June, 16, 6, 0, 0, 0, time.UTC)},
		{FrequencyWeekly, time.Date(2024, time.June, 22, 6, 0, 0, 0, time.UTC)},
		{FrequencyRealtime, time.Date(2024, time.June, 15, 14, 52, 12, 0, time.UTC)},
		{"", time.Date(2024, time.June, 16, 6, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		if got := NextRun(tt.frequency, now); !got.Equal(tt.expected) {
			t.Errorf("Frequency %q: expected %v, got %v", tt.frequency, tt.expected, got)
		}
	}
}

func TestNextRunCrossesMonthAndKeepsLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	now := time.Date(2024, time.January, 31, 23, 0, 0, 0, loc)

	got := NextRun(FrequencyDaily, now)
	expected := time.Date(2024, time.February, 1, 6, 0, 0, 0, loc)
	if !got.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
	if got.Location() != loc {
		t.Errorf("Expected location %v, got %v", loc, got.Location())
	}
}
