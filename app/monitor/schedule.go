package monitor

import "time"

const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyRealtime = "realtime"
)

var frequencies = []string{FrequencyDaily, FrequencyWeekly, FrequencyRealtime}

const (
	runHour       = 6
	realtimeEvery = 15 * time.Minute
)

// NextRun returns when a monitor with the given frequency runs after now.
// Daily and weekly runs happen at 06:00 in now's location; unknown
// frequencies are treated as daily.
func NextRun(frequency string, now time.Time) time.Time {
	switch frequency {
	case FrequencyRealtime:
		return now.Add(realtimeEvery)
	case FrequencyWeekly:
		return atRunHour(now.AddDate(0, 0, 7))
	default:
		return atRunHour(now.AddDate(0, 0, 1))
	}
}

func atRunHour(day time.Time) time.Time {
	year, month, d := day.Date()
	return time.Date(year, month, d, runHour, 0, 0, 0, day.Location())
}
