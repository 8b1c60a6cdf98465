package outage

import "time"

// EstimatedDuration returns the scheduled length in seconds. The second result
// is false ("unknown") when either bound is missing or end does not follow start.
func EstimatedDuration(start, end time.Time) (int64, bool) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return 0, false
	}
	return int64(end.Sub(start) / time.Second), true
}

func estimatedDurationPtr(start, end time.Time) *int64 {
	d, ok := EstimatedDuration(start, end)
	if !ok {
		return nil
	}
	return &d
}
