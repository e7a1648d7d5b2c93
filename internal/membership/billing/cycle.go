package billing

import "time"

// MaxAnchorDay caps the billing anchor so every month has the anchor date;
// joining on the 29th-31st bills on the 28th.
const MaxAnchorDay = 28

// GraceDays is how long after a cycle starts the entry for it is due.
const GraceDays = 7

// AnchorDay returns the billing anchor day derived from a join time,
// clamped to 1-28.
func AnchorDay(joinedAt time.Time) int {
	day := joinedAt.Day()
	if day > MaxAnchorDay {
		return MaxAnchorDay
	}
	return day
}

// NextOccurrence returns the first occurrence of the anchor day strictly
// after the given instant, at midnight UTC.
func NextOccurrence(after time.Time, anchorDay int) time.Time {
	after = after.UTC()
	candidate := time.Date(after.Year(), after.Month(), anchorDay, 0, 0, 0, 0, time.UTC)
	if candidate.After(after) {
		return candidate
	}
	return candidate.AddDate(0, 1, 0)
}

// NextCycle returns the cycle boundary one month after the given boundary,
// re-anchored so short months never drift the schedule.
func NextCycle(boundary time.Time, anchorDay int) time.Time {
	boundary = boundary.UTC()
	return time.Date(boundary.Year(), boundary.Month()+1, anchorDay, 0, 0, 0, 0, time.UTC)
}

// DueDate returns when the entry booked at a cycle boundary falls due.
func DueDate(cycleStart time.Time) time.Time {
	return cycleStart.AddDate(0, 0, GraceDays)
}
