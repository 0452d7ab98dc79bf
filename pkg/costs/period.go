package costs

import "time"

// Period identifies a calendar-aligned budget accounting interval.
type Period int

const (
	// PeriodDaily resets at midnight.
	PeriodDaily Period = iota

	// PeriodWeekly resets on Monday midnight (ISO week).
	PeriodWeekly

	// PeriodMonthly resets on the first of the month.
	PeriodMonthly
)

// Periods lists all budget periods from shortest to longest.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}

// String returns the period name for errors, events, and metrics labels.
func (p Period) String() string {
	switch p {
	case PeriodDaily:
		return "daily"
	case PeriodWeekly:
		return "weekly"
	case PeriodMonthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// startOf returns the calendar start of the period containing now.
func (p Period) startOf(now time.Time) time.Time {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch p {
	case PeriodDaily:
		return midnight
	case PeriodWeekly:
		// Back up to Monday.
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	default:
		return midnight
	}
}

// nextStart returns when the period beginning at start rolls over.
func (p Period) nextStart(start time.Time) time.Time {
	switch p {
	case PeriodDaily:
		return start.AddDate(0, 0, 1)
	case PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case PeriodMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}
