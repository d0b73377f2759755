package activity

import (
	"time"

	"github.com/studytrack/backend/internal/models"
)

// LocalDay is the calendar day of t in the user's timezone, as midnight UTC.
// Unknown timezones fall back to UTC.
func LocalDay(t time.Time, timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextStreak applies one day of activity to a streak.
func NextStreak(s models.UserStreak, day time.Time) models.UserStreak {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	if s.LastActiveDate != nil {
		last := time.Date(s.LastActiveDate.Year(), s.LastActiveDate.Month(), s.LastActiveDate.Day(), 0, 0, 0, 0, time.UTC)

		daysSinceLast := int(day.Sub(last).Hours() / 24)
		switch {
		case daysSinceLast <= 0:
			// Already active that day, or a late replay of an older session.
			return s
		case daysSinceLast == 1:
			s.CurrentStreak++
		default:
			s.CurrentStreak = 1
		}
	} else {
		s.CurrentStreak = 1
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.LastActiveDate = &day
	return s
}
