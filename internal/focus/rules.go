// Package focus runs a study session on the client: pause and resume,
// scheduled breaks, periodic sync to the server and an offline queue for
// updates the server did not acknowledge.
package focus

import (
	"math"
	"time"

	"github.com/studytrack/backend/internal/models"
)

const (
	MinFocusDuration        = 25 * time.Minute
	ShortBreakDuration      = 5 * time.Minute
	LongBreakDuration       = 15 * time.Minute
	SessionsBeforeLongBreak = 4

	SyncInterval    = 60 * time.Second
	DisplayInterval = time.Second

	// Each interruption costs a tenth of the productivity score.
	interruptionPenalty = 0.1
)

// OnBreak reports whether the last break is still open.
func OnBreak(s *models.FocusSession) bool {
	if s == nil || len(s.Breaks) == 0 {
		return false
	}
	return s.Breaks[len(s.Breaks)-1].Open()
}

// ShouldTakeBreak is polled on every display tick. It turns true once the
// session has been focused for MinFocusDuration since the last break ended,
// or since the start when no break has been taken.
func ShouldTakeBreak(s *models.FocusSession, now time.Time) bool {
	if !breaksRunning(s) {
		return false
	}
	return now.Sub(focusSince(s)) >= MinFocusDuration
}

// UntilBreak is how long until ShouldTakeBreak turns true. It is zero when
// a break is due and when no break is scheduled at all.
func UntilBreak(s *models.FocusSession, now time.Time) time.Duration {
	if !breaksRunning(s) {
		return 0
	}
	left := MinFocusDuration - now.Sub(focusSince(s))
	if left < 0 {
		return 0
	}
	return left
}

func breaksRunning(s *models.FocusSession) bool {
	return s != nil && s.Status == models.SessionActive && !s.SkipBreaks && !OnBreak(s)
}

func focusSince(s *models.FocusSession) time.Time {
	if n := len(s.Breaks); n > 0 && s.Breaks[n-1].EndTime != nil {
		return *s.Breaks[n-1].EndTime
	}
	return s.StartTime
}

// BreakDuration picks a long break after every SessionsBeforeLongBreak
// timely breaks. Skipped breaks do not count.
func BreakDuration(s *models.FocusSession) (models.BreakType, time.Duration) {
	timely := 0
	if s != nil {
		for _, b := range s.Breaks {
			if b.WasTimely {
				timely++
			}
		}
	}
	if timely > 0 && timely%SessionsBeforeLongBreak == 0 {
		return models.BreakLong, LongBreakDuration
	}
	return models.BreakShort, ShortBreakDuration
}

// pausedTotal includes the running pause when the session is paused.
func pausedTotal(s *models.FocusSession, now time.Time) time.Duration {
	total := time.Duration(s.PausedDuration) * time.Millisecond
	if s.Status == models.SessionPaused && s.PausedAt != nil && now.After(*s.PausedAt) {
		total += now.Sub(*s.PausedAt)
	}
	return total
}

func breaksTotal(s *models.FocusSession, now time.Time) time.Duration {
	var total time.Duration
	for _, b := range s.Breaks {
		total += b.Duration(now)
	}
	return total
}

// FocusTime is the wall time since start minus pauses and breaks.
func FocusTime(s *models.FocusSession, now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := now.Sub(s.StartTime) - pausedTotal(s, now) - breaksTotal(s, now)
	if d < 0 {
		return 0
	}
	return d
}

// Productivity scores focus time against the planned duration, less
// interruptionPenalty per interruption, clamped to [0,100].
func Productivity(focusSeconds int64, durationMinutes, interruptions int) int {
	if durationMinutes <= 0 {
		return 0
	}
	ratio := float64(focusSeconds) / float64(durationMinutes*60)
	score := math.Round(ratio * (1 - float64(interruptions)*interruptionPenalty) * 100)
	switch {
	case math.IsNaN(score) || score < 0:
		return 0
	case score > 100:
		return 100
	}
	return int(score)
}

// FinalMetrics computes the metrics sent with stop.
func FinalMetrics(s *models.FocusSession, now time.Time) models.SessionMetrics {
	if s == nil {
		return models.SessionMetrics{}
	}
	m := s.Metrics
	m.TotalFocusTime = int64(FocusTime(s, now) / time.Second)
	m.Productivity = Productivity(m.TotalFocusTime, s.Duration, m.Interruptions)
	return m
}

// DisplaySeconds is the countdown shown for the current phase.
func DisplaySeconds(s *models.FocusSession, now time.Time) int64 {
	if s == nil {
		return 0
	}
	phaseMinutes := s.CurrentPhase.Duration
	if phaseMinutes == 0 {
		phaseMinutes = s.Duration
	}
	start := s.CurrentPhase.StartTime
	if start.IsZero() {
		start = s.StartTime
	}

	elapsed := now.Sub(start) - pausedTotal(s, now)
	remaining := int64(phaseMinutes*60) - int64(elapsed/time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}
