package activity

import "github.com/studytrack/backend/internal/models"

// MilestoneDef defines a single milestone.
type MilestoneDef struct {
	Name        string
	Description string
}

// Milestones maps milestone keys to their definitions.
var Milestones = map[string]MilestoneDef{
	"first_session": {Name: "First Steps", Description: "Complete your first focus session"},
	"focus_10h":     {Name: "Ten Hours", Description: "10 hours of focused study"},
	"focus_50h":     {Name: "Fifty Hours", Description: "50 hours of focused study"},
	"focus_100h":    {Name: "Centurion", Description: "100 hours of focused study"},
	"streak_3":      {Name: "Getting Started", Description: "3-day streak"},
	"streak_7":      {Name: "Week Warrior", Description: "7-day streak"},
	"streak_30":     {Name: "Monthly Master", Description: "30-day streak"},
}

// CheckMilestones returns every milestone key the streak qualifies for. The
// caller awards only the ones not yet earned.
func CheckMilestones(s models.UserStreak) []string {
	var earned []string

	if s.TotalSessions >= 1 {
		earned = append(earned, "first_session")
	}

	hours := s.TotalFocusSecs / 3600
	if hours >= 10 {
		earned = append(earned, "focus_10h")
	}
	if hours >= 50 {
		earned = append(earned, "focus_50h")
	}
	if hours >= 100 {
		earned = append(earned, "focus_100h")
	}

	if s.CurrentStreak >= 3 {
		earned = append(earned, "streak_3")
	}
	if s.CurrentStreak >= 7 {
		earned = append(earned, "streak_7")
	}
	if s.CurrentStreak >= 30 {
		earned = append(earned, "streak_30")
	}

	return earned
}

// newMilestones filters out keys that were already earned, keeping order.
func newMilestones(qualified, earned []string) []string {
	have := make(map[string]bool, len(earned))
	for _, k := range earned {
		have[k] = true
	}
	var out []string
	for _, k := range qualified {
		if !have[k] {
			out = append(out, k)
		}
	}
	return out
}
