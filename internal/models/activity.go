package models

import "time"

// DailyActivity aggregates completed focus sessions per calendar day.
type DailyActivity struct {
	UserID            int64     `json:"user_id"`
	Date              time.Time `json:"date"`
	FocusSeconds      int64     `json:"focus_seconds"`
	BreakSeconds      int64     `json:"break_seconds"`
	SessionsCompleted int       `json:"sessions_completed"`
	Interruptions     int       `json:"interruptions"`
}

type UserStreak struct {
	UserID         int64      `json:"user_id"`
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	LastActiveDate *time.Time `json:"last_active_date"`
	TotalFocusSecs int64      `json:"total_focus_seconds"`
	TotalSessions  int        `json:"total_sessions"`
}

type ActivityResponse struct {
	Streak     UserStreak      `json:"streak"`
	Days       []DailyActivity `json:"days"`
	Milestones []string        `json:"milestones"`
}

// SessionOutcome is what the activity recorder needs from a stopped session.
type SessionOutcome struct {
	UserID        int64
	EndedAt       time.Time
	Timezone      string
	FocusSeconds  int64
	BreakSeconds  int64
	Interruptions int
}
