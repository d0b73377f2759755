package models

import "time"

type PhaseType string

const (
	PhaseLearning PhaseType = "learning"
	PhaseRevision PhaseType = "revision"
	PhasePractice PhaseType = "practice"
)

var ValidPhaseTypes = map[PhaseType]bool{
	PhaseLearning: true,
	PhaseRevision: true,
	PhasePractice: true,
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

type BreakType string

const (
	BreakShort BreakType = "short"
	BreakLong  BreakType = "long"
)

type Break struct {
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Type      BreakType  `json:"type"`
	WasTimely bool       `json:"was_timely"`
}

// Open reports whether the break is still in progress.
func (b Break) Open() bool {
	return b.EndTime == nil
}

// Duration returns the break length, measuring open breaks up to now.
func (b Break) Duration(now time.Time) time.Duration {
	end := now
	if b.EndTime != nil {
		end = *b.EndTime
	}
	if end.Before(b.StartTime) {
		return 0
	}
	return end.Sub(b.StartTime)
}

type Phase struct {
	Type      PhaseType `json:"type"`
	StartTime time.Time `json:"start_time"`
	Duration  int       `json:"duration"` // minutes
}

// SessionMetrics are accumulated client-side and mirrored to the server.
// Times are in seconds.
type SessionMetrics struct {
	TotalFocusTime int64 `json:"total_focus_time"`
	BreakTime      int64 `json:"break_time"`
	Interruptions  int   `json:"interruptions"`
	Productivity   int   `json:"productivity"`
}

type FocusSession struct {
	ID             string         `json:"id"`
	UserID         int64          `json:"user_id"`
	SubjectID      int64          `json:"subject_id"`
	DeviceID       string         `json:"device_id"`
	PhaseType      PhaseType      `json:"phase_type"`
	Duration       int            `json:"duration"` // minutes
	SkipBreaks     bool           `json:"skip_breaks"`
	Status         SessionStatus  `json:"status"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	PausedAt       *time.Time     `json:"paused_at,omitempty"`
	PausedDuration int64          `json:"paused_duration"` // milliseconds
	CurrentPhase   Phase          `json:"current_phase"`
	Breaks         []Break        `json:"breaks"`
	Metrics        SessionMetrics `json:"metrics"`
	Timezone       string         `json:"timezone,omitempty"`
	LastSyncTime   *time.Time     `json:"last_sync_time,omitempty"`
	// ClientTime is the device clock of the newest update applied.
	ClientTime *time.Time `json:"client_time,omitempty"`
}

// ── Focus API Request/Response Types ──────────────────────

type CreateFocusSessionRequest struct {
	SubjectID  int64     `json:"subject_id"`
	PhaseType  PhaseType `json:"phase_type"`
	Duration   int       `json:"duration"`
	SkipBreaks bool      `json:"skip_breaks"`
	Timezone   string    `json:"timezone"`
	DeviceID   string    `json:"device_id"`
}

type CreateFocusSessionResponse struct {
	FocusSession FocusSession `json:"focus_session"`
}

type FocusAction string

const (
	ActionPause      FocusAction = "pause"
	ActionResume     FocusAction = "resume"
	ActionStartBreak FocusAction = "start_break"
	ActionEndBreak   FocusAction = "end_break"
	ActionSkipBreak  FocusAction = "skip_break"
	ActionSync       FocusAction = "sync"
	ActionStop       FocusAction = "stop"
)

var ValidFocusActions = map[FocusAction]bool{
	ActionPause:      true,
	ActionResume:     true,
	ActionStartBreak: true,
	ActionEndBreak:   true,
	ActionSkipBreak:  true,
	ActionSync:       true,
	ActionStop:       true,
}

// FocusActionRequest is the body of the multiplexed session endpoint. Only
// the fields relevant to the action are read.
type FocusActionRequest struct {
	Action         FocusAction     `json:"action"`
	SessionID      string          `json:"session_id"`
	DeviceID       string          `json:"device_id"`
	Metrics        *SessionMetrics `json:"metrics,omitempty"`
	Breaks         []Break         `json:"breaks,omitempty"`
	CurrentPhase   *Phase          `json:"current_phase,omitempty"`
	PausedDuration *int64          `json:"paused_duration,omitempty"`
	Status         SessionStatus   `json:"status,omitempty"`
	At             *time.Time      `json:"at,omitempty"`
}

type FocusActionResponse struct {
	Success      bool          `json:"success"`
	FocusSession *FocusSession `json:"focus_session,omitempty"`
}
