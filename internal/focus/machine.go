package focus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/models"
)

var (
	ErrNoSession        = errors.New("no active focus session")
	ErrSessionExists    = errors.New("a focus session is already running")
	ErrNotActive        = errors.New("session is not active")
	ErrNotPaused        = errors.New("session is not paused")
	ErrOnBreak          = errors.New("a break is already in progress")
	ErrNoOpenBreak      = errors.New("no break in progress")
	ErrInvalidPhase     = errors.New("invalid phase type")
	ErrInvalidDuration  = errors.New("duration must be positive")
	ErrSyncFailed       = errors.New("server did not acknowledge the update")
	ErrQueued           = errors.New("applied locally, server update queued")
	ErrMissingSessionID = errors.New("server returned a session without an id")
)

// Machine owns the local session. Transitions return nil on success and
// never panic. It is not safe for concurrent use; Runner serialises access.
type Machine struct {
	remote   Remote
	store    SessionStore
	queue    *Queue
	now      func() time.Time
	log      *zap.Logger
	deviceID string
	timezone string

	session *models.FocusSession
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
		if m.queue != nil {
			m.queue.now = now
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Machine) { m.log = log }
}

func WithDevice(deviceID, timezone string) Option {
	return func(m *Machine) {
		m.deviceID = deviceID
		m.timezone = timezone
	}
}

func NewMachine(remote Remote, store SessionStore, queue *Queue, opts ...Option) *Machine {
	m := &Machine{
		remote:   remote,
		store:    store,
		queue:    queue,
		now:      time.Now,
		log:      zap.NewNop(),
		timezone: "UTC",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads the session left by a previous process.
func (m *Machine) Restore(ctx context.Context) error {
	s, err := m.store.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("load local session: %w", err)
	}
	m.session = s
	return nil
}

// Session returns a copy of the current session, or nil.
func (m *Machine) Session() *models.FocusSession {
	if m.session == nil {
		return nil
	}
	cp := *m.session
	cp.Breaks = append([]models.Break(nil), m.session.Breaks...)
	return &cp
}

func (m *Machine) Queue() *Queue {
	return m.queue
}

// Start creates the session on the server first; nothing is stored locally
// if that fails.
func (m *Machine) Start(ctx context.Context, subjectID int64, phase models.PhaseType, minutes int, skipBreaks bool) error {
	if m.session != nil {
		return ErrSessionExists
	}
	if !models.ValidPhaseTypes[phase] {
		return ErrInvalidPhase
	}
	if minutes <= 0 {
		return ErrInvalidDuration
	}

	created, err := m.remote.Create(ctx, models.CreateFocusSessionRequest{
		SubjectID:  subjectID,
		PhaseType:  phase,
		Duration:   minutes,
		SkipBreaks: skipBreaks,
		Timezone:   m.timezone,
		DeviceID:   m.deviceID,
	})
	if err != nil {
		m.log.Warn("focus session start failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	if created.ID == "" {
		return ErrMissingSessionID
	}

	now := m.now()
	s := &models.FocusSession{
		ID:           created.ID,
		UserID:       created.UserID,
		SubjectID:    subjectID,
		DeviceID:     m.deviceID,
		PhaseType:    phase,
		Duration:     minutes,
		SkipBreaks:   skipBreaks,
		Status:       models.SessionActive,
		StartTime:    now,
		CurrentPhase: models.Phase{Type: phase, StartTime: now, Duration: minutes},
		Breaks:       []models.Break{},
		Timezone:     m.timezone,
		LastSyncTime: &now,
	}
	if err := m.store.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("save local session: %w", err)
	}
	m.session = s
	m.log.Info("focus session started",
		zap.String("session_id", s.ID),
		zap.Int64("subject_id", subjectID),
		zap.String("phase", string(phase)),
		zap.Int("minutes", minutes),
	)
	return nil
}

// Pause needs the server's ack. On failure the local state is untouched and
// a snapshot of it is queued so the server converges on what the client
// shows.
func (m *Machine) Pause(ctx context.Context) error {
	s := m.session
	if s == nil {
		return ErrNoSession
	}
	if s.Status != models.SessionActive {
		return ErrNotActive
	}

	now := m.now()
	next := *s
	next.Status = models.SessionPaused
	next.PausedAt = &now
	next.Metrics.Interruptions++

	req := m.request(models.ActionPause, &next, now)
	if _, err := m.remote.Act(ctx, req); err != nil {
		return m.ackFailed(ctx, models.ActionPause, err)
	}
	return m.commit(ctx, &next, now)
}

func (m *Machine) Resume(ctx context.Context) error {
	s := m.session
	if s == nil {
		return ErrNoSession
	}
	if s.Status != models.SessionPaused || s.PausedAt == nil {
		return ErrNotPaused
	}

	now := m.now()
	next := *s
	if now.After(*s.PausedAt) {
		next.PausedDuration += now.Sub(*s.PausedAt).Milliseconds()
	}
	next.PausedAt = nil
	next.Status = models.SessionActive

	req := m.request(models.ActionResume, &next, now)
	if _, err := m.remote.Act(ctx, req); err != nil {
		return m.ackFailed(ctx, models.ActionResume, err)
	}
	return m.commit(ctx, &next, now)
}

// StartBreak is applied provisionally; the break counts as timely until it
// is skipped.
func (m *Machine) StartBreak(ctx context.Context) error {
	s := m.session
	if s == nil {
		return ErrNoSession
	}
	if s.Status != models.SessionActive {
		return ErrNotActive
	}
	if OnBreak(s) {
		return ErrOnBreak
	}

	now := m.now()
	kind, _ := BreakDuration(s)
	s.Breaks = append(s.Breaks, models.Break{StartTime: now, Type: kind, WasTimely: true})
	return m.provisional(ctx, models.ActionStartBreak, now)
}

func (m *Machine) EndBreak(ctx context.Context) error {
	s := m.session
	if s == nil {
		return ErrNoSession
	}
	if !OnBreak(s) {
		return ErrNoOpenBreak
	}

	now := m.now()
	last := &s.Breaks[len(s.Breaks)-1]
	last.EndTime = &now
	s.Metrics.BreakTime += int64(last.Duration(now) / time.Second)
	return m.provisional(ctx, models.ActionEndBreak, now)
}

// SkipBreak closes the open break early. It costs an interruption and the
// break stops counting toward the long-break cadence.
func (m *Machine) SkipBreak(ctx context.Context) error {
	s := m.session
	if s == nil {
		return ErrNoSession
	}
	if !OnBreak(s) {
		return ErrNoOpenBreak
	}

	now := m.now()
	last := &s.Breaks[len(s.Breaks)-1]
	last.EndTime = &now
	last.WasTimely = false
	s.Metrics.Interruptions++
	return m.provisional(ctx, models.ActionSkipBreak, now)
}

// Stop ends the session and returns its final metrics. The local record is
// cleared even when the server is unreachable; the stop is then queued and
// ErrQueued is returned.
func (m *Machine) Stop(ctx context.Context) (models.SessionMetrics, error) {
	s := m.session
	if s == nil {
		return models.SessionMetrics{}, ErrNoSession
	}

	now := m.now()
	final := *s
	final.Metrics = FinalMetrics(s, now)
	if final.Status == models.SessionPaused && final.PausedAt != nil && now.After(*final.PausedAt) {
		final.PausedDuration += now.Sub(*final.PausedAt).Milliseconds()
		final.PausedAt = nil
	}
	final.Status = models.SessionCompleted
	final.EndTime = &now

	req := m.request(models.ActionStop, &final, now)
	_, actErr := m.remote.Act(ctx, req)

	m.session = nil
	if err := m.store.ClearSession(ctx); err != nil {
		m.log.Error("clear local session failed", zap.Error(err))
	}

	m.log.Info("focus session stopped",
		zap.String("session_id", final.ID),
		zap.Int64("focus_seconds", final.Metrics.TotalFocusTime),
		zap.Int("productivity", final.Metrics.Productivity),
	)

	if actErr != nil {
		if !IsRetryable(actErr) {
			m.log.Error("server rejected stop", zap.String("session_id", final.ID), zap.Error(actErr))
			return final.Metrics, fmt.Errorf("%w: %w", ErrSyncFailed, actErr)
		}
		if err := m.queue.Enqueue(ctx, req); err != nil {
			return final.Metrics, fmt.Errorf("queue stop: %w", err)
		}
		return final.Metrics, ErrQueued
	}
	m.acked(ctx, final.ID)

	if _, err := m.queue.Flush(ctx); err != nil {
		m.log.Warn("offline queue flush failed", zap.Error(err))
	}
	return final.Metrics, nil
}

// Sync pushes the running metrics when SyncInterval has passed since the
// last successful sync, or at once when forced. A successful sync also
// flushes the offline queue.
func (m *Machine) Sync(ctx context.Context, force bool) error {
	s := m.session
	if s == nil || s.Status != models.SessionActive {
		if force {
			_, err := m.queue.Flush(ctx)
			return err
		}
		return nil
	}

	now := m.now()
	if !force && s.LastSyncTime != nil && now.Sub(*s.LastSyncTime) < SyncInterval {
		return nil
	}

	req := m.request(models.ActionSync, s, now)
	if _, err := m.remote.Act(ctx, req); err != nil {
		m.log.Warn("focus session sync failed", zap.String("session_id", s.ID), zap.Error(err))
		if qerr := m.queue.Enqueue(ctx, req); qerr != nil {
			return fmt.Errorf("queue sync: %w", qerr)
		}
		return ErrQueued
	}

	s.LastSyncTime = &now
	if err := m.store.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("save local session: %w", err)
	}
	m.acked(ctx, s.ID)

	if _, err := m.queue.Flush(ctx); err != nil {
		m.log.Warn("offline queue flush failed", zap.Error(err))
	}
	return nil
}

// Display is the countdown for the current phase.
func (m *Machine) Display() DisplayState {
	s := m.session
	if s == nil {
		return DisplayState{Formatted: FormatTime(0)}
	}
	now := m.now()
	remaining := DisplaySeconds(s, now)
	_, breakLen := BreakDuration(s)
	return DisplayState{
		HasSession:    true,
		SessionID:     s.ID,
		SubjectID:     s.SubjectID,
		Remaining:     remaining,
		Formatted:     FormatTime(float64(remaining)),
		Status:        s.Status,
		OnBreak:       OnBreak(s),
		BreakDue:      ShouldTakeBreak(s, now),
		NextBreak:     UntilBreak(s, now),
		BreakLength:   breakLen,
		Interruptions: s.Metrics.Interruptions,
	}
}

type DisplayState struct {
	HasSession    bool                 `json:"has_session"`
	SessionID     string               `json:"session_id,omitempty"`
	SubjectID     int64                `json:"subject_id,omitempty"`
	Remaining     int64                `json:"remaining"`
	Formatted     string               `json:"formatted"`
	Status        models.SessionStatus `json:"status,omitempty"`
	OnBreak       bool                 `json:"on_break"`
	BreakDue      bool                 `json:"break_due"`
	NextBreak     time.Duration        `json:"next_break"`   // time until the break is due
	BreakLength   time.Duration        `json:"break_length"` // length of that break
	Interruptions int                  `json:"interruptions"`
}

func (m *Machine) request(action models.FocusAction, s *models.FocusSession, now time.Time) models.FocusActionRequest {
	metrics := s.Metrics
	if action != models.ActionStop {
		metrics.TotalFocusTime = int64(FocusTime(s, now) / time.Second)
	}
	phase := s.CurrentPhase
	paused := s.PausedDuration
	return models.FocusActionRequest{
		Action:         action,
		SessionID:      s.ID,
		DeviceID:       m.deviceID,
		Metrics:        &metrics,
		Breaks:         append([]models.Break(nil), s.Breaks...),
		CurrentPhase:   &phase,
		PausedDuration: &paused,
		Status:         s.Status,
		At:             &now,
	}
}

func (m *Machine) commit(ctx context.Context, next *models.FocusSession, now time.Time) error {
	next.LastSyncTime = &now
	m.session = next
	if err := m.store.SaveSession(ctx, next); err != nil {
		return fmt.Errorf("save local session: %w", err)
	}
	m.acked(ctx, next.ID)
	return nil
}

// acked runs after the server accepted a full snapshot of the session.
func (m *Machine) acked(ctx context.Context, sessionID string) {
	if err := m.queue.Supersede(ctx, sessionID); err != nil {
		m.log.Warn("drop superseded focus updates", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (m *Machine) ackFailed(ctx context.Context, action models.FocusAction, cause error) error {
	m.log.Warn("focus transition not acknowledged",
		zap.String("action", string(action)),
		zap.String("session_id", m.session.ID),
		zap.Error(cause),
	)
	if IsRetryable(cause) {
		snapshot := m.request(models.ActionSync, m.session, m.now())
		if err := m.queue.Enqueue(ctx, snapshot); err != nil {
			m.log.Error("queue sync snapshot failed", zap.Error(err))
		}
	}
	return fmt.Errorf("%w: %w", ErrSyncFailed, cause)
}

// provisional persists a locally applied transition and then tells the
// server, queueing the update when it cannot be delivered.
func (m *Machine) provisional(ctx context.Context, action models.FocusAction, now time.Time) error {
	s := m.session
	if err := m.store.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("save local session: %w", err)
	}

	req := m.request(action, s, now)
	if _, err := m.remote.Act(ctx, req); err != nil {
		m.log.Warn("focus update not delivered",
			zap.String("action", string(action)),
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
		if !IsRetryable(err) {
			return fmt.Errorf("%w: %w", ErrSyncFailed, err)
		}
		if qerr := m.queue.Enqueue(ctx, req); qerr != nil {
			return fmt.Errorf("queue %s: %w", action, qerr)
		}
		return ErrQueued
	}

	s.LastSyncTime = &now
	if err := m.store.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("save local session: %w", err)
	}
	m.acked(ctx, s.ID)
	return nil
}
