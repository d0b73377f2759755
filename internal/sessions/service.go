// Package sessions is the server-side mirror of client focus sessions. The
// client is authoritative for timing; the server records snapshots, enforces
// single-device ownership and feeds completed sessions to activity tracking.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/models"
)

var (
	ErrNotFound       = errors.New("focus session not found")
	ErrCompleted      = errors.New("focus session already completed")
	ErrDeviceMismatch = errors.New("focus session is owned by another device")
	ErrUnknownAction  = errors.New("unknown focus action")
	ErrInvalidRequest = errors.New("invalid focus session request")
)

type Repository interface {
	Create(ctx context.Context, fs *models.FocusSession) error
	Get(ctx context.Context, id string) (*models.FocusSession, error)
	Update(ctx context.Context, fs *models.FocusSession) error
	Active(ctx context.Context, userID int64) (*models.FocusSession, error)
	CloseOpen(ctx context.Context, userID int64, at time.Time) (int64, error)
	SubjectOwned(ctx context.Context, userID, subjectID int64) (bool, error)
}

// ActivityRecorder receives every session that reaches completed via stop.
type ActivityRecorder interface {
	RecordSession(ctx context.Context, o models.SessionOutcome) ([]string, error)
}

type Service struct {
	store    Repository
	activity ActivityRecorder
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewService(store Repository, activity ActivityRecorder, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		activity: activity,
		log:      log,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

// Create opens a new session for the user. Any session the user still has
// open, on any device, is completed first: the newest device wins.
func (s *Service) Create(ctx context.Context, userID int64, req models.CreateFocusSessionRequest) (*models.FocusSession, error) {
	if !models.ValidPhaseTypes[req.PhaseType] {
		return nil, invalid("phase_type must be learning, revision or practice")
	}
	if req.Duration <= 0 {
		return nil, invalid("duration must be positive")
	}
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		return nil, invalid("device_id is required")
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	} else if _, err := time.LoadLocation(req.Timezone); err != nil {
		return nil, invalid("unknown timezone")
	}

	owned, err := s.store.SubjectOwned(ctx, userID, req.SubjectID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, invalid("subject not found")
	}

	now := s.now()
	closed, err := s.store.CloseOpen(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if closed > 0 {
		s.log.Info("closed open focus sessions",
			zap.Int64("user_id", userID),
			zap.Int64("count", closed),
			zap.String("device_id", req.DeviceID),
		)
	}

	fs := &models.FocusSession{
		ID:           s.newID(),
		UserID:       userID,
		SubjectID:    req.SubjectID,
		DeviceID:     req.DeviceID,
		PhaseType:    req.PhaseType,
		Duration:     req.Duration,
		SkipBreaks:   req.SkipBreaks,
		Status:       models.SessionActive,
		StartTime:    now,
		CurrentPhase: models.Phase{Type: req.PhaseType, StartTime: now, Duration: req.Duration},
		Breaks:       []models.Break{},
		Timezone:     req.Timezone,
		LastSyncTime: &now,
	}
	if err := s.store.Create(ctx, fs); err != nil {
		return nil, err
	}
	return fs, nil
}

// Active returns the user's open session, or ErrNotFound.
func (s *Service) Active(ctx context.Context, userID int64) (*models.FocusSession, error) {
	return s.store.Active(ctx, userID)
}

// Apply records one client action against the session. Replays of the same
// pause or resume are accepted so the offline queue can deliver late; an
// update older than the newest one applied is acknowledged but changes
// nothing.
func (s *Service) Apply(ctx context.Context, userID int64, req models.FocusActionRequest) (*models.FocusSession, error) {
	if !models.ValidFocusActions[req.Action] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	if req.SessionID == "" {
		return nil, invalid("session_id is required")
	}

	fs, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if fs.UserID != userID {
		return nil, ErrNotFound
	}
	if fs.Status == models.SessionCompleted {
		return nil, ErrCompleted
	}
	if req.DeviceID != fs.DeviceID {
		return nil, ErrDeviceMismatch
	}

	at := s.now()
	if req.At != nil && !req.At.IsZero() {
		at = *req.At
		// A queued snapshot delivered after a newer one would roll the
		// mirror back. Stop is terminal and always applied.
		if fs.ClientTime != nil && at.Before(*fs.ClientTime) && req.Action != models.ActionStop {
			s.log.Info("stale focus update ignored",
				zap.String("session_id", fs.ID),
				zap.String("action", string(req.Action)),
				zap.Time("at", at),
				zap.Time("applied", *fs.ClientTime),
			)
			return fs, nil
		}
		clientTime := at
		fs.ClientTime = &clientTime
	}
	applySnapshot(fs, req)

	switch req.Action {
	case models.ActionPause:
		if fs.Status != models.SessionPaused {
			fs.Status = models.SessionPaused
			fs.PausedAt = &at
		}
	case models.ActionResume:
		fs.Status = models.SessionActive
		fs.PausedAt = nil
	case models.ActionStartBreak, models.ActionEndBreak, models.ActionSkipBreak, models.ActionSync:
		if req.Status == models.SessionActive || req.Status == models.SessionPaused {
			fs.Status = req.Status
		}
		if fs.Status == models.SessionActive {
			fs.PausedAt = nil
		}
	case models.ActionStop:
		fs.Status = models.SessionCompleted
		fs.EndTime = &at
		fs.PausedAt = nil
	}

	now := s.now()
	fs.LastSyncTime = &now
	if err := s.store.Update(ctx, fs); err != nil {
		return nil, err
	}

	if req.Action == models.ActionStop {
		s.recordOutcome(ctx, fs)
	}
	return fs, nil
}

func applySnapshot(fs *models.FocusSession, req models.FocusActionRequest) {
	if req.Metrics != nil {
		fs.Metrics = *req.Metrics
	}
	if req.Breaks != nil {
		fs.Breaks = append([]models.Break(nil), req.Breaks...)
	}
	if req.CurrentPhase != nil {
		fs.CurrentPhase = *req.CurrentPhase
	}
	if req.PausedDuration != nil && *req.PausedDuration >= 0 {
		fs.PausedDuration = *req.PausedDuration
	}
}

// recordOutcome does not fail the stop: the session is already stored as
// completed and the client must not retry it.
func (s *Service) recordOutcome(ctx context.Context, fs *models.FocusSession) {
	if s.activity == nil {
		return
	}
	fresh, err := s.activity.RecordSession(ctx, models.SessionOutcome{
		UserID:        fs.UserID,
		EndedAt:       *fs.EndTime,
		Timezone:      fs.Timezone,
		FocusSeconds:  fs.Metrics.TotalFocusTime,
		BreakSeconds:  fs.Metrics.BreakTime,
		Interruptions: fs.Metrics.Interruptions,
	})
	if err != nil {
		s.log.Error("record session activity",
			zap.String("session_id", fs.ID),
			zap.Int64("user_id", fs.UserID),
			zap.Error(err),
		)
		return
	}
	if len(fresh) > 0 {
		s.log.Info("session unlocked milestones", zap.String("session_id", fs.ID), zap.Strings("milestones", fresh))
	}
}
