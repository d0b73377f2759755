// Package activity keeps per-day focus totals, the study streak and the
// milestones earned from completed focus sessions.
package activity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/models"
)

// DefaultDays is how much history GET /activity returns.
const DefaultDays = 30

type Repository interface {
	GetOrCreateStreak(ctx context.Context, userID int64) (*models.UserStreak, error)
	UpdateStreak(ctx context.Context, st *models.UserStreak) error
	AddDaily(ctx context.Context, userID int64, day time.Time, o models.SessionOutcome) error
	RecentDays(ctx context.Context, userID int64, since time.Time) ([]models.DailyActivity, error)
	GetMilestones(ctx context.Context, userID int64) ([]string, error)
	AwardMilestone(ctx context.Context, userID int64, milestone string) error
}

type Service struct {
	store Repository
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Repository, log *zap.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// RecordSession folds a stopped focus session into the day's totals and the
// streak, and awards any milestone it unlocks. It returns the new
// milestones.
func (s *Service) RecordSession(ctx context.Context, o models.SessionOutcome) ([]string, error) {
	day := LocalDay(o.EndedAt, o.Timezone)

	if err := s.store.AddDaily(ctx, o.UserID, day, o); err != nil {
		return nil, err
	}

	st, err := s.store.GetOrCreateStreak(ctx, o.UserID)
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	next := NextStreak(*st, day)
	next.UserID = o.UserID
	next.TotalFocusSecs += o.FocusSeconds
	next.TotalSessions++
	if err := s.store.UpdateStreak(ctx, &next); err != nil {
		return nil, err
	}

	earned, err := s.store.GetMilestones(ctx, o.UserID)
	if err != nil {
		return nil, fmt.Errorf("get milestones: %w", err)
	}
	fresh := newMilestones(CheckMilestones(next), earned)
	for _, m := range fresh {
		if err := s.store.AwardMilestone(ctx, o.UserID, m); err != nil {
			s.log.Warn("award milestone failed", zap.Int64("user_id", o.UserID), zap.String("milestone", m), zap.Error(err))
			continue
		}
		s.log.Info("milestone earned", zap.Int64("user_id", o.UserID), zap.String("milestone", m))
	}
	return fresh, nil
}

func (s *Service) Get(ctx context.Context, userID int64, days int) (*models.ActivityResponse, error) {
	if days <= 0 {
		days = DefaultDays
	}

	st, err := s.store.GetOrCreateStreak(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}

	since := LocalDay(s.now(), "UTC").AddDate(0, 0, -(days - 1))
	recent, err := s.store.RecentDays(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	earned, err := s.store.GetMilestones(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.ActivityResponse{Streak: *st, Days: recent, Milestones: earned}, nil
}
