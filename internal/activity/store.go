package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/studytrack/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Streak ──────────────────────────────────────────────

func (s *Store) GetOrCreateStreak(ctx context.Context, userID int64) (*models.UserStreak, error) {
	st := &models.UserStreak{UserID: userID}
	var lastActive sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT current_streak, longest_streak, last_active_date, total_focus_secs, total_sessions
		 FROM user_streaks WHERE user_id = $1`, userID,
	).Scan(&st.CurrentStreak, &st.LongestStreak, &lastActive, &st.TotalFocusSecs, &st.TotalSessions)

	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO user_streaks (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID,
		); err != nil {
			return nil, fmt.Errorf("create streak row: %w", err)
		}
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load streak: %w", err)
	}
	if lastActive.Valid {
		t := lastActive.Time
		st.LastActiveDate = &t
	}
	return st, nil
}

func (s *Store) UpdateStreak(ctx context.Context, st *models.UserStreak) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_streaks
		 SET current_streak = $2, longest_streak = $3, last_active_date = $4,
		     total_focus_secs = $5, total_sessions = $6
		 WHERE user_id = $1`,
		st.UserID, st.CurrentStreak, st.LongestStreak, st.LastActiveDate, st.TotalFocusSecs, st.TotalSessions,
	)
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	return nil
}

// ── Daily activity ──────────────────────────────────────

// AddDaily adds one completed session to the day's totals.
func (s *Store) AddDaily(ctx context.Context, userID int64, day time.Time, o models.SessionOutcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_activity (user_id, date, focus_seconds, break_seconds, sessions_completed, interruptions)
		 VALUES ($1, $2, $3, $4, 1, $5)
		 ON CONFLICT (user_id, date) DO UPDATE SET
		   focus_seconds      = daily_activity.focus_seconds + EXCLUDED.focus_seconds,
		   break_seconds      = daily_activity.break_seconds + EXCLUDED.break_seconds,
		   sessions_completed = daily_activity.sessions_completed + 1,
		   interruptions      = daily_activity.interruptions + EXCLUDED.interruptions`,
		userID, day, o.FocusSeconds, o.BreakSeconds, o.Interruptions,
	)
	if err != nil {
		return fmt.Errorf("upsert daily activity: %w", err)
	}
	return nil
}

func (s *Store) RecentDays(ctx context.Context, userID int64, since time.Time) ([]models.DailyActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, date, focus_seconds, break_seconds, sessions_completed, interruptions
		 FROM daily_activity WHERE user_id = $1 AND date >= $2 ORDER BY date`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily activity: %w", err)
	}
	defer rows.Close()

	days := []models.DailyActivity{}
	for rows.Next() {
		var d models.DailyActivity
		if err := rows.Scan(&d.UserID, &d.Date, &d.FocusSeconds, &d.BreakSeconds, &d.SessionsCompleted, &d.Interruptions); err != nil {
			return nil, fmt.Errorf("scan daily activity: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// ── Milestones ──────────────────────────────────────────

func (s *Store) GetMilestones(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT milestone FROM milestones WHERE user_id = $1 ORDER BY earned_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query milestones: %w", err)
	}
	defer rows.Close()

	earned := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		earned = append(earned, m)
	}
	return earned, rows.Err()
}

func (s *Store) AwardMilestone(ctx context.Context, userID int64, milestone string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO milestones (user_id, milestone) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, milestone,
	)
	if err != nil {
		return fmt.Errorf("award milestone: %w", err)
	}
	return nil
}
