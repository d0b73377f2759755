package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
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

const sessionColumns = `id, user_id, subject_id, device_id, phase_type, duration, skip_breaks, status,
	start_time, end_time, paused_at, paused_duration, current_phase, breaks, metrics, timezone, last_sync_time, client_time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.FocusSession, error) {
	var (
		s                         models.FocusSession
		endTime, pausedAt, synced sql.NullTime
		clientTime                sql.NullTime
		phase, breaks, metrics    []byte
	)
	err := row.Scan(&s.ID, &s.UserID, &s.SubjectID, &s.DeviceID, &s.PhaseType, &s.Duration, &s.SkipBreaks, &s.Status,
		&s.StartTime, &endTime, &pausedAt, &s.PausedDuration, &phase, &breaks, &metrics, &s.Timezone, &synced, &clientTime)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	if pausedAt.Valid {
		s.PausedAt = &pausedAt.Time
	}
	if synced.Valid {
		s.LastSyncTime = &synced.Time
	}
	if clientTime.Valid {
		s.ClientTime = &clientTime.Time
	}
	if err := json.Unmarshal(phase, &s.CurrentPhase); err != nil {
		return nil, fmt.Errorf("decode current_phase: %w", err)
	}
	if err := json.Unmarshal(breaks, &s.Breaks); err != nil {
		return nil, fmt.Errorf("decode breaks: %w", err)
	}
	if err := json.Unmarshal(metrics, &s.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	if s.Breaks == nil {
		s.Breaks = []models.Break{}
	}
	return &s, nil
}

func encodeJSONB(s *models.FocusSession) (phase, breaks, metrics []byte, err error) {
	if phase, err = json.Marshal(s.CurrentPhase); err != nil {
		return nil, nil, nil, fmt.Errorf("encode current_phase: %w", err)
	}
	list := s.Breaks
	if list == nil {
		list = []models.Break{}
	}
	if breaks, err = json.Marshal(list); err != nil {
		return nil, nil, nil, fmt.Errorf("encode breaks: %w", err)
	}
	if metrics, err = json.Marshal(s.Metrics); err != nil {
		return nil, nil, nil, fmt.Errorf("encode metrics: %w", err)
	}
	return phase, breaks, metrics, nil
}

func (s *Store) Create(ctx context.Context, fs *models.FocusSession) error {
	phase, breaks, metrics, err := encodeJSONB(fs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO focus_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		fs.ID, fs.UserID, fs.SubjectID, fs.DeviceID, fs.PhaseType, fs.Duration, fs.SkipBreaks, fs.Status,
		fs.StartTime, fs.EndTime, fs.PausedAt, fs.PausedDuration, phase, breaks, metrics, fs.Timezone, fs.LastSyncTime, fs.ClientTime,
	)
	if err != nil {
		return fmt.Errorf("insert focus session: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.FocusSession, error) {
	fs, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load focus session: %w", err)
	}
	return fs, nil
}

func (s *Store) Update(ctx context.Context, fs *models.FocusSession) error {
	phase, breaks, metrics, err := encodeJSONB(fs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE focus_sessions
		 SET status = $2, end_time = $3, paused_at = $4, paused_duration = $5,
		     current_phase = $6, breaks = $7, metrics = $8, last_sync_time = $9, client_time = $10
		 WHERE id = $1`,
		fs.ID, fs.Status, fs.EndTime, fs.PausedAt, fs.PausedDuration, phase, breaks, metrics, fs.LastSyncTime, fs.ClientTime,
	)
	if err != nil {
		return fmt.Errorf("update focus session: %w", err)
	}
	return nil
}

// Active returns the user's open session, or ErrNotFound.
func (s *Store) Active(ctx context.Context, userID int64) (*models.FocusSession, error) {
	fs, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions
		 WHERE user_id = $1 AND status <> 'completed'
		 ORDER BY start_time DESC LIMIT 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	return fs, nil
}

// CloseOpen completes every open session of the user.
func (s *Store) CloseOpen(ctx context.Context, userID int64, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE focus_sessions SET status = 'completed', end_time = $2, paused_at = NULL
		 WHERE user_id = $1 AND status <> 'completed'`,
		userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) SubjectOwned(ctx context.Context, userID, subjectID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM subjects WHERE id = $1 AND user_id = $2)`,
		subjectID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subject: %w", err)
	}
	return exists, nil
}
