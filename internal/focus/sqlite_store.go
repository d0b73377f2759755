package focus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/studytrack/backend/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS local_session (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	payload    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS offline_queue (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	action       TEXT NOT NULL,
	payload      TEXT NOT NULL,
	queued_at    INTEGER NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	next_attempt INTEGER NOT NULL,
	last_error   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id   INTEGER NOT NULL,
	session_id TEXT NOT NULL,
	action     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	queued_at  INTEGER NOT NULL,
	attempts   INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	died_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS store_owner (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	owner     TEXT NOT NULL,
	pid       INTEGER NOT NULL,
	heartbeat INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteStore is the durable record of this device: its running session,
// the offline queue and the dead letters.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at path. ":memory:" is
// accepted for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serialises writers.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// ── Session ────────────────────────────────────────────────

func (s *SQLiteStore) LoadSession(ctx context.Context) (*models.FocusSession, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM local_session WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session models.FocusSession
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session *models.FocusSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO local_session (id, payload, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(payload), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// ── Offline queue ──────────────────────────────────────────

func (s *SQLiteStore) Enqueue(ctx context.Context, a QueuedAction) (int64, error) {
	payload, err := json.Marshal(a.Request)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO offline_queue (session_id, action, payload, queued_at, attempts, next_attempt, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Request.SessionID, string(a.Request.Action), string(payload),
		a.QueuedAt.UnixMilli(), a.Attempts, a.NextAttempt.UnixMilli(), a.LastError,
	)
	if err != nil {
		return 0, fmt.Errorf("insert queue entry: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) Pending(ctx context.Context) ([]QueuedAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, queued_at, attempts, next_attempt, last_error
		 FROM offline_queue ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	var items []QueuedAction
	for rows.Next() {
		var (
			a                 QueuedAction
			payload           string
			queuedAt, nextAtt int64
		)
		if err := rows.Scan(&a.ID, &payload, &queuedAt, &a.Attempts, &nextAtt, &a.LastError); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &a.Request); err != nil {
			return nil, fmt.Errorf("decode queue entry %d: %w", a.ID, err)
		}
		a.QueuedAt = time.UnixMilli(queuedAt)
		a.NextAttempt = time.UnixMilli(nextAtt)
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) UpdateAttempt(ctx context.Context, id int64, attempts int, next time.Time, lastErr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE offline_queue SET attempts = ?, next_attempt = ?, last_error = ? WHERE id = ?`,
		attempts, next.UnixMilli(), lastErr, id,
	)
	if err != nil {
		return fmt.Errorf("update queue entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DropSuperseded(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM offline_queue WHERE session_id = ? AND action <> ?`,
		sessionID, string(models.ActionStop),
	)
	if err != nil {
		return 0, fmt.Errorf("drop superseded updates: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Bury(ctx context.Context, a QueuedAction, reason string, at time.Time) error {
	payload, err := json.Marshal(a.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO dead_letters (entry_id, session_id, action, payload, queued_at, attempts, reason, died_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Request.SessionID, string(a.Request.Action), string(payload),
		a.QueuedAt.UnixMilli(), a.Attempts, reason, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM offline_queue WHERE id = ?`, a.ID); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload, queued_at, attempts, reason, died_at FROM dead_letters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var (
			d                DeadLetter
			payload          string
			queuedAt, diedAt int64
		)
		if err := rows.Scan(&d.ID, &payload, &queuedAt, &d.Attempts, &d.Reason, &diedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &d.Request); err != nil {
			return nil, fmt.Errorf("decode dead letter %d: %w", d.ID, err)
		}
		d.QueuedAt = time.UnixMilli(queuedAt)
		d.DiedAt = time.UnixMilli(diedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ── Ownership ──────────────────────────────────────────────

// ErrStoreLocked means another live process owns the store.
var ErrStoreLocked = errors.New("focus store is in use by another process")

// OwnerTTL is how long a claim survives without a heartbeat.
const OwnerTTL = 2 * time.Minute

// ClaimOwner takes or refreshes the single owner row. A claim held by a
// different owner is honoured until its heartbeat is older than OwnerTTL.
func (s *SQLiteStore) ClaimOwner(ctx context.Context, owner string, now time.Time) error {
	stale := now.Add(-OwnerTTL).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO store_owner (id, owner, pid, heartbeat) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, pid = excluded.pid, heartbeat = excluded.heartbeat
		 WHERE store_owner.owner = excluded.owner OR store_owner.heartbeat < ?`,
		owner, os.Getpid(), now.UnixMilli(), stale,
	)
	if err != nil {
		return fmt.Errorf("claim store: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim store: %w", err)
	}
	if n == 0 {
		return ErrStoreLocked
	}
	return nil
}

// ReleaseOwner drops the claim if owner still holds it.
func (s *SQLiteStore) ReleaseOwner(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM store_owner WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("release store: %w", err)
	}
	return nil
}

// DeviceID returns this device's id, generating and persisting one on
// first use.
func (s *SQLiteStore) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'device_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("load device id: %w", err)
	}

	id = uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('device_id', ?) ON CONFLICT(key) DO NOTHING`, id,
	); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	return id, nil
}
