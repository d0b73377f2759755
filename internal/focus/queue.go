package focus

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/studytrack/backend/internal/models"
)

type QueueConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	// Replays per second while flushing.
	Rate  rate.Limit
	Burst int
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxAttempts: 5,
		InitialWait: 2 * time.Second,
		MaxWait:     5 * time.Minute,
		Multiplier:  2,
		Rate:        5,
		Burst:       1,
	}
}

type FlushResult struct {
	Replayed     int
	DeadLettered int
	Remaining    int
}

// Queue replays unacknowledged updates in FIFO order. A failing head entry
// blocks the entries behind it until its backoff has elapsed; it is buried
// after MaxAttempts, or at once when the failure is not retryable.
type Queue struct {
	store   QueueStore
	remote  Remote
	cfg     QueueConfig
	limiter *rate.Limiter
	now     func() time.Time
	log     *zap.Logger
}

func NewQueue(store QueueStore, remote Remote, cfg QueueConfig, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		store:   store,
		remote:  remote,
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.Rate, cfg.Burst),
		now:     time.Now,
		log:     log,
	}
}

// Enqueue appends an update. A sync or stop snapshot replaces the queued
// updates of the same session.
func (q *Queue) Enqueue(ctx context.Context, req models.FocusActionRequest) error {
	if req.Action == models.ActionSync || req.Action == models.ActionStop {
		if _, err := q.store.DropSuperseded(ctx, req.SessionID); err != nil {
			return err
		}
	}
	now := q.now()
	if _, err := q.store.Enqueue(ctx, QueuedAction{Request: req, QueuedAt: now, NextAttempt: now}); err != nil {
		return fmt.Errorf("enqueue %s: %w", req.Action, err)
	}
	q.log.Info("focus update queued offline",
		zap.String("action", string(req.Action)),
		zap.String("session_id", req.SessionID),
	)
	return nil
}

// Supersede drops the queued updates of a session once the server has
// acknowledged a newer snapshot of it. Replaying them would roll the
// server's copy back.
func (q *Queue) Supersede(ctx context.Context, sessionID string) error {
	n, err := q.store.DropSuperseded(ctx, sessionID)
	if err != nil {
		return err
	}
	if n > 0 {
		q.log.Info("superseded focus updates dropped",
			zap.String("session_id", sessionID),
			zap.Int64("count", n),
		)
	}
	return nil
}

func (q *Queue) Pending(ctx context.Context) (int, error) {
	items, err := q.store.Pending(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Flush replays due entries until the queue is empty or the head entry
// fails.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	var res FlushResult

	items, err := q.store.Pending(ctx)
	if err != nil {
		return res, fmt.Errorf("load offline queue: %w", err)
	}

	for i, item := range items {
		if q.now().Before(item.NextAttempt) {
			res.Remaining = len(items) - i
			return res, nil
		}
		if err := q.limiter.Wait(ctx); err != nil {
			res.Remaining = len(items) - i
			return res, err
		}

		_, err := q.remote.Act(ctx, item.Request)
		if err == nil {
			if err := q.store.Remove(ctx, item.ID); err != nil {
				return res, fmt.Errorf("remove replayed entry: %w", err)
			}
			res.Replayed++
			continue
		}

		item.Attempts++
		if !IsRetryable(err) || item.Attempts >= q.cfg.MaxAttempts {
			if buryErr := q.bury(ctx, item, err); buryErr != nil {
				return res, buryErr
			}
			res.DeadLettered++
			continue
		}

		next := q.now().Add(q.backoff(item.Attempts - 1))
		if uerr := q.store.UpdateAttempt(ctx, item.ID, item.Attempts, next, err.Error()); uerr != nil {
			return res, fmt.Errorf("record replay attempt: %w", uerr)
		}
		q.log.Warn("focus update replay failed",
			zap.Int64("entry_id", item.ID),
			zap.String("action", string(item.Request.Action)),
			zap.Int("attempts", item.Attempts),
			zap.Time("next_attempt", next),
			zap.Error(err),
		)
		res.Remaining = len(items) - i
		return res, nil
	}
	return res, nil
}

func (q *Queue) bury(ctx context.Context, item QueuedAction, cause error) error {
	if err := q.store.Bury(ctx, item, cause.Error(), q.now()); err != nil {
		return fmt.Errorf("dead-letter entry %d: %w", item.ID, err)
	}
	q.log.Error("focus update dead-lettered",
		zap.Int64("entry_id", item.ID),
		zap.String("action", string(item.Request.Action)),
		zap.String("session_id", item.Request.SessionID),
		zap.Int("attempts", item.Attempts),
		zap.Error(cause),
	)
	return nil
}

// backoff computes the wait before the next replay of an entry.
func (q *Queue) backoff(attempt int) time.Duration {
	wait := float64(q.cfg.InitialWait) * math.Pow(q.cfg.Multiplier, float64(attempt))
	if wait > float64(q.cfg.MaxWait) {
		wait = float64(q.cfg.MaxWait)
	}

	// Add ±20% jitter.
	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
