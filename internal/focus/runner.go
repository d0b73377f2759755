package focus

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/models"
)

var ErrRunnerStopped = errors.New("focus runner stopped")

type command struct {
	fn   func(context.Context, *Machine) error
	done chan error
}

// Runner is the single goroutine that touches a Machine. The display and
// sync ticks and every caller command are executed on it one at a time.
type Runner struct {
	m            *Machine
	log          *zap.Logger
	cmds         chan command
	display      chan DisplayState
	displayEvery time.Duration
	syncEvery    time.Duration
	stopped      chan struct{}
}

func NewRunner(m *Machine, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		m:            m,
		log:          log,
		cmds:         make(chan command),
		display:      make(chan DisplayState, 1),
		displayEvery: DisplayInterval,
		syncEvery:    SyncInterval,
		stopped:      make(chan struct{}),
	}
}

// Display delivers the latest countdown while the session is active.
// Stale values are dropped when the reader falls behind.
func (r *Runner) Display() <-chan DisplayState {
	return r.display
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)

	displayTick := time.NewTicker(r.displayEvery)
	defer displayTick.Stop()
	syncTick := time.NewTicker(r.syncEvery)
	defer syncTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-r.cmds:
			cmd.done <- cmd.fn(ctx, r.m)

		case <-displayTick.C:
			state := r.m.Display()
			if state.Status != models.SessionActive {
				continue
			}
			r.publish(state)

		case <-syncTick.C:
			err := r.m.Sync(ctx, false)
			if err != nil && !errors.Is(err, ErrQueued) {
				r.log.Warn("periodic sync failed", zap.Error(err))
			}
		}
	}
}

// Do runs fn on the owner goroutine and waits for its result.
func (r *Runner) Do(ctx context.Context, fn func(context.Context, *Machine) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case r.cmds <- cmd:
	case <-r.stopped:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceSync is used when connectivity returns.
func (r *Runner) ForceSync(ctx context.Context) error {
	return r.Do(ctx, func(ctx context.Context, m *Machine) error {
		return m.Sync(ctx, true)
	})
}

func (r *Runner) publish(state DisplayState) {
	select {
	case r.display <- state:
		return
	default:
	}
	select {
	case <-r.display:
	default:
	}
	select {
	case r.display <- state:
	default:
	}
}
