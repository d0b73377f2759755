package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/studytrack/backend/internal/focus"
	"github.com/studytrack/backend/internal/models"
)

type rejectingRemote struct{ actErr error }

func (r *rejectingRemote) Create(_ context.Context, req models.CreateFocusSessionRequest) (*models.FocusSession, error) {
	return &models.FocusSession{ID: "sess-1", UserID: 7, DeviceID: req.DeviceID}, nil
}

func (r *rejectingRemote) Act(context.Context, models.FocusActionRequest) (*models.FocusActionResponse, error) {
	if r.actErr != nil {
		return nil, r.actErr
	}
	return &models.FocusActionResponse{Success: true}, nil
}

func startedRunner(t *testing.T, remote focus.Remote) (*focus.Machine, *focus.Runner) {
	t.Helper()
	store, err := focus.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := focus.DefaultQueueConfig()
	cfg.Rate = rate.Inf
	queue := focus.NewQueue(store, remote, cfg, nil)
	m := focus.NewMachine(remote, store, queue, focus.WithDevice("laptop", "UTC"))
	require.NoError(t, m.Start(context.Background(), 3, models.PhaseLearning, 25, false))

	ctx, cancel := context.WithCancel(context.Background())
	runner := focus.NewRunner(m, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runner.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m, runner
}

func TestHandleKey_RejectedStopLeavesLoop(t *testing.T) {
	remote := &rejectingRemote{}
	m, runner := startedRunner(t, remote)
	remote.actErr = &focus.StatusError{Code: http.StatusConflict}

	done, err := (&app{}).handleKey(context.Background(), runner, "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, focus.ErrSyncFailed))
	assert.Contains(t, err.Error(), "Stopped on this device")
	assert.True(t, done, "the session is gone locally, so the loop must end")
	assert.Nil(t, m.Session())
}

func TestHandleKey_RejectedPauseKeepsLoop(t *testing.T) {
	remote := &rejectingRemote{}
	m, runner := startedRunner(t, remote)
	remote.actErr = &focus.StatusError{Code: http.StatusConflict}

	done, err := (&app{}).handleKey(context.Background(), runner, "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing changed")
	assert.False(t, done)
	assert.NotNil(t, m.Session())
}

func TestHandleKey_UnknownKey(t *testing.T) {
	_, runner := startedRunner(t, &rejectingRemote{})

	done, err := (&app{}).handleKey(context.Background(), runner, "x")
	require.Error(t, err)
	assert.False(t, done)
}
