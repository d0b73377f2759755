package focus

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/studytrack/backend/internal/models"
)

var errOffline = errors.New("dial tcp: connection refused")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeRemote struct {
	createErr error
	actErr    error
	// Consumed before actErr is consulted.
	actErrs []error
	calls   []models.FocusActionRequest
}

func (f *fakeRemote) Create(_ context.Context, req models.CreateFocusSessionRequest) (*models.FocusSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.FocusSession{ID: "sess-1", UserID: 7, DeviceID: req.DeviceID}, nil
}

func (f *fakeRemote) Act(_ context.Context, req models.FocusActionRequest) (*models.FocusActionResponse, error) {
	f.calls = append(f.calls, req)
	err := f.actErr
	if len(f.actErrs) > 0 {
		err, f.actErrs = f.actErrs[0], f.actErrs[1:]
	}
	if err != nil {
		return nil, err
	}
	return &models.FocusActionResponse{Success: true}, nil
}

type harness struct {
	clock  *fakeClock
	remote *fakeRemote
	store  *SQLiteStore
	queue  *Queue
	m      *Machine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	remote := &fakeRemote{}
	cfg := DefaultQueueConfig()
	cfg.Rate = rate.Inf
	queue := NewQueue(store, remote, cfg, nil)
	m := NewMachine(remote, store, queue, WithClock(clock.Now), WithDevice("laptop", "Asia/Kolkata"))
	return &harness{clock: clock, remote: remote, store: store, queue: queue, m: m}
}

func (h *harness) start(t *testing.T, minutes int) {
	t.Helper()
	require.NoError(t, h.m.Start(context.Background(), 3, models.PhaseLearning, minutes, false))
}

func (h *harness) pending(t *testing.T) []QueuedAction {
	t.Helper()
	items, err := h.store.Pending(context.Background())
	require.NoError(t, err)
	return items
}

// ── Rules ──────────────────────────────────────────────────

func TestShouldTakeBreak(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s := &models.FocusSession{Status: models.SessionActive, StartTime: start}

	assert.False(t, ShouldTakeBreak(s, start.Add(24*time.Minute)))
	assert.True(t, ShouldTakeBreak(s, start.Add(25*time.Minute)))

	s.SkipBreaks = true
	assert.False(t, ShouldTakeBreak(s, start.Add(time.Hour)))
	s.SkipBreaks = false

	s.Status = models.SessionPaused
	assert.False(t, ShouldTakeBreak(s, start.Add(time.Hour)))
	s.Status = models.SessionActive

	end := start.Add(30 * time.Minute)
	s.Breaks = []models.Break{{StartTime: start.Add(25 * time.Minute), EndTime: &end, WasTimely: true}}
	assert.False(t, ShouldTakeBreak(s, end.Add(20*time.Minute)))
	assert.True(t, ShouldTakeBreak(s, end.Add(25*time.Minute)))

	s.Breaks = append(s.Breaks, models.Break{StartTime: end.Add(30 * time.Minute)})
	assert.False(t, ShouldTakeBreak(s, end.Add(2*time.Hour)), "no break is due during a break")
}

func TestUntilBreak(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s := &models.FocusSession{Status: models.SessionActive, StartTime: start}

	assert.Equal(t, 15*time.Minute, UntilBreak(s, start.Add(10*time.Minute)))
	assert.Equal(t, time.Duration(0), UntilBreak(s, start.Add(40*time.Minute)))

	end := start.Add(30 * time.Minute)
	s.Breaks = []models.Break{{StartTime: start.Add(25 * time.Minute), EndTime: &end, WasTimely: true}}
	assert.Equal(t, 20*time.Minute, UntilBreak(s, end.Add(5*time.Minute)))

	s.SkipBreaks = true
	assert.Equal(t, time.Duration(0), UntilBreak(s, end.Add(5*time.Minute)))
}

func TestDisplay_NextBreakCountsDown(t *testing.T) {
	h := newHarness(t)
	h.start(t, 50)

	h.clock.Advance(10 * time.Minute)
	d := h.m.Display()
	assert.Equal(t, 15*time.Minute, d.NextBreak)
	assert.Equal(t, ShortBreakDuration, d.BreakLength)
	assert.False(t, d.BreakDue)

	h.clock.Advance(15 * time.Minute)
	d = h.m.Display()
	assert.Equal(t, time.Duration(0), d.NextBreak)
	assert.True(t, d.BreakDue)
}

func TestBreakDuration_LongEveryFourTimely(t *testing.T) {
	for timely := 0; timely <= 9; timely++ {
		s := &models.FocusSession{}
		for i := 0; i < timely; i++ {
			s.Breaks = append(s.Breaks, models.Break{WasTimely: true})
		}
		kind, d := BreakDuration(s)
		if timely > 0 && timely%4 == 0 {
			assert.Equal(t, models.BreakLong, kind, "timely=%d", timely)
			assert.Equal(t, LongBreakDuration, d)
		} else {
			assert.Equal(t, models.BreakShort, kind, "timely=%d", timely)
			assert.Equal(t, ShortBreakDuration, d)
		}
	}
}

func TestBreakDuration_SkippedBreaksDoNotCount(t *testing.T) {
	s := &models.FocusSession{Breaks: []models.Break{
		{WasTimely: true}, {WasTimely: true}, {WasTimely: true}, {WasTimely: false},
	}}
	kind, _ := BreakDuration(s)
	assert.Equal(t, models.BreakShort, kind)
}

func TestFinalMetrics(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	breakEnd := start.Add(30 * time.Minute)
	s := &models.FocusSession{
		StartTime:      start,
		Duration:       60,
		Status:         models.SessionActive,
		PausedDuration: (5 * time.Minute).Milliseconds(),
		Breaks:         []models.Break{{StartTime: start.Add(25 * time.Minute), EndTime: &breakEnd}},
		Metrics:        models.SessionMetrics{Interruptions: 1, BreakTime: 300},
	}

	m := FinalMetrics(s, start.Add(70*time.Minute))
	// 70 - 5 paused - 5 break
	assert.Equal(t, int64(60*60), m.TotalFocusTime)
	assert.Equal(t, 90, m.Productivity)
	assert.Equal(t, int64(300), m.BreakTime)
}

func TestProductivity_Clamped(t *testing.T) {
	assert.Equal(t, 100, Productivity(7200, 60, 0))
	assert.Equal(t, 0, Productivity(3600, 60, 12))
	assert.Equal(t, 0, Productivity(3600, 0, 0))
	assert.Equal(t, 50, Productivity(1800, 60, 0))
}

func TestDisplaySeconds(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	s := &models.FocusSession{
		Status:       models.SessionActive,
		StartTime:    start,
		Duration:     25,
		CurrentPhase: models.Phase{StartTime: start, Duration: 25},
	}
	assert.Equal(t, int64(1500), DisplaySeconds(s, start))
	assert.Equal(t, int64(1380), DisplaySeconds(s, start.Add(2*time.Minute)))
	assert.Equal(t, int64(0), DisplaySeconds(s, start.Add(time.Hour)))

	s.PausedDuration = time.Minute.Milliseconds()
	assert.Equal(t, int64(1440), DisplaySeconds(s, start.Add(2*time.Minute)))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatTime(-3))
	assert.Equal(t, "00:00:00", FormatTime(nan()))
	assert.Equal(t, "00:25:00", FormatTime(1500))
	assert.Equal(t, "23:59:59", FormatTime(86399))
	assert.Equal(t, "01:00:01", FormatTime(3601.9))
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

func TestFormatTime_RoundTrip(t *testing.T) {
	for x := 0; x < 86400; x += 7 {
		formatted := FormatTime(float64(x))
		parsed, err := ParseTime(formatted)
		require.NoError(t, err)
		assert.Equal(t, formatted, FormatTime(float64(parsed)))
	}
}

func TestParseTime_Invalid(t *testing.T) {
	for _, v := range []string{"", "12:00", "aa:bb:cc", "00:61:00", "-1:00:00"} {
		_, err := ParseTime(v)
		assert.Error(t, err, v)
	}
}

// ── Machine ────────────────────────────────────────────────

func TestStart_FailureLeavesNoSession(t *testing.T) {
	h := newHarness(t)
	h.remote.createErr = errOffline

	err := h.m.Start(context.Background(), 3, models.PhaseLearning, 25, false)
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.Nil(t, h.m.Session())

	stored, err := h.store.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Empty(t, h.pending(t))
}

func TestStart_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	assert.ErrorIs(t, h.m.Start(ctx, 1, "napping", 25, false), ErrInvalidPhase)
	assert.ErrorIs(t, h.m.Start(ctx, 1, models.PhaseRevision, 0, false), ErrInvalidDuration)

	h.start(t, 25)
	assert.ErrorIs(t, h.m.Start(ctx, 1, models.PhaseRevision, 25, false), ErrSessionExists)
}

func TestStart_PersistsSession(t *testing.T) {
	h := newHarness(t)
	h.start(t, 50)

	s := h.m.Session()
	require.NotNil(t, s)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, models.SessionActive, s.Status)
	assert.Equal(t, "laptop", s.DeviceID)
	assert.Empty(t, s.Breaks)
	assert.Equal(t, models.SessionMetrics{}, s.Metrics)

	restored := NewMachine(h.remote, h.store, h.queue)
	require.NoError(t, restored.Restore(context.Background()))
	require.NotNil(t, restored.Session())
	assert.Equal(t, "sess-1", restored.Session().ID)
}

func TestPause_IncrementsInterruptionsOnce(t *testing.T) {
	h := newHarness(t)
	h.start(t, 25)
	h.clock.Advance(5 * time.Minute)

	require.NoError(t, h.m.Pause(context.Background()))
	s := h.m.Session()
	assert.Equal(t, models.SessionPaused, s.Status)
	assert.Equal(t, 1, s.Metrics.Interruptions)
	require.NotNil(t, s.PausedAt)
	assert.Equal(t, h.clock.Now(), *s.PausedAt)

	assert.ErrorIs(t, h.m.Pause(context.Background()), ErrNotActive)
	assert.Equal(t, 1, h.m.Session().Metrics.Interruptions)
}

func TestPause_UnacknowledgedLeavesStateAndQueuesSnapshot(t *testing.T) {
	h := newHarness(t)
	h.start(t, 25)
	h.remote.actErr = errOffline

	err := h.m.Pause(context.Background())
	assert.ErrorIs(t, err, ErrSyncFailed)

	s := h.m.Session()
	assert.Equal(t, models.SessionActive, s.Status)
	assert.Equal(t, 0, s.Metrics.Interruptions)

	items := h.pending(t)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionSync, items[0].Request.Action)
	assert.Equal(t, models.SessionActive, items[0].Request.Status)
}

func TestResume_AccumulatesPausedDuration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, 25)

	assert.ErrorIs(t, h.m.Resume(ctx), ErrNotPaused)

	require.NoError(t, h.m.Pause(ctx))
	h.clock.Advance(90 * time.Second)
	require.NoError(t, h.m.Resume(ctx))

	s := h.m.Session()
	assert.Equal(t, models.SessionActive, s.Status)
	assert.Nil(t, s.PausedAt)
	assert.Equal(t, int64(90_000), s.PausedDuration)
}

func TestBreaks_EndAddsBreakTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, 60)

	assert.ErrorIs(t, h.m.EndBreak(ctx), ErrNoOpenBreak)

	h.clock.Advance(25 * time.Minute)
	require.NoError(t, h.m.StartBreak(ctx))
	assert.ErrorIs(t, h.m.StartBreak(ctx), ErrOnBreak)

	s := h.m.Session()
	require.Len(t, s.Breaks, 1)
	assert.True(t, s.Breaks[0].WasTimely)
	assert.Equal(t, models.BreakShort, s.Breaks[0].Type)

	h.clock.Advance(5 * time.Minute)
	require.NoError(t, h.m.EndBreak(ctx))
	s = h.m.Session()
	assert.False(t, OnBreak(s))
	assert.Equal(t, int64(300), s.Metrics.BreakTime)
	assert.Equal(t, 0, s.Metrics.Interruptions)
}

func TestSkipBreak_NotTimelyAndInterrupts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, 60)

	require.NoError(t, h.m.StartBreak(ctx))
	h.clock.Advance(time.Minute)
	require.NoError(t, h.m.SkipBreak(ctx))

	s := h.m.Session()
	assert.False(t, s.Breaks[0].WasTimely)
	assert.Equal(t, 1, s.Metrics.Interruptions)
	assert.Equal(t, int64(0), s.Metrics.BreakTime)

	kind, _ := BreakDuration(s)
	assert.Equal(t, models.BreakShort, kind)
}

func TestStartBreak_OfflineIsProvisional(t *testing.T) {
	h := newHarness(t)
	h.start(t, 60)
	h.remote.actErr = errOffline

	err := h.m.StartBreak(context.Background())
	assert.ErrorIs(t, err, ErrQueued)
	assert.True(t, OnBreak(h.m.Session()))

	items := h.pending(t)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionStartBreak, items[0].Request.Action)
}

func TestStop_SendsFinalMetricsAndClears(t *testing.T) {
	h := newHarness(t)
	h.start(t, 30)
	h.clock.Advance(30 * time.Minute)

	metrics, err := h.m.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1800), metrics.TotalFocusTime)
	assert.Equal(t, 100, metrics.Productivity)
	assert.Nil(t, h.m.Session())

	last := h.remote.calls[len(h.remote.calls)-1]
	assert.Equal(t, models.ActionStop, last.Action)
	assert.Equal(t, models.SessionCompleted, last.Status)
	require.NotNil(t, last.Metrics)
	assert.Equal(t, int64(1800), last.Metrics.TotalFocusTime)

	stored, err := h.store.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestStop_WhilePausedCountsOpenPause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, 30)
	h.clock.Advance(10 * time.Minute)
	require.NoError(t, h.m.Pause(ctx))
	h.clock.Advance(10 * time.Minute)

	metrics, err := h.m.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600), metrics.TotalFocusTime)

	last := h.remote.calls[len(h.remote.calls)-1]
	require.NotNil(t, last.PausedDuration)
	assert.Equal(t, (10 * time.Minute).Milliseconds(), *last.PausedDuration)
}

func TestStop_OfflineQueuesAndStillClears(t *testing.T) {
	h := newHarness(t)
	h.start(t, 30)
	h.remote.actErr = errOffline

	_, err := h.m.Stop(context.Background())
	assert.ErrorIs(t, err, ErrQueued)
	assert.Nil(t, h.m.Session())

	items := h.pending(t)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionStop, items[0].Request.Action)
}

func TestSync_RespectsInterval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, 60)

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.m.Sync(ctx, false))
	assert.Empty(t, h.remote.calls)

	require.NoError(t, h.m.Sync(ctx, true))
	require.Len(t, h.remote.calls, 1)

	h.clock.Advance(SyncInterval)
	require.NoError(t, h.m.Sync(ctx, false))
	assert.Len(t, h.remote.calls, 2)
	assert.Equal(t, models.ActionSync, h.remote.calls[1].Action)
}

func TestSync_OfflineKeepsOneSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, 60)
	h.remote.actErr = errOffline

	for i := 0; i < 3; i++ {
		h.clock.Advance(SyncInterval)
		assert.ErrorIs(t, h.m.Sync(ctx, false), ErrQueued)
	}
	assert.Len(t, h.pending(t), 1)
}

func TestSync_AckSupersedesQueuedUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, 60)

	h.remote.actErr = errOffline
	require.ErrorIs(t, h.m.StartBreak(ctx), ErrQueued)
	h.clock.Advance(5 * time.Minute)
	require.ErrorIs(t, h.m.EndBreak(ctx), ErrQueued)
	require.Len(t, h.pending(t), 2)

	h.remote.actErr = nil
	h.remote.calls = nil
	require.NoError(t, h.m.Sync(ctx, true))

	assert.Empty(t, h.pending(t))
	require.Len(t, h.remote.calls, 1)
	assert.Equal(t, models.ActionSync, h.remote.calls[0].Action)
	require.Len(t, h.remote.calls[0].Breaks, 1)
	assert.False(t, h.remote.calls[0].Breaks[0].Open())
}

func TestEndBreak_AckDropsOlderQueuedBreak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, 60)

	h.remote.actErr = errOffline
	require.ErrorIs(t, h.m.StartBreak(ctx), ErrQueued)

	h.remote.actErr = nil
	h.clock.Advance(5 * time.Minute)
	require.NoError(t, h.m.EndBreak(ctx))
	assert.Empty(t, h.pending(t))

	h.remote.calls = nil
	require.NoError(t, h.m.Sync(ctx, true))

	last := h.remote.calls[len(h.remote.calls)-1]
	assert.Equal(t, models.ActionSync, last.Action)
	require.Len(t, last.Breaks, 1)
	assert.False(t, last.Breaks[0].Open())
	require.NotNil(t, last.Metrics)
	assert.Equal(t, int64(300), last.Metrics.BreakTime)
	for _, call := range h.remote.calls {
		assert.NotEqual(t, models.ActionStartBreak, call.Action)
	}
}

func TestSync_SuccessFlushesOtherSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.queue.Enqueue(ctx, models.FocusActionRequest{Action: models.ActionStop, SessionID: "earlier"}))
	h.start(t, 60)

	h.remote.calls = nil
	require.NoError(t, h.m.Sync(ctx, true))

	assert.Empty(t, h.pending(t))
	require.Len(t, h.remote.calls, 2)
	assert.Equal(t, models.ActionSync, h.remote.calls[0].Action)
	assert.Equal(t, models.ActionStop, h.remote.calls[1].Action)
	assert.Equal(t, "earlier", h.remote.calls[1].SessionID)
}

func TestStop_OfflineReplacesQueuedUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.start(t, 60)
	h.remote.actErr = errOffline

	require.ErrorIs(t, h.m.StartBreak(ctx), ErrQueued)
	_, err := h.m.Stop(ctx)
	require.ErrorIs(t, err, ErrQueued)

	items := h.pending(t)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionStop, items[0].Request.Action)
}

// ── Queue ──────────────────────────────────────────────────

func TestQueue_BackoffBlocksHead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.queue.Enqueue(ctx, models.FocusActionRequest{Action: models.ActionPause, SessionID: "a"}))
	require.NoError(t, h.queue.Enqueue(ctx, models.FocusActionRequest{Action: models.ActionResume, SessionID: "a"}))

	h.remote.actErr = errOffline
	res, err := h.queue.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
	assert.Len(t, h.remote.calls, 1)

	items := h.pending(t)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Attempts)
	assert.True(t, items[0].NextAttempt.After(h.clock.Now()))

	// Not due yet: nothing is sent.
	_, err = h.queue.Flush(ctx)
	require.NoError(t, err)
	assert.Len(t, h.remote.calls, 1)

	h.remote.actErr = nil
	h.clock.Advance(time.Hour)
	res, err = h.queue.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Replayed)
	assert.Empty(t, h.pending(t))
}

func TestQueue_DeadLettersAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.queue.Enqueue(ctx, models.FocusActionRequest{Action: models.ActionStop, SessionID: "a"}))
	h.remote.actErr = &StatusError{Code: http.StatusBadGateway}

	var res FlushResult
	for i := 0; i < h.queue.cfg.MaxAttempts; i++ {
		var err error
		res, err = h.queue.Flush(ctx)
		require.NoError(t, err)
		h.clock.Advance(time.Hour)
	}

	assert.Equal(t, 1, res.DeadLettered)
	assert.Empty(t, h.pending(t))

	dead, err := h.store.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, models.ActionStop, dead[0].Request.Action)
	assert.Equal(t, 5, dead[0].Attempts)
	assert.Contains(t, dead[0].Reason, "502")
}

func TestQueue_ConflictIsBuriedImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.queue.Enqueue(ctx, models.FocusActionRequest{Action: models.ActionSync, SessionID: "a"}))
	require.NoError(t, h.queue.Enqueue(ctx, models.FocusActionRequest{Action: models.ActionStop, SessionID: "b"}))
	h.remote.actErrs = []error{&StatusError{Code: http.StatusConflict}, nil}

	res, err := h.queue.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeadLettered)
	assert.Equal(t, 1, res.Replayed)
	assert.Empty(t, h.pending(t))
}

func TestQueue_BackoffGrowsWithinJitter(t *testing.T) {
	q := NewQueue(nil, nil, DefaultQueueConfig(), nil)
	for attempt := 0; attempt < 4; attempt++ {
		base := float64(2*time.Second) * float64(int(1)<<attempt)
		d := float64(q.backoff(attempt))
		assert.GreaterOrEqual(t, d, base*0.8)
		assert.LessOrEqual(t, d, base*1.2)
	}
	assert.LessOrEqual(t, q.backoff(30), time.Duration(float64(5*time.Minute)*1.2))
}

func TestStatusError_Is(t *testing.T) {
	err := error(&StatusError{Code: http.StatusConflict})
	assert.ErrorIs(t, err, ErrConflict)
	assert.False(t, IsRetryable(err))
	assert.True(t, IsRetryable(&StatusError{Code: http.StatusServiceUnavailable}))
	assert.True(t, IsRetryable(errOffline))
	assert.False(t, IsRetryable(context.Canceled))
}

// ── Runner ─────────────────────────────────────────────────

func TestRunner_ExecutesCommandsAndPublishesDisplay(t *testing.T) {
	h := newHarness(t)
	r := NewRunner(h.m, nil)
	r.displayEvery = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	err := r.Do(ctx, func(ctx context.Context, m *Machine) error {
		return m.Start(ctx, 3, models.PhasePractice, 25, false)
	})
	require.NoError(t, err)

	select {
	case state := <-r.Display():
		assert.True(t, state.HasSession)
		assert.Equal(t, int64(1500), state.Remaining)
		assert.Equal(t, "00:25:00", state.Formatted)
	case <-time.After(2 * time.Second):
		t.Fatal("no display update")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.ErrorIs(t, r.Do(context.Background(), func(context.Context, *Machine) error { return nil }), ErrRunnerStopped)
}

// ── Store ──────────────────────────────────────────────────

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focus.db")
	ctx := context.Background()

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSession(ctx, &models.FocusSession{ID: "sess-9", Status: models.SessionPaused, StartTime: start}))
	_, err = store.Enqueue(ctx, QueuedAction{Request: models.FocusActionRequest{Action: models.ActionPause, SessionID: "sess-9"}, QueuedAt: start, NextAttempt: start})
	require.NoError(t, err)
	device, err := store.DeviceID(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	s, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "sess-9", s.ID)
	assert.Equal(t, models.SessionPaused, s.Status)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.ActionPause, pending[0].Request.Action)

	again, err := store.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, device, again)
}

func TestSQLiteStore_SingleOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	require.NoError(t, h.store.ClaimOwner(ctx, "proc-a", now))
	require.NoError(t, h.store.ClaimOwner(ctx, "proc-a", now.Add(time.Minute)), "owner refreshes its own claim")
	assert.ErrorIs(t, h.store.ClaimOwner(ctx, "proc-b", now.Add(2*time.Minute)), ErrStoreLocked)

	// Once the heartbeat goes stale the claim can be taken over.
	require.NoError(t, h.store.ClaimOwner(ctx, "proc-b", now.Add(time.Minute+OwnerTTL+time.Second)))
	assert.ErrorIs(t, h.store.ClaimOwner(ctx, "proc-a", now.Add(OwnerTTL+2*time.Minute)), ErrStoreLocked)

	require.NoError(t, h.store.ReleaseOwner(ctx, "proc-b"))
	require.NoError(t, h.store.ClaimOwner(ctx, "proc-a", now.Add(OwnerTTL+2*time.Minute)))
}
