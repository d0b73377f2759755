package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/middleware"
	"github.com/studytrack/backend/internal/models"
)

type fakeRepo struct {
	sessions map[string]*models.FocusSession
	subjects map[int64]int64 // subject -> owner
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions: map[string]*models.FocusSession{},
		subjects: map[int64]int64{10: 1, 20: 2},
	}
}

func (f *fakeRepo) Create(_ context.Context, fs *models.FocusSession) error {
	cp := *fs
	f.sessions[fs.ID] = &cp
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (*models.FocusSession, error) {
	fs, ok := f.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *fs
	return &cp, nil
}

func (f *fakeRepo) Update(_ context.Context, fs *models.FocusSession) error {
	cp := *fs
	f.sessions[fs.ID] = &cp
	return nil
}

func (f *fakeRepo) Active(_ context.Context, userID int64) (*models.FocusSession, error) {
	for _, fs := range f.sessions {
		if fs.UserID == userID && fs.Status != models.SessionCompleted {
			cp := *fs
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) CloseOpen(_ context.Context, userID int64, at time.Time) (int64, error) {
	var n int64
	for _, fs := range f.sessions {
		if fs.UserID == userID && fs.Status != models.SessionCompleted {
			fs.Status = models.SessionCompleted
			end := at
			fs.EndTime = &end
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) SubjectOwned(_ context.Context, userID, subjectID int64) (bool, error) {
	return f.subjects[subjectID] == userID, nil
}

type fakeRecorder struct {
	outcomes []models.SessionOutcome
	err      error
}

func (f *fakeRecorder) RecordSession(_ context.Context, o models.SessionOutcome) ([]string, error) {
	f.outcomes = append(f.outcomes, o)
	return nil, f.err
}

type harness struct {
	repo     *fakeRepo
	recorder *fakeRecorder
	svc      *Service
	now      time.Time
	ids      int
}

func newHarness() *harness {
	h := &harness{
		repo:     newFakeRepo(),
		recorder: &fakeRecorder{},
		now:      time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(h.repo, h.recorder, zap.NewNop())
	h.svc.now = func() time.Time { return h.now }
	h.svc.newID = func() string {
		h.ids++
		return []string{"", "s-1", "s-2", "s-3"}[h.ids]
	}
	return h
}

func createReq(device string) models.CreateFocusSessionRequest {
	return models.CreateFocusSessionRequest{
		SubjectID: 10,
		PhaseType: models.PhaseLearning,
		Duration:  50,
		Timezone:  "UTC",
		DeviceID:  device,
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.CreateFocusSessionRequest)
	}{
		{"bad phase", func(r *models.CreateFocusSessionRequest) { r.PhaseType = "napping" }},
		{"zero duration", func(r *models.CreateFocusSessionRequest) { r.Duration = 0 }},
		{"missing device", func(r *models.CreateFocusSessionRequest) { r.DeviceID = "  " }},
		{"bad timezone", func(r *models.CreateFocusSessionRequest) { r.Timezone = "Mars/Olympus" }},
		{"foreign subject", func(r *models.CreateFocusSessionRequest) { r.SubjectID = 20 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := createReq("laptop")
			tt.mutate(&req)
			_, err := h.svc.Create(ctx, 1, req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Empty(t, h.repo.sessions)
}

func TestCreateLastWriteWins(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first, err := h.svc.Create(ctx, 1, createReq("laptop"))
	require.NoError(t, err)
	assert.Equal(t, "s-1", first.ID)
	assert.Equal(t, models.SessionActive, first.Status)
	assert.Equal(t, models.PhaseLearning, first.CurrentPhase.Type)

	h.now = h.now.Add(10 * time.Minute)
	second, err := h.svc.Create(ctx, 1, createReq("phone"))
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, h.repo.sessions["s-1"].Status)
	active, err := h.svc.Active(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, "phone", active.DeviceID)

	// The replaced device can no longer act on its session.
	_, err = h.svc.Apply(ctx, 1, models.FocusActionRequest{Action: models.ActionPause, SessionID: "s-1", DeviceID: "laptop"})
	assert.ErrorIs(t, err, ErrCompleted)
}

func TestApplyRejections(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.svc.Create(ctx, 1, createReq("laptop"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  int64
		req     models.FocusActionRequest
		wantErr error
	}{
		{"unknown action", 1, models.FocusActionRequest{Action: "dance", SessionID: "s-1", DeviceID: "laptop"}, ErrUnknownAction},
		{"missing session id", 1, models.FocusActionRequest{Action: models.ActionPause, DeviceID: "laptop"}, ErrInvalidRequest},
		{"unknown session", 1, models.FocusActionRequest{Action: models.ActionPause, SessionID: "nope", DeviceID: "laptop"}, ErrNotFound},
		{"other user", 2, models.FocusActionRequest{Action: models.ActionPause, SessionID: "s-1", DeviceID: "laptop"}, ErrNotFound},
		{"other device", 1, models.FocusActionRequest{Action: models.ActionPause, SessionID: "s-1", DeviceID: "phone"}, ErrDeviceMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Apply(ctx, tt.userID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, models.SessionActive, h.repo.sessions["s-1"].Status)
}

func TestApplyLifecycle(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.svc.Create(ctx, 1, createReq("laptop"))
	require.NoError(t, err)

	act := func(a models.FocusAction, mutate func(*models.FocusActionRequest)) *models.FocusSession {
		t.Helper()
		req := models.FocusActionRequest{Action: a, SessionID: "s-1", DeviceID: "laptop"}
		if mutate != nil {
			mutate(&req)
		}
		fs, err := h.svc.Apply(ctx, 1, req)
		require.NoError(t, err)
		return fs
	}

	pausedAt := h.now.Add(5 * time.Minute)
	fs := act(models.ActionPause, func(r *models.FocusActionRequest) { r.At = &pausedAt })
	assert.Equal(t, models.SessionPaused, fs.Status)
	require.NotNil(t, fs.PausedAt)
	assert.Equal(t, pausedAt, *fs.PausedAt)

	// A replayed pause keeps the original pause time.
	later := pausedAt.Add(time.Minute)
	fs = act(models.ActionPause, func(r *models.FocusActionRequest) { r.At = &later })
	assert.Equal(t, pausedAt, *fs.PausedAt)

	paused := int64(120000)
	fs = act(models.ActionResume, func(r *models.FocusActionRequest) { r.PausedDuration = &paused })
	assert.Equal(t, models.SessionActive, fs.Status)
	assert.Nil(t, fs.PausedAt)
	assert.Equal(t, paused, fs.PausedDuration)

	breakStart := h.now.Add(30 * time.Minute)
	fs = act(models.ActionStartBreak, func(r *models.FocusActionRequest) {
		r.Breaks = []models.Break{{StartTime: breakStart, Type: models.BreakShort, WasTimely: true}}
		r.Status = models.SessionActive
	})
	require.Len(t, fs.Breaks, 1)
	assert.True(t, fs.Breaks[0].Open())

	endedAt := h.now.Add(60 * time.Minute)
	fs = act(models.ActionStop, func(r *models.FocusActionRequest) {
		r.At = &endedAt
		r.Metrics = &models.SessionMetrics{TotalFocusTime: 3000, BreakTime: 300, Interruptions: 1, Productivity: 90}
	})
	assert.Equal(t, models.SessionCompleted, fs.Status)
	require.NotNil(t, fs.EndTime)
	assert.Equal(t, endedAt, *fs.EndTime)

	require.Len(t, h.recorder.outcomes, 1)
	o := h.recorder.outcomes[0]
	assert.Equal(t, int64(1), o.UserID)
	assert.Equal(t, int64(3000), o.FocusSeconds)
	assert.Equal(t, int64(300), o.BreakSeconds)
	assert.Equal(t, 1, o.Interruptions)
	assert.Equal(t, endedAt, o.EndedAt)

	_, err = h.svc.Apply(ctx, 1, models.FocusActionRequest{Action: models.ActionSync, SessionID: "s-1", DeviceID: "laptop"})
	assert.ErrorIs(t, err, ErrCompleted)
}

func TestApplyIgnoresOlderSnapshot(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.svc.Create(ctx, 1, createReq("laptop"))
	require.NoError(t, err)

	breakStart := h.now.Add(25 * time.Minute)
	breakEnd := breakStart.Add(5 * time.Minute)
	ended := models.Break{StartTime: breakStart, EndTime: &breakEnd, Type: models.BreakShort, WasTimely: true}

	fresh := models.FocusActionRequest{
		Action: models.ActionEndBreak, SessionID: "s-1", DeviceID: "laptop", At: &breakEnd,
		Breaks:  []models.Break{ended},
		Metrics: &models.SessionMetrics{TotalFocusTime: 1500, BreakTime: 300},
		Status:  models.SessionActive,
	}
	_, err = h.svc.Apply(ctx, 1, fresh)
	require.NoError(t, err)

	// The start_break queued while offline arrives after the end_break.
	stale := models.FocusActionRequest{
		Action: models.ActionStartBreak, SessionID: "s-1", DeviceID: "laptop", At: &breakStart,
		Breaks:  []models.Break{{StartTime: breakStart, Type: models.BreakShort, WasTimely: true}},
		Metrics: &models.SessionMetrics{TotalFocusTime: 1500},
		Status:  models.SessionActive,
	}
	fs, err := h.svc.Apply(ctx, 1, stale)
	require.NoError(t, err)

	stored := h.repo.sessions["s-1"]
	for _, got := range []*models.FocusSession{fs, stored} {
		require.Len(t, got.Breaks, 1)
		assert.False(t, got.Breaks[0].Open())
		assert.Equal(t, int64(300), got.Metrics.BreakTime)
		require.NotNil(t, got.ClientTime)
		assert.Equal(t, breakEnd, *got.ClientTime)
	}

	// Stop is always applied, whatever its client time.
	fs, err = h.svc.Apply(ctx, 1, models.FocusActionRequest{
		Action: models.ActionStop, SessionID: "s-1", DeviceID: "laptop", At: &breakStart,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, fs.Status)
}

func TestStopSurvivesRecorderFailure(t *testing.T) {
	h := newHarness()
	h.recorder.err = errors.New("db down")
	ctx := context.Background()
	_, err := h.svc.Create(ctx, 1, createReq("laptop"))
	require.NoError(t, err)

	fs, err := h.svc.Apply(ctx, 1, models.FocusActionRequest{Action: models.ActionStop, SessionID: "s-1", DeviceID: "laptop"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, fs.Status)
	assert.Equal(t, models.SessionCompleted, h.repo.sessions["s-1"].Status)
}

func do(t *testing.T, fn http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v1/focus-sessions", bytes.NewBufferString(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), 1))
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestHandlerStatusCodes(t *testing.T) {
	h := newHarness()
	handler := NewHandler(h.svc, zap.NewNop())

	rec := do(t, handler.GetActive, http.MethodGet, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler.CreateSession, http.MethodPost,
		`{"subject_id":10,"phase_type":"learning","duration":25,"device_id":"laptop"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.CreateFocusSessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "s-1", created.FocusSession.ID)
	assert.Equal(t, "UTC", created.FocusSession.Timezone)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"unknown action", `{"action":"dance","session_id":"s-1","device_id":"laptop"}`, http.StatusBadRequest},
		{"device mismatch", `{"action":"pause","session_id":"s-1","device_id":"phone"}`, http.StatusConflict},
		{"missing", `{"action":"pause","session_id":"s-9","device_id":"laptop"}`, http.StatusNotFound},
		{"pause", `{"action":"pause","session_id":"s-1","device_id":"laptop"}`, http.StatusOK},
		{"stop", `{"action":"stop","session_id":"s-1","device_id":"laptop"}`, http.StatusOK},
		{"after stop", `{"action":"resume","session_id":"s-1","device_id":"laptop"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, handler.UpdateSession, http.MethodPatch, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	unauth := httptest.NewRequest(http.MethodGet, "/api/v1/focus-sessions/active", nil)
	rec = httptest.NewRecorder()
	handler.GetActive(rec, unauth)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
