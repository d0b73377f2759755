package main

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studytrack/backend/internal/focus"
	"github.com/studytrack/backend/internal/models"
)

func TestOutcome(t *testing.T) {
	rejected := fmt.Errorf("%w: %w", focus.ErrSyncFailed, &focus.StatusError{Code: http.StatusConflict})
	unreachable := fmt.Errorf("%w: %w", focus.ErrSyncFailed, errors.New("dial tcp: connection refused"))

	tests := []struct {
		name    string
		step    transition
		err     error
		wantErr error
		wantMsg string
		notMsg  string
	}{
		{"acknowledged", stepPause, nil, nil, "", ""},
		{"queued counts as success", stepPause, fmt.Errorf("pause: %w", focus.ErrQueued), nil, "", ""},
		{"pause unreachable", stepPause, unreachable, focus.ErrSyncFailed, "server unreachable, nothing changed", ""},
		{"start rejected", stepStart, rejected, focus.ErrSyncFailed, "server rejected the update, nothing changed", "unreachable"},
		{"break rejected keeps local change", stepBreak, rejected, focus.ErrSyncFailed, "Break started on this device", "nothing changed"},
		{"stop rejected still ends session", stepStop, rejected, focus.ErrSyncFailed, "Stopped on this device", "nothing changed"},
		{"other errors pass through", stepStop, focus.ErrNoSession, focus.ErrNoSession, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := outcome(tt.step, tt.err)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			if tt.notMsg != "" {
				assert.NotContains(t, err.Error(), tt.notMsg)
			}
		})
	}
}

func TestTimerLine(t *testing.T) {
	line := timerLine(focus.DisplayState{
		HasSession: true,
		Formatted:  "24:59",
		Status:     models.SessionActive,
		NextBreak:  10 * time.Minute,
	})
	assert.Contains(t, line, "24:59")
	assert.Contains(t, line, "ACTIVE")
	assert.Contains(t, line, "next break in 10m")

	almost := timerLine(focus.DisplayState{HasSession: true, Formatted: "24:59", Status: models.SessionActive, NextBreak: 30 * time.Second})
	assert.Contains(t, almost, "next break in 1m")

	due := timerLine(focus.DisplayState{HasSession: true, Formatted: "10:00", Status: models.SessionActive, BreakDue: true, BreakLength: 15 * time.Minute})
	assert.Contains(t, due, "15m break due")

	onBreak := timerLine(focus.DisplayState{HasSession: true, Formatted: "05:00", Status: models.SessionPaused, OnBreak: true, NextBreak: time.Minute})
	assert.Contains(t, onBreak, "BREAK")
	assert.NotContains(t, onBreak, "next break")
}

func TestStatusPanel(t *testing.T) {
	empty := statusPanel(focus.DisplayState{}, 0, 0)
	assert.Contains(t, empty, "no focus session")
	assert.NotContains(t, empty, "queued")

	withQueue := statusPanel(focus.DisplayState{HasSession: true, SessionID: "s-1", SubjectID: 3, Formatted: "01:00", Status: models.SessionActive}, 2, 1)
	assert.Contains(t, withQueue, "session s-1")
	assert.Contains(t, withQueue, "2 queued update(s)")
	assert.Contains(t, withQueue, "1 undeliverable")
}

func TestMetricsPanel(t *testing.T) {
	out := metricsPanel(models.SessionMetrics{TotalFocusTime: 1500, BreakTime: 300, Interruptions: 2, Productivity: 80})
	assert.Contains(t, out, "Session complete")
	assert.Contains(t, out, "80%")
	assert.Contains(t, out, focus.FormatTime(1500))
}
