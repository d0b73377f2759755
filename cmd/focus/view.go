package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/studytrack/backend/internal/focus"
	"github.com/studytrack/backend/internal/models"
)

var (
	green  = lipgloss.Color("#a6e3a1")
	peach  = lipgloss.Color("#fab387")
	red    = lipgloss.Color("#f38ba8")
	subtle = lipgloss.Color("#a6adc8")
	blue   = lipgloss.Color("#74c7ec")

	timerStyle = lipgloss.NewStyle().Bold(true).Foreground(blue)
	labelStyle = lipgloss.NewStyle().Foreground(subtle)
	okStyle    = lipgloss.NewStyle().Foreground(green)
	warnStyle  = lipgloss.NewStyle().Foreground(peach)
	errorStyle = lipgloss.NewStyle().Foreground(red).Bold(true)

	statusStyles = map[models.SessionStatus]lipgloss.Style{
		models.SessionActive: lipgloss.NewStyle().Foreground(green).Bold(true),
		models.SessionPaused: lipgloss.NewStyle().Foreground(peach).Bold(true),
	}

	panel = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(subtle).
		Padding(0, 1)
)

// timerLine is the single line redrawn on every display tick.
func timerLine(d focus.DisplayState) string {
	status := string(d.Status)
	if d.OnBreak {
		status = "break"
	}
	style, ok := statusStyles[d.Status]
	if !ok {
		style = labelStyle
	}

	parts := []string{
		timerStyle.Render(d.Formatted),
		style.Render(strings.ToUpper(status)),
	}
	if d.BreakDue {
		parts = append(parts, warnStyle.Render(minutes(d.BreakLength)+" break due, press b"))
	} else if d.NextBreak > 0 && !d.OnBreak {
		parts = append(parts, labelStyle.Render("next break in "+minutes(d.NextBreak)))
	}
	return strings.Join(parts, "  ")
}

// minutes rounds up, so "next break in 1m" shows until the break is due.
func minutes(d time.Duration) string {
	return fmt.Sprintf("%dm", int(math.Ceil(d.Minutes())))
}

func statusPanel(d focus.DisplayState, pending, dead int) string {
	if !d.HasSession {
		return panel.Render(labelStyle.Render("no focus session") + queueLine(pending, dead))
	}
	lines := []string{
		timerLine(d),
		labelStyle.Render(fmt.Sprintf("session %s  subject %d  interruptions %d", d.SessionID, d.SubjectID, d.Interruptions)),
	}
	return panel.Render(strings.Join(lines, "\n") + queueLine(pending, dead))
}

func queueLine(pending, dead int) string {
	if pending == 0 && dead == 0 {
		return ""
	}
	line := fmt.Sprintf("\n%d queued update(s)", pending)
	if dead > 0 {
		line += errorStyle.Render(fmt.Sprintf(", %d undeliverable", dead))
	}
	return warnStyle.Render(line)
}

func metricsPanel(m models.SessionMetrics) string {
	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-14s", label)) + value
	}
	rows := []string{
		okStyle.Render("Session complete"),
		row("focus", focus.FormatTime(float64(m.TotalFocusTime))),
		row("breaks", focus.FormatTime(float64(m.BreakTime))),
		row("interruptions", fmt.Sprint(m.Interruptions)),
		row("productivity", fmt.Sprintf("%d%%", m.Productivity)),
	}
	return panel.Render(strings.Join(rows, "\n"))
}
