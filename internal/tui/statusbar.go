package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/agent-racer/hookwatch/internal/push"
	"github.com/agent-racer/hookwatch/internal/status"
)

// statusBar renders connection state and the aggregate status on one line.
type statusBar struct {
	Conn      push.State
	Reconnect *push.ReconnectInfo
	Status    status.AggregateStatus
	Width     int
}

func (b statusBar) View(now time.Time) string {
	width := max(b.Width, 40)
	sep := lipgloss.NewStyle().Foreground(ColorBorder).Render(" | ")

	conn := connGlyph(b.Conn) + " " + string(b.Conn)
	if b.Conn == push.StateReconnecting && b.Reconnect != nil {
		wait := max(b.Reconnect.NextAttemptAt.Sub(now), 0).Round(time.Second)
		conn = fmt.Sprintf("%s (attempt %d, %s)", conn, b.Reconnect.Attempt, wait)
	}
	connStr := lipgloss.NewStyle().Foreground(ConnStateColor(b.Conn)).Render(conn)

	s := b.Status
	server := "server " + string(s.Server.State)
	if s.Server.State == status.ServerRunning {
		server = fmt.Sprintf("server running :%d pid %d", s.Server.Port, s.Server.PID)
		if s.Server.Uptime > 0 {
			server += " up " + s.Server.Uptime.String()
		}
	}
	serverStr := lipgloss.NewStyle().Foreground(ServerStateColor(s.Server.State)).Render(server)

	hooks := "hooks not installed"
	hooksColor := ColorWarning
	if s.Hooks.Installed {
		hooks = fmt.Sprintf("hooks %d/%d", s.Hooks.ActiveCount, s.Hooks.TotalCount)
		hooksColor = ColorHealthy
	}
	hooksStr := lipgloss.NewStyle().Foreground(hooksColor).Render(hooks)

	events := fmt.Sprintf("%d events  %d today  %d/min", s.Events.Total, s.Events.Today, s.Events.RatePerMinute)

	content := connStr + sep + serverStr + sep + hooksStr + sep + events

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(ColorBorder).
		Render(content)
}
