package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agent-racer/hookwatch/internal/push"
	"github.com/agent-racer/hookwatch/internal/status"
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorInfo    = lipgloss.Color("#3b82f6")
	ColorDefault = lipgloss.Color("#9ca3af")
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleBanner = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorDanger).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorDanger).
			Padding(0, 2)
)

func ConnStateColor(s push.State) lipgloss.Color {
	switch s {
	case push.StateConnected:
		return ColorHealthy
	case push.StateConnecting, push.StateReconnecting:
		return ColorWarning
	default:
		return ColorDanger
	}
}

func ServerStateColor(s status.ServerState) lipgloss.Color {
	switch s {
	case status.ServerRunning:
		return ColorHealthy
	case status.ServerStopped:
		return ColorWarning
	case status.ServerError:
		return ColorDanger
	default:
		return ColorDefault
	}
}

// LevelColor colors debug log levels.
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "error":
		return ColorDanger
	case "warn", "warning":
		return ColorWarning
	case "info":
		return ColorInfo
	default:
		return ColorDimmed
	}
}

func connGlyph(s push.State) string {
	switch s {
	case push.StateConnected:
		return "●"
	case push.StateConnecting, push.StateReconnecting:
		return "◌"
	default:
		return "○"
	}
}
