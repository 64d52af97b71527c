// Package tui is the terminal status screen for the monitor command. It only
// renders state owned elsewhere; push and status events reach it as tea.Msg
// values through Subscribe.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agent-racer/hookwatch/internal/client"
	"github.com/agent-racer/hookwatch/internal/push"
	"github.com/agent-racer/hookwatch/internal/status"
	"github.com/agent-racer/hookwatch/internal/store"
)

// Connection is the push connection as the screen drives it.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() push.State
}

// StatusSource is the aggregator as the screen drives it.
type StatusSource interface {
	Start(interval time.Duration)
	Status() status.AggregateStatus
	ForceUpdate(ctx context.Context) (status.AggregateStatus, error)
}

// Records is the state owner holding refreshed records.
type Records interface {
	Events() []client.Record
	DebugLogs() []client.Record
}

type pane int

const (
	paneEvents pane = iota
	paneDebugLogs
)

// Messages delivered by Subscribe.
type (
	ConnStateMsg struct{ From, To push.State }
	ReconnectMsg push.ReconnectInfo
	ConnErrorMsg struct{ Err *push.Error }
	StatusMsg    status.AggregateStatus
	StatusErrMsg struct{ Err error }
	RecordsMsg   struct{ Stream store.Stream }

	connectResultMsg struct{ Err error }
	tickMsg          time.Time
)

// Model is the root Bubble Tea model.
type Model struct {
	conn    Connection
	agg     StatusSource
	records Records
	poll    time.Duration
	ctx     context.Context
	cancel  context.CancelFunc

	keys   KeyMap
	width  int
	height int
	now    func() time.Time

	bar       statusBar
	pane      pane
	scroll    int
	events    []client.Record
	debugLogs []client.Record
	lastErr   string
	fatal     bool
}

func New(conn Connection, agg StatusSource, records Records, pollInterval time.Duration) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		conn:    conn,
		agg:     agg,
		records: records,
		poll:    pollInterval,
		ctx:     ctx,
		cancel:  cancel,
		keys:    DefaultKeyMap(),
		now:     time.Now,
		bar:     statusBar{Conn: push.StateDisconnected},
	}
	if agg != nil {
		m.bar.Status = agg.Status()
	}
	return m
}

// Init connects the push stream and starts status polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.connect(), m.startPolling(), tick())
}

func (m Model) connect() tea.Cmd {
	conn, ctx := m.conn, m.ctx
	return func() tea.Msg {
		return connectResultMsg{Err: conn.Connect(ctx)}
	}
}

func (m Model) startPolling() tea.Cmd {
	agg, interval := m.agg, m.poll
	return func() tea.Msg {
		agg.Start(interval)
		return nil
	}
}

func (m Model) forceUpdate() tea.Cmd {
	agg, ctx := m.agg, m.ctx
	return func() tea.Msg {
		s, err := agg.ForceUpdate(ctx)
		if err != nil {
			return StatusErrMsg{Err: err}
		}
		return StatusMsg(s)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tick()

	case connectResultMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		}
		m.bar.Conn = m.conn.State()
		return m, nil

	case ConnStateMsg:
		m.bar.Conn = msg.To
		if msg.To == push.StateConnected {
			m.bar.Reconnect = nil
			m.lastErr = ""
			m.fatal = false
		}
		return m, nil

	case ReconnectMsg:
		info := push.ReconnectInfo(msg)
		m.bar.Reconnect = &info
		return m, nil

	case ConnErrorMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
			m.fatal = msg.Err.Fatal
		}
		return m, nil

	case StatusMsg:
		m.bar.Status = status.AggregateStatus(msg)
		return m, nil

	case StatusErrMsg:
		m.bar.Status = m.agg.Status()
		return m, nil

	case RecordsMsg:
		switch msg.Stream {
		case store.StreamEvents:
			m.events = m.records.Events()
		case store.StreamDebugLogs:
			m.debugLogs = m.records.DebugLogs()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		m.pane = (m.pane + 1) % 2
		m.scroll = 0
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.scroll < len(m.current())-1 {
			m.scroll++
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.scroll > 0 {
			m.scroll--
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.forceUpdate()

	case key.Matches(msg, m.keys.Reconnect):
		m.lastErr = ""
		m.fatal = false
		return m, m.connect()
	}
	return m, nil
}

func (m Model) current() []client.Record {
	if m.pane == paneDebugLogs {
		return m.debugLogs
	}
	return m.events
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.bar.View(m.now())}
	if banner := m.banner(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections, m.renderRecords(max(m.height-len(sections)*3-2, 3)))
	sections = append(sections, StyleDimmed.Render("  j/k:scroll  tab:events/logs  r:refresh  c:reconnect  q:quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) banner() string {
	s := m.bar.Status
	switch {
	case m.fatal:
		return StyleBanner.Render("DISCONNECTED: " + m.lastErr + "  (c to retry)")
	case m.bar.Conn == push.StateReconnecting:
		return StyleBanner.Render("Reconnecting to push stream...")
	case s.Server.State == status.ServerError:
		return StyleBanner.Render("STATUS ERROR: " + s.Error)
	}
	return ""
}

func (m Model) renderRecords(rows int) string {
	title := "EVENTS"
	if m.pane == paneDebugLogs {
		title = "DEBUG LOGS"
	}
	recs := m.current()
	lines := []string{StyleHeader.Render(fmt.Sprintf("=== %s (%d) ", title, len(recs)) + strings.Repeat("=", 40))}

	if len(recs) == 0 {
		lines = append(lines, StyleDimmed.Render("  Nothing received yet"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	end := len(recs) - m.scroll
	start := max(end-rows, 0)
	for i := end - 1; i >= start; i-- {
		lines = append(lines, renderRecord(recs[i], m.pane))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRecord(r client.Record, p pane) string {
	ts := StyleDimmed.Render(r.Timestamp.Local().Format("15:04:05"))
	if p == paneDebugLogs {
		level := lipgloss.NewStyle().Foreground(LevelColor(r.Level)).Render(fmt.Sprintf("%-5s", r.Level))
		return "  " + ts + " " + level + " " + r.Message
	}
	line := "  " + ts + " " + r.Type
	if r.Session != "" {
		line += " " + StyleDimmed.Render(r.Session)
	}
	if r.Message != "" {
		line += "  " + r.Message
	}
	return line
}
