// Package tui is the live terminal monitor of dtrackd. It shows the tracked
// entities of the newest frame and the controller messages received so far.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/engine"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("24")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	headerCellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			PaddingRight(1)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingRight(1)

	untrackedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingRight(1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true).
			PaddingLeft(1)
)

type tab int

const (
	tabTargets tab = iota
	tabMarkers
	tabMessages
	tabCount
)

var tabNames = []string{"Targets", "Markers", "Messages"}

// EventMsg delivers one hub event to the model.
type EventMsg engine.Event

type closedMsg struct{}

// TickMsg recomputes the frame rate.
type TickMsg time.Time

type Options struct {
	// Refresh is how often the frame rate is recomputed.
	Refresh time.Duration
	// MaxRows limits the rows of each table and the message backlog.
	MaxRows int
	// Source names the data port in the status bar.
	Source string
}

type Model struct {
	events <-chan engine.Event
	opts   Options

	activeTab tab
	width     int
	height    int

	frame    *protocol.Frame
	received time.Time
	messages []command.Message

	frames   int
	lastTick time.Time
	rate     float64
	closed   bool
}

// New returns a monitor reading from events, normally a hub subscription.
func New(events <-chan engine.Event, opts Options) Model {
	if opts.Refresh <= 0 {
		opts.Refresh = 100 * time.Millisecond
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = 20
	}
	return Model{events: events, opts: opts}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), waitForEvent(m.events))
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForEvent(events <-chan engine.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return EventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "right", "l":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "left", "h":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1":
			m.activeTab = tabTargets
		case "2":
			m.activeTab = tabMarkers
		case "3":
			m.activeTab = tabMessages
		case "c":
			m.messages = nil
		}
		return m, nil

	case EventMsg:
		if msg.Frame != nil {
			m.frame = msg.Frame
			m.received = msg.Received
			m.frames++
		}
		m.messages = append(m.messages, msg.Messages...)
		if over := len(m.messages) - m.opts.MaxRows; over > 0 {
			m.messages = m.messages[over:]
		}
		return m, waitForEvent(m.events)

	case closedMsg:
		m.closed = true
		return m, nil

	case TickMsg:
		now := time.Time(msg)
		if !m.lastTick.IsZero() {
			if dt := now.Sub(m.lastTick).Seconds(); dt > 0 {
				m.rate = float64(m.frames) / dt
			}
		}
		m.frames = 0
		m.lastTick = now
		return m, m.tick()
	}
	return m, nil
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("DTrack monitor"))
	sb.WriteString("\n")

	var tabs []string
	for i, name := range tabNames {
		label := fmt.Sprintf("%d: %s", i+1, name)
		if tab(i) == m.activeTab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(label))
		}
	}
	sb.WriteString(strings.Join(tabs, ""))
	sb.WriteString("\n")

	content := m.renderActiveTab()
	if m.height > 4 {
		content = clipLines(content, m.height-4)
	}
	sb.WriteString(content)
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	return sb.String()
}

func (m Model) renderActiveTab() string {
	switch m.activeTab {
	case tabTargets:
		if m.frame == nil {
			return dimStyle.Render("waiting for tracking data")
		}
		return renderTargets(targetRows(m.frame), m.opts.MaxRows)
	case tabMarkers:
		if m.frame == nil {
			return dimStyle.Render("waiting for tracking data")
		}
		return renderMarkers(m.frame.Markers, m.opts.MaxRows)
	case tabMessages:
		return renderMessages(m.messages)
	default:
		return ""
	}
}

func (m Model) renderStatus() string {
	if m.closed {
		return errorStyle.Render("data stream closed, press q to quit")
	}
	var parts []string
	if m.opts.Source != "" {
		parts = append(parts, "data: "+m.opts.Source)
	}
	if m.frame != nil {
		parts = append(parts, fmt.Sprintf("frame %d", m.frame.Counter))
		if m.frame.Timestamp >= 0 {
			parts = append(parts, fmt.Sprintf("ts %.3f", m.frame.Timestamp))
		}
		if !m.received.IsZero() {
			parts = append(parts, "at "+m.received.Format("15:04:05"))
		}
	}
	parts = append(parts, fmt.Sprintf("%.1f Hz", m.rate))
	parts = append(parts, "q: quit  tab: next  c: clear messages")
	return statusBarStyle.Render(strings.Join(parts, "  |  "))
}

func clipLines(s string, maxLines int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}
