// Package tui draws the dashboard display state in the terminal and turns key
// presses into operator commands.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model/messages"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/command"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/dashboard"
)

// Commander is implemented by command.Dispatcher.
type Commander interface {
	SendCommand(ctx context.Context, name string) (messages.CommandResponse, error)
	Reboot(ctx context.Context) (messages.RebootAck, error)
}

// DisplayMsg carries a new frame from the dashboard store (program.Send).
type DisplayMsg dashboard.DisplayState

type resultMsg struct {
	text string
	err  error
}

type Model struct {
	view    dashboard.DisplayState
	cmds    Commander
	keys    KeyMap
	theme   Theme
	timeout time.Duration

	status    string
	statusErr bool
}

func New(initial dashboard.DisplayState, cmds Commander, timeout time.Duration) Model {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return Model{view: initial, cmds: cmds, keys: DefaultKeyMap, theme: DefaultTheme, timeout: timeout}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case DisplayMsg:
		m.view = dashboard.DisplayState(msg)
		return m, nil

	case resultMsg:
		if msg.err != nil {
			m.status, m.statusErr = msg.err.Error(), true
		} else {
			m.status, m.statusErr = msg.text, false
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			if !m.view.Controls.ToggleEnabled {
				return m, nil
			}
			return m.pending("toggle sent"), m.send(command.Toggle)
		case key.Matches(msg, m.keys.Override):
			if !m.view.Controls.OverrideEnabled {
				return m, nil
			}
			return m.pending("override sent"), m.send(command.Override)
		case key.Matches(msg, m.keys.Reboot):
			return m.pending("reboot requested"), m.reboot()
		}
	}
	return m, nil
}

func (m Model) pending(s string) Model {
	m.status, m.statusErr = s+"...", false
	return m
}

func (m Model) send(name string) tea.Cmd {
	cmds, timeout := m.cmds, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := cmds.SendCommand(ctx, name); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: name + ": ok"}
	}
}

func (m Model) reboot() tea.Cmd {
	cmds, timeout := m.cmds, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ack, err := cmds.Reboot(ctx)
		if err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{text: ack.Message}
	}
}

func (m Model) View() string {
	t := m.theme
	label := lipgloss.NewStyle().Foreground(t.Faint).Width(13)
	text := lipgloss.NewStyle().Foreground(t.Text)

	var b strings.Builder

	conn := lipgloss.NewStyle().Bold(true).Foreground(t.Offline).Render("● " + m.view.Connection.Label)
	if m.view.Connection.Connected {
		conn = lipgloss.NewStyle().Bold(true).Foreground(t.Online).Render("● " + m.view.Connection.Label)
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(t.Accent).Render("pumpwatch") + "  " + conn + "\n\n")

	reading := func(name string, r dashboard.Reading) {
		v := lipgloss.NewStyle().Bold(true).Foreground(t.TierColor(r.Tier)).Render(r.Text)
		b.WriteString(label.Render(name) + v + " " + text.Render(r.Unit) + "\n")
	}
	reading("Pressure", m.view.Pressure)
	b.WriteString(label.Render("") + bar(m.view.PressureBar.FillPercent, 30, t.TierColor(m.view.PressureBar.Tier), t.Border) + "\n")
	reading("Temperature", m.view.Temperature)
	reading("Flow", m.view.Flow)
	b.WriteString("\n")

	motor := text.Render(m.view.Motor.Text)
	if m.view.Motor.Status == dashboard.MotorOn {
		motor = lipgloss.NewStyle().Bold(true).Foreground(t.Normal).Render(m.view.Motor.Text)
	}
	b.WriteString(label.Render("Motor") + motor + "\n")

	mode := text.Render(m.view.Mode.Text)
	if m.view.Controls.OverrideEmphasis {
		mode = lipgloss.NewStyle().Bold(true).Foreground(t.Warning).Render(m.view.Mode.Text)
	}
	b.WriteString(label.Render("Mode") + mode + "\n\n")

	b.WriteString(m.helpLine() + "\n")
	if m.status != "" {
		c := t.Faint
		if m.statusErr {
			c = t.Danger
		}
		b.WriteString(lipgloss.NewStyle().Foreground(c).Render(m.status) + "\n")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1).
		Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) helpLine() string {
	enabled := lipgloss.NewStyle().Foreground(m.theme.Text)
	disabled := lipgloss.NewStyle().Foreground(m.theme.Border).Strikethrough(true)
	parts := make([]string, 0, 4)
	for _, k := range m.keys.help() {
		h := k.Help()
		s := enabled
		if (h == m.keys.Toggle.Help() && !m.view.Controls.ToggleEnabled) ||
			(h == m.keys.Override.Help() && !m.view.Controls.OverrideEnabled) {
			s = disabled
		}
		parts = append(parts, s.Render(fmt.Sprintf("[%s] %s", h.Key, h.Desc)))
	}
	return strings.Join(parts, "  ")
}

func bar(pct float64, width int, fill, empty lipgloss.Color) string {
	n := int(pct / 100 * float64(width))
	if n < 0 {
		n = 0
	}
	if n > width {
		n = width
	}
	return lipgloss.NewStyle().Foreground(fill).Render(strings.Repeat("█", n)) +
		lipgloss.NewStyle().Foreground(empty).Render(strings.Repeat("░", width-n))
}
