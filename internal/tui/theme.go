package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/LeonardoBeccarini/pumpwatch/internal/services/dashboard"
)

// Theme is the terminal palette (ANSI 256 codes).
type Theme struct {
	Text    lipgloss.Color
	Faint   lipgloss.Color
	Normal  lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
	Online  lipgloss.Color
	Offline lipgloss.Color
	Accent  lipgloss.Color
	Border  lipgloss.Color
}

var DefaultTheme = Theme{
	Text:    lipgloss.Color("252"),
	Faint:   lipgloss.Color("243"),
	Normal:  lipgloss.Color("42"),
	Warning: lipgloss.Color("214"),
	Danger:  lipgloss.Color("196"),
	Online:  lipgloss.Color("42"),
	Offline: lipgloss.Color("160"),
	Accent:  lipgloss.Color("39"),
	Border:  lipgloss.Color("238"),
}

func (t Theme) TierColor(tier dashboard.Tier) lipgloss.Color {
	switch tier {
	case dashboard.TierDanger:
		return t.Danger
	case dashboard.TierWarning:
		return t.Warning
	default:
		return t.Normal
	}
}
