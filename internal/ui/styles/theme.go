// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/rigchat/internal/lifecycle"
)

// Theme holds the styles shared by the TUI and the REPL.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	UserLabel      lipgloss.Style
	UserText       lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantText  lipgloss.Style
	ErrorText      lipgloss.Style
	Stats          lipgloss.Style

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	StatusBar    lipgloss.Style
	StatusReady  lipgloss.Style
	StatusLoad   lipgloss.Style
	StatusFailed lipgloss.Style
	StatusIdle   lipgloss.Style

	PickerBox      lipgloss.Style
	PickerTitle    lipgloss.Style
	PickerItem     lipgloss.Style
	PickerSelected lipgloss.Style
	PickerMeta     lipgloss.Style

	Hint lipgloss.Style
}

// NewTheme detects the terminal's color capability and builds the styles.
func NewTheme() *Theme {
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.HeaderModel = lipgloss.NewStyle().Foreground(TextSecondary)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.UserText = lipgloss.NewStyle().Foreground(TextPrimary)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.AssistantText = lipgloss.NewStyle().Foreground(TextPrimary)
	t.ErrorText = lipgloss.NewStyle().Foreground(Rose)
	t.Stats = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().Foreground(Cyan).Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.StatusReady = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.StatusLoad = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.StatusFailed = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.StatusIdle = lipgloss.NewStyle().Foreground(TextMuted)

	t.PickerBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)
	t.PickerTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.PickerItem = lipgloss.NewStyle().Foreground(TextPrimary)
	t.PickerSelected = lipgloss.NewStyle().Foreground(TextPrimary).Background(SelectionBg).Bold(true)
	t.PickerMeta = lipgloss.NewStyle().Foreground(TextMuted)

	t.Hint = lipgloss.NewStyle().Foreground(TextMuted)
}

// ModelStatus renders a lifecycle summary with its indicator and color.
func (t *Theme) ModelStatus(s lifecycle.State) string {
	switch s.Status {
	case lifecycle.StatusReady:
		return t.StatusReady.Render(IndicatorReady + " " + s.Summary())
	case lifecycle.StatusLoading:
		return t.StatusLoad.Render(IndicatorLoading + " " + s.Summary())
	case lifecycle.StatusFailed:
		return t.StatusFailed.Render(IndicatorFailed + " " + s.Summary())
	default:
		return t.StatusIdle.Render(IndicatorIdle + " " + s.Summary())
	}
}

// GlamourStyle names the glamour style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
