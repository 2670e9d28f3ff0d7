// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigchat/internal/app"
	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// Controller is the part of app.App the TUI drives.
type Controller interface {
	Select(id string) error
	Send(prompt string) error
	Reset()
	SetSystemPrompt(s string)
	Snapshot() app.View
	Descriptors() []catalog.Descriptor
}

// =============================================================================
// MODEL
// =============================================================================

type screen int

const (
	screenChat screen = iota
	screenPicker
	screenSystem
)

const (
	headerHeight = 1
	inputHeight  = 2
	footerHeight = 2
)

// Model is the Bubble Tea model.
type Model struct {
	ctrl     Controller
	notifier *Notifier
	theme    *styles.Theme
	keys     KeyMap

	screen screen
	input  textinput.Model
	system textinput.Model
	vp     viewport.Model
	spin   spinner.Model
	bar    progress.Model
	help   help.Model
	picker []catalog.Descriptor
	cursor int
	view   app.View
	notice string
	width  int
	height int
	ready  bool

	md       *glamour.TermRenderer
	mdWidth  int
	rendered map[string]string
}

// New creates the TUI model. The caller wires the notifier to the core's
// change hook, e.g. app.OnChange(n.Notify).
func New(ctrl Controller, n *Notifier, theme *styles.Theme) *Model {
	if theme == nil {
		theme = styles.NewTheme()
	}

	in := textinput.New()
	in.Placeholder = "Send a message, or /model <id>"
	in.Prompt = "> "
	in.PromptStyle = theme.InputPrompt
	in.CharLimit = 8000
	in.Focus()

	sys := textinput.New()
	sys.Prompt = "system> "
	sys.PromptStyle = theme.InputPrompt
	sys.CharLimit = 4000

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.StatusLoad))

	m := &Model{
		ctrl:     ctrl,
		notifier: n,
		theme:    theme,
		keys:     DefaultKeyMap(),
		input:    in,
		system:   sys,
		vp:       viewport.New(80, 20),
		spin:     sp,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(20), progress.WithoutPercentage()),
		help:     help.New(),
		rendered: make(map[string]string),
	}
	m.view = ctrl.Snapshot()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, m.notifier.Wait())
}

// busy reports whether something is animating.
func (m *Model) busy() bool {
	return m.view.Streaming || m.view.Model.Status == lifecycle.StatusLoading
}
