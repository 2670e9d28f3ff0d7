// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigchat/internal/app"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case ChangedMsg:
		m.refresh()
		return m, m.notifier.Wait()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.busy() {
			m.refreshTranscript()
		}
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		switch m.screen {
		case screenPicker:
			return m.updatePicker(msg)
		case screenSystem:
			return m.updateSystem(msg)
		default:
			return m.updateChat(msg)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// SCREENS
// =============================================================================

func (m *Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if strings.HasPrefix(strings.TrimSpace(text), "/") {
			m.input.Reset()
			return m, m.runCommand(strings.TrimSpace(text))
		}
		if err := m.ctrl.Send(text); err != nil {
			if !errors.Is(err, app.ErrEmptyPrompt) {
				m.notice = err.Error()
			}
			return m, nil
		}
		m.notice = ""
		m.input.Reset()
		m.vp.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Models):
		m.openPicker()
		return m, nil

	case key.Matches(msg, m.keys.System):
		m.openSystem("")
		return m, nil

	case key.Matches(msg, m.keys.Reset):
		m.ctrl.Reset()
		m.notice = "conversation cleared"
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.screen = screenChat
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.picker)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Submit):
		if len(m.picker) > 0 {
			m.selectModel(m.picker[m.cursor].ID)
		}
		m.screen = screenChat
	}
	return m, nil
}

func (m *Model) updateSystem(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.closeSystem()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		m.ctrl.SetSystemPrompt(m.system.Value())
		m.notice = "system prompt updated"
		m.closeSystem()
		return m, nil
	}
	var cmd tea.Cmd
	m.system, cmd = m.system.Update(msg)
	return m, cmd
}

func (m *Model) openPicker() {
	m.picker = m.ctrl.Descriptors()
	m.cursor = 0
	for i, d := range m.picker {
		if d.ID == m.view.Model.ModelID {
			m.cursor = i
		}
	}
	m.screen = screenPicker
}

func (m *Model) openSystem(initial string) {
	if initial == "" {
		initial = m.view.SystemPrompt
	}
	m.system.SetValue(initial)
	m.system.CursorEnd()
	m.system.Focus()
	m.input.Blur()
	m.screen = screenSystem
}

func (m *Model) closeSystem() {
	m.system.Blur()
	m.input.Focus()
	m.screen = screenChat
}

func (m *Model) selectModel(id string) {
	if err := m.ctrl.Select(id); err != nil {
		m.notice = err.Error()
		return
	}
	m.notice = ""
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (m *Model) runCommand(line string) tea.Cmd {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "model":
		if arg == "" {
			m.openPicker()
			return nil
		}
		m.selectModel(arg)
	case "models":
		m.openPicker()
	case "system":
		if arg == "" {
			m.openSystem("")
			return nil
		}
		m.ctrl.SetSystemPrompt(arg)
		m.notice = "system prompt updated"
	case "reset", "clear":
		m.ctrl.Reset()
		m.notice = "conversation cleared"
	case "quit", "exit":
		return tea.Quit
	default:
		m.notice = fmt.Sprintf("unknown command /%s", name)
	}
	return nil
}

// =============================================================================
// REFRESH
// =============================================================================

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	m.input.Width = w - 4
	m.system.Width = w - 10
	m.vp.Width = w
	m.vp.Height = max(h-headerHeight-inputHeight-footerHeight, 3)
	m.bar.Width = min(30, max(w/4, 10))
	m.ready = true
	m.refreshTranscript()
}

func (m *Model) refresh() {
	atBottom := m.vp.AtBottom()
	m.view = m.ctrl.Snapshot()
	m.prune()
	m.refreshTranscript()
	if atBottom || m.view.Streaming {
		m.vp.GotoBottom()
	}
}

func (m *Model) refreshTranscript() {
	m.vp.SetContent(m.renderTranscript())
}

// prune drops cached markdown for messages no longer in the conversation.
func (m *Model) prune() {
	if len(m.rendered) == 0 {
		return
	}
	live := make(map[string]bool, len(m.view.Messages))
	for _, msg := range m.view.Messages {
		live[msg.ID] = true
	}
	for id := range m.rendered {
		if !live[id] {
			delete(m.rendered, id)
		}
	}
}
