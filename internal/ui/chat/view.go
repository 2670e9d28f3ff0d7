// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/util"
)

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "starting rigchat..."
	}

	var body string
	switch m.screen {
	case screenPicker:
		body = m.renderPicker()
	default:
		body = m.vp.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderInput(),
		m.renderFooter(),
	)
}

// =============================================================================
// HEADER AND FOOTER
// =============================================================================

func (m *Model) renderHeader() string {
	st := m.view.Model
	left := m.theme.HeaderTitle.Render("rigchat") + "  " + m.theme.ModelStatus(st)
	if st.Status == lifecycle.StatusLoading {
		if st.Progress != nil && st.Progress.Fraction != nil {
			left += "  " + m.bar.ViewAs(*st.Progress.Fraction)
		} else {
			left += " " + m.spin.View()
		}
	}
	return m.theme.Header.Width(m.width).Render(left)
}

func (m *Model) renderInput() string {
	if m.screen == screenSystem {
		return m.theme.InputContainer.Width(m.width).Render(m.system.View())
	}
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m *Model) renderFooter() string {
	bindings := m.keys.ChatHelp()
	if m.screen == screenPicker {
		bindings = m.keys.PickerHelp()
	}
	line := m.help.ShortHelpView(bindings)
	if m.notice != "" {
		line = m.theme.Hint.Render(util.Truncate(m.notice, max(m.width/2, 10))) + "  " + line
	}
	sys := util.FirstLine(m.view.SystemPrompt)
	if sys == "" {
		sys = "(no system prompt)"
	}
	meta := m.theme.Hint.Render(fmt.Sprintf("system: %s  temp %.2f  max %d",
		util.Truncate(sys, max(m.width-30, 10)), m.view.Params.Temperature, m.view.Params.MaxTokens))
	return lipgloss.JoinVertical(lipgloss.Left, meta, line)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m *Model) renderTranscript() string {
	if len(m.view.Messages) == 0 {
		hint := "Pick a model with ctrl+o, then start typing."
		if m.view.Model.Status == lifecycle.StatusReady {
			hint = "Say something."
		}
		return m.theme.Hint.Render(hint)
	}

	var b strings.Builder
	for i := range m.view.Messages {
		msg := &m.view.Messages[i]
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderMessage(msg *model.Message) string {
	if msg.Role == model.RoleUser {
		return m.theme.UserLabel.Render(msg.Role.DisplayName()) + "\n" +
			m.theme.UserText.Width(m.contentWidth()).Render(msg.Content)
	}

	label := m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	switch {
	case msg.InFlight():
		text := msg.Content + " " + m.spin.View()
		return label + "\n" + m.theme.AssistantText.Width(m.contentWidth()).Render(text)
	case msg.Failed || strings.HasPrefix(msg.Content, session.ErrorMarker):
		return label + "\n" + m.theme.ErrorText.Width(m.contentWidth()).Render(msg.Content)
	default:
		out := label + "\n" + m.markdown(msg)
		if stats := msg.FormatStats(); stats != "" {
			out += "\n" + m.theme.Stats.Render(stats)
		}
		return out
	}
}

func (m *Model) contentWidth() int {
	return max(m.width-2, 20)
}

// markdown renders a frozen reply once per width.
func (m *Model) markdown(msg *model.Message) string {
	if m.md == nil || m.mdWidth != m.contentWidth() {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.theme.GlamourStyle()),
			glamour.WithWordWrap(m.contentWidth()),
		)
		if err != nil {
			return msg.Content
		}
		m.md, m.mdWidth = r, m.contentWidth()
		m.rendered = make(map[string]string)
	}
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out, err := m.md.Render(msg.Content)
	if err != nil {
		return msg.Content
	}
	out = strings.Trim(out, "\n")
	m.rendered[msg.ID] = out
	return out
}

// =============================================================================
// PICKER
// =============================================================================

func (m *Model) renderPicker() string {
	var b strings.Builder
	b.WriteString(m.theme.PickerTitle.Render("Select a model"))
	b.WriteString("\n\n")
	if len(m.picker) == 0 {
		b.WriteString(m.theme.Hint.Render("The catalog is empty. Check [catalog] in your config."))
	}
	for i, d := range m.picker {
		line := fmt.Sprintf("%-22s %s", util.Truncate(d.ID, 22), d.DisplayName())
		meta := d.Recipe.Backend
		if d.Recipe.SizeBytes > 0 {
			meta += fmt.Sprintf(", %.1f GB", float64(d.Recipe.SizeBytes)/float64(1<<30))
		}
		style := m.theme.PickerItem
		cursor := "  "
		if i == m.cursor {
			style = m.theme.PickerSelected
			cursor = "> "
		}
		b.WriteString(cursor + style.Render(line) + " " + m.theme.PickerMeta.Render(meta) + "\n")
	}
	box := m.theme.PickerBox.Width(max(m.width-4, 20)).Render(strings.TrimRight(b.String(), "\n"))
	return lipgloss.NewStyle().Height(m.vp.Height).Render(box)
}
