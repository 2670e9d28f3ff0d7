// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"regexp"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/app"
	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// fakeController records intents and serves a fixed view.
type fakeController struct {
	view     app.View
	descs    []catalog.Descriptor
	sent     []string
	selected []string
	system   []string
	resets   int
	sendErr  error
}

func (f *fakeController) Select(id string) error {
	f.selected = append(f.selected, id)
	for _, d := range f.descs {
		if d.ID == id {
			return nil
		}
	}
	return lifecycle.ErrUnknownModel
}

func (f *fakeController) Send(prompt string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, prompt)
	return nil
}

func (f *fakeController) Reset()                            { f.resets++ }
func (f *fakeController) SetSystemPrompt(s string)          { f.system = append(f.system, s) }
func (f *fakeController) Snapshot() app.View                { return f.view }
func (f *fakeController) Descriptors() []catalog.Descriptor { return f.descs }

func newTestModel(t *testing.T) (*Model, *fakeController) {
	t.Helper()
	ctrl := &fakeController{
		descs: []catalog.Descriptor{
			{ID: "A", Name: "Model A", Recipe: catalog.Recipe{Backend: "ollama"}},
			{ID: "B", Name: "Model B", Recipe: catalog.Recipe{Backend: "openai"}},
		},
		view: app.View{Params: session.DefaultParams()},
	}
	m := New(ctrl, NewNotifier(), styles.NewTheme())
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, ctrl
}

func typeText(m *Model, s string) {
	m.input.SetValue(s)
}

func press(m *Model, k tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	return cmd
}

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

func plain(s string) string { return ansiRE.ReplaceAllString(s, "") }

// =============================================================================
// INTENTS
// =============================================================================

func TestEnter_SendsPrompt(t *testing.T) {
	m, ctrl := newTestModel(t)
	typeText(m, "Hello")

	press(m, tea.KeyEnter)

	assert.Equal(t, []string{"Hello"}, ctrl.sent)
	assert.Empty(t, m.input.Value())
	assert.Empty(t, m.notice)
}

func TestEnter_SendErrorKeepsInput(t *testing.T) {
	m, ctrl := newTestModel(t)
	ctrl.sendErr = errors.New("no model ready: No model selected")
	typeText(m, "Hello")

	press(m, tea.KeyEnter)

	assert.Equal(t, "Hello", m.input.Value())
	assert.Contains(t, m.notice, "no model ready")
}

func TestEnter_EmptyPromptIsSilent(t *testing.T) {
	m, ctrl := newTestModel(t)
	ctrl.sendErr = app.ErrEmptyPrompt

	press(m, tea.KeyEnter)

	assert.Empty(t, m.notice)
}

func TestSlashCommands(t *testing.T) {
	m, ctrl := newTestModel(t)

	typeText(m, "/model B")
	press(m, tea.KeyEnter)
	assert.Equal(t, []string{"B"}, ctrl.selected)

	typeText(m, "/model nope")
	press(m, tea.KeyEnter)
	assert.Contains(t, m.notice, "unknown model")

	typeText(m, "/system Be terse.")
	press(m, tea.KeyEnter)
	assert.Equal(t, []string{"Be terse."}, ctrl.system)

	typeText(m, "/reset")
	press(m, tea.KeyEnter)
	assert.Equal(t, 1, ctrl.resets)

	typeText(m, "/bogus")
	press(m, tea.KeyEnter)
	assert.Equal(t, "unknown command /bogus", m.notice)

	assert.Empty(t, ctrl.sent, "commands never reach the model")
}

func TestSlashQuit(t *testing.T) {
	m, _ := newTestModel(t)
	typeText(m, "/quit")

	cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestPicker_SelectsHighlighted(t *testing.T) {
	m, ctrl := newTestModel(t)

	press(m, tea.KeyCtrlO)
	require.Equal(t, screenPicker, m.screen)
	assert.Contains(t, plain(m.View()), "Model B")

	press(m, tea.KeyDown)
	press(m, tea.KeyDown)
	press(m, tea.KeyEnter)

	assert.Equal(t, []string{"B"}, ctrl.selected)
	assert.Equal(t, screenChat, m.screen)
}

func TestPicker_StartsOnCurrentModel(t *testing.T) {
	m, _ := newTestModel(t)
	m.view.Model = lifecycle.State{ModelID: "B", Status: lifecycle.StatusReady}

	press(m, tea.KeyCtrlO)
	assert.Equal(t, 1, m.cursor)

	press(m, tea.KeyEsc)
	assert.Equal(t, screenChat, m.screen)
}

func TestSystemEditor(t *testing.T) {
	m, ctrl := newTestModel(t)
	m.view.SystemPrompt = "old"

	press(m, tea.KeyCtrlS)
	require.Equal(t, screenSystem, m.screen)
	assert.Equal(t, "old", m.system.Value())

	m.system.SetValue("new prompt")
	press(m, tea.KeyEnter)

	assert.Equal(t, []string{"new prompt"}, ctrl.system)
	assert.Equal(t, screenChat, m.screen)
	assert.True(t, m.input.Focused())
}

func TestCtrlL_Resets(t *testing.T) {
	m, ctrl := newTestModel(t)
	press(m, tea.KeyCtrlL)
	assert.Equal(t, 1, ctrl.resets)
}

// =============================================================================
// RENDERING
// =============================================================================

func TestChangedMsg_TakesSnapshot(t *testing.T) {
	m, ctrl := newTestModel(t)
	ctrl.view = app.View{
		Model: lifecycle.State{ModelID: "A", Status: lifecycle.StatusReady},
		Messages: []model.Message{
			{ID: "u1", Role: model.RoleUser, Content: "Hello", Frozen: true},
			{ID: "a1", Role: model.RoleAssistant, Content: "Hi th"},
		},
		Streaming: true,
		Params:    session.DefaultParams(),
	}

	_, cmd := m.Update(ChangedMsg{})
	require.NotNil(t, cmd, "keeps listening for changes")

	out := plain(m.View())
	assert.Contains(t, out, "A ready")
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "Hi th")
}

func TestRender_FrozenAndFailed(t *testing.T) {
	m, ctrl := newTestModel(t)
	ctrl.view = app.View{
		Messages: []model.Message{
			{ID: "u1", Role: model.RoleUser, Content: "Hello", Frozen: true},
			{ID: "a1", Role: model.RoleAssistant, Content: "Hi there!", Frozen: true},
			{ID: "u2", Role: model.RoleUser, Content: "Again", Frozen: true},
			{ID: "a2", Role: model.RoleAssistant, Content: session.ErrorMarker + "boom", Frozen: true, Failed: true},
		},
	}
	m.Update(ChangedMsg{})

	out := plain(m.renderTranscript())
	assert.Contains(t, out, "there!")
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, m.rendered, "a1", "frozen reply is cached")
	assert.NotContains(t, m.rendered, "a2")
}

func TestRender_LoadingProgress(t *testing.T) {
	m, ctrl := newTestModel(t)
	p := engine.NewProgress(0.5, "pulling")
	ctrl.view = app.View{Model: lifecycle.State{ModelID: "A", Status: lifecycle.StatusLoading, Progress: &p}}
	m.Update(ChangedMsg{})

	assert.Contains(t, plain(m.View()), "A: pulling 50%")
}

func TestPrune_DropsStaleCache(t *testing.T) {
	m, ctrl := newTestModel(t)
	m.rendered["gone"] = "x"
	ctrl.view = app.View{}

	m.Update(ChangedMsg{})
	assert.Empty(t, m.rendered)
}

func TestNotifier_Coalesces(t *testing.T) {
	n := NewNotifier()
	n.Notify()
	n.Notify()
	n.Notify()

	assert.Equal(t, ChangedMsg{}, n.Wait()())
	select {
	case <-n.ch:
		t.Fatal("bursts must collapse into one message")
	default:
	}
}
