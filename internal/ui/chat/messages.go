// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import tea "github.com/charmbracelet/bubbletea"

// ChangedMsg tells Update to take a fresh snapshot.
type ChangedMsg struct{}

// Notifier coalesces change notifications from core goroutines into
// ChangedMsg values for the Bubble Tea loop. Notify never blocks; bursts of
// chunks collapse into one pending redraw.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier creates a notifier with one pending slot.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify marks the view dirty. Safe from any goroutine.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// Wait returns a command that yields the next ChangedMsg.
func (n *Notifier) Wait() tea.Cmd {
	return func() tea.Msg {
		<-n.ch
		return ChangedMsg{}
	}
}
