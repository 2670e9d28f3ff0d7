// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lifecycle

import (
	"fmt"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/epoch"
)

// Status is the lifecycle state of the active model.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusLoading:
		return "Loading"
	case StatusReady:
		return "Ready"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is a point-in-time copy of the manager's observable state.
type State struct {
	ModelID  string
	Epoch    epoch.Token
	Status   Status
	Progress *engine.Progress // latest report of the current load, if any
	Err      string           // failure reason when Status is Failed
}

// Summary returns a one-line status description for display.
func (s State) Summary() string {
	switch s.Status {
	case StatusIdle:
		return "No model selected"
	case StatusLoading:
		if s.Progress == nil {
			return fmt.Sprintf("Loading %s...", s.ModelID)
		}
		label := s.Progress.Label
		if label == "" {
			label = "loading"
		}
		if pct := s.Progress.Percent(); pct >= 0 {
			return fmt.Sprintf("%s: %s %d%%", s.ModelID, label, pct)
		}
		return fmt.Sprintf("%s: %s", s.ModelID, label)
	case StatusReady:
		return fmt.Sprintf("%s ready", s.ModelID)
	case StatusFailed:
		return fmt.Sprintf("%s failed: %s", s.ModelID, s.Err)
	default:
		return s.Status.String()
	}
}
