// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigchat/internal/engine"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds the messages of one chat.
type Conversation struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	messages []*Message
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        "conv_" + uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AppendUser appends a user message.
func (c *Conversation) AppendUser(content string) *Message {
	return c.append(NewUserMessage(content))
}

// AppendPlaceholder appends an empty assistant entry to be streamed into.
// It returns nil if an entry is already in flight.
func (c *Conversation) AppendPlaceholder() *Message {
	if c.InFlight() != nil {
		return nil
	}
	return c.append(NewPlaceholder())
}

func (c *Conversation) append(m *Message) *Message {
	c.messages = append(c.messages, m)
	c.UpdatedAt = time.Now()
	return m
}

// Last returns the most recent message, or nil if empty.
func (c *Conversation) Last() *Message {
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

// InFlight returns the trailing unfrozen assistant entry, or nil.
func (c *Conversation) InFlight() *Message {
	last := c.Last()
	if last == nil || !last.InFlight() {
		return nil
	}
	return last
}

// Overwrite replaces the in-flight entry's content. It reports false when
// nothing is in flight.
func (c *Conversation) Overwrite(content string) bool {
	m := c.InFlight()
	if m == nil {
		return false
	}
	m.Content = content
	c.UpdatedAt = time.Now()
	return true
}

// Freeze writes the final content into the in-flight entry and freezes it.
func (c *Conversation) Freeze(content string, stats *Stats) bool {
	m := c.InFlight()
	if m == nil {
		return false
	}
	m.Content = content
	m.Stats = stats
	m.Frozen = true
	c.UpdatedAt = time.Now()
	return true
}

// Fail freezes the in-flight entry with an error text.
func (c *Conversation) Fail(content string) bool {
	m := c.InFlight()
	if m == nil {
		return false
	}
	m.Content = content
	m.Failed = true
	m.Frozen = true
	c.UpdatedAt = time.Now()
	return true
}

// Clear removes all messages.
func (c *Conversation) Clear() {
	c.messages = nil
	c.UpdatedAt = time.Now()
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.messages) == 0
}

// =============================================================================
// READERS
// =============================================================================

// Snapshot returns value copies of every message.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = *m
		out[i].Stats = m.Stats.Clone()
	}
	return out
}

// History converts the frozen messages to engine messages in order. The
// in-flight placeholder is never included. A failed reply is dropped along
// with the user prompt it answered, so roles keep alternating.
func (c *Conversation) History() []engine.Message {
	out := make([]engine.Message, 0, len(c.messages))
	for _, m := range c.messages {
		if m.Failed {
			if n := len(out); n > 0 && out[n-1].Role == engine.RoleUser {
				out = out[:n-1]
			}
			continue
		}
		if !m.Frozen {
			continue
		}
		out = append(out, engine.Message{Role: toEngineRole(m.Role), Content: m.Content})
	}
	return out
}

// Title returns a preview of the first user message.
func (c *Conversation) Title() string {
	for _, m := range c.messages {
		if m.Role == RoleUser {
			return m.Preview(50)
		}
	}
	return "New Conversation"
}

func toEngineRole(r Role) engine.Role {
	if r == RoleAssistant {
		return engine.RoleAssistant
	}
	return engine.RoleUser
}
