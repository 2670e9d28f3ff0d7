// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Frozen is set once an assistant reply is final. User messages are
	// frozen on creation.
	Frozen bool `json:"frozen"`

	// Failed marks an assistant entry whose content is an error marker.
	Failed bool `json:"failed,omitempty"`

	Stats *Stats `json:"stats,omitempty"`
}

// NewUserMessage creates a frozen user message.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        newID(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
		Frozen:    true,
	}
}

// NewPlaceholder creates an empty, unfrozen assistant message.
func NewPlaceholder() *Message {
	return &Message{
		ID:        newID(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}

// InFlight reports whether the message is an assistant reply still streaming.
func (m *Message) InFlight() bool {
	return m.Role == RoleAssistant && !m.Frozen
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// FormatStats returns a one-line summary of the reply timing, or "".
func (m *Message) FormatStats() string {
	if m.Role != RoleAssistant || m.Stats == nil {
		return ""
	}
	return m.Stats.Format()
}

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Stats holds timing information for one streamed reply.
type Stats struct {
	Started    time.Time     `json:"started"`
	FirstChunk time.Duration `json:"first_chunk_ns,omitempty"`
	Total      time.Duration `json:"total_ns,omitempty"`
	Chunks     int           `json:"chunks"`
}

// NewStats starts the clock.
func NewStats() *Stats {
	return &Stats{Started: time.Now()}
}

// RecordChunk counts a chunk and remembers when the first one arrived.
func (s *Stats) RecordChunk() {
	if s.Chunks == 0 {
		s.FirstChunk = time.Since(s.Started)
	}
	s.Chunks++
}

// Finish stops the clock.
func (s *Stats) Finish() {
	s.Total = time.Since(s.Started)
}

// ChunksPerSecond returns the streaming rate, or 0 before Finish.
func (s *Stats) ChunksPerSecond() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Chunks) / s.Total.Seconds()
}

// Format returns e.g. "2.5s | 128 chunks | 51.2 chunk/s | first 234ms".
func (s *Stats) Format() string {
	return fmt.Sprintf("%s | %d chunks | %.1f chunk/s | first %dms",
		formatDuration(s.Total), s.Chunks, s.ChunksPerSecond(), s.FirstChunk.Milliseconds())
}

// Clone returns a copy, or nil.
func (s *Stats) Clone() *Stats {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func newID() string {
	return "msg_" + uuid.NewString()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
