// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"io"
	"strings"

	"github.com/jeranaias/rigchat/internal/catalog"
)

// =============================================================================
// LOADING
// =============================================================================

// Progress is one load progress report. Fraction is nil when the backend
// cannot tell how far along it is.
type Progress struct {
	Fraction *float64
	Label    string
}

// NewProgress builds a report with a known fraction, clamped to [0,1].
func NewProgress(fraction float64, label string) Progress {
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	return Progress{Fraction: &fraction, Label: label}
}

// Indeterminate builds a report without a fraction.
func Indeterminate(label string) Progress {
	return Progress{Label: label}
}

// Percent returns the fraction as 0-100, or -1 when absent.
func (p Progress) Percent() int {
	if p.Fraction == nil {
		return -1
	}
	return int(*p.Fraction*100 + 0.5)
}

// ProgressFunc receives progress reports during CreateModel.
type ProgressFunc func(Progress)

// Engine creates model handles.
type Engine interface {
	// CreateModel brings the described model up. It may call onProgress any
	// number of times before returning, always from the calling goroutine.
	CreateModel(ctx context.Context, desc catalog.Descriptor, onProgress ProgressFunc) (Handle, error)
}

// =============================================================================
// GENERATION
// =============================================================================

// Role of a message sent to the model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of context.
type Message struct {
	Role    Role
	Content string
}

// Request describes one completion.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
}

// WithSystem returns the messages with the system prompt prepended when one
// is set. Backends without a dedicated system field use this.
func (r Request) WithSystem() []Message {
	out := make([]Message, 0, len(r.Messages)+1)
	if strings.TrimSpace(r.SystemPrompt) != "" {
		out = append(out, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	return append(out, r.Messages...)
}

// Chunk is one incremental piece of generated text.
type Chunk struct {
	Delta string
}

// Stream yields chunks in production order. Next returns io.EOF after the
// last chunk. Close releases the underlying connection and is safe to call
// more than once.
type Stream interface {
	Next() (Chunk, error)

	// Final returns the canonical text of this stream once Next has
	// returned io.EOF, or ErrNoFinalMessage before that. Other streams on
	// the same handle never affect it.
	Final(ctx context.Context) (string, error)

	Close() error
}

// Handle is a loaded model.
type Handle interface {
	// ModelID returns the catalog id this handle was created from.
	ModelID() string

	// StreamCompletion opens a completion stream.
	StreamCompletion(ctx context.Context, req Request) (Stream, error)

	// FinalMessage returns the canonical text of the most recently finished
	// stream on this handle. Callers holding a stream use Stream.Final.
	FinalMessage(ctx context.Context) (string, error)

	// Close releases the handle. Further calls return ErrClosed.
	Close() error
}

// Drain reads a stream to the end and returns the concatenated text.
func Drain(s Stream) (string, error) {
	defer s.Close()
	var b strings.Builder
	for {
		c, err := s.Next()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(c.Delta)
	}
}
