// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/epoch"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

// ErrorMarker prefixes the content of an assistant entry whose generation failed.
const ErrorMarker = "Error: "

// Status of the controller.
type Status int

const (
	StatusIdle Status = iota
	StatusStreaming
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusStreaming {
		return "Streaming"
	}
	return "Idle"
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns a conversation and the generation running against it.
type Controller struct {
	mu        sync.Mutex
	conv      *model.Conversation
	gen       epoch.Counter
	streaming bool

	wg       sync.WaitGroup
	logger   *log.Logger
	metrics  *telemetry.Metrics
	onChange func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records generation outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithOnChange registers a hook called after every visible state change.
// It runs outside the controller's lock and may read snapshots.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

// New creates a controller with an empty conversation.
func New(opts ...Option) *Controller {
	c := &Controller{
		conv:   model.NewConversation(),
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Submit starts a generation for prompt against handle. It returns false and
// changes nothing when the trimmed prompt is empty, handle is nil, or a
// generation is already streaming.
func (c *Controller) Submit(ctx context.Context, prompt string, handle engine.Handle, system string, params Params) bool {
	text := strings.TrimSpace(prompt)
	if text == "" || handle == nil {
		return false
	}

	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return false
	}
	tok := c.gen.Advance()
	c.conv.AppendUser(text)
	req := engine.Request{
		SystemPrompt: system,
		Messages:     c.conv.History(),
		Temperature:  params.Temperature,
		MaxTokens:    params.MaxTokens,
	}
	c.conv.AppendPlaceholder()
	c.streaming = true
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Printf("GENERATION_START | epoch=%s model=%s messages=%d temperature=%.2f max_tokens=%d",
		tok, handle.ModelID(), len(req.Messages), req.Temperature, req.MaxTokens)
	c.notify()

	go c.generate(ctx, tok, handle, req)
	return true
}

// Reset discards the conversation and invalidates any in-flight generation.
func (c *Controller) Reset() {
	c.mu.Lock()
	tok := c.gen.Advance()
	c.conv = model.NewConversation()
	c.streaming = false
	c.mu.Unlock()

	c.logger.Printf("SESSION_RESET | epoch=%s", tok)
	c.notify()
}

// Wait blocks until every generation goroutine has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// =============================================================================
// READERS
// =============================================================================

// Snapshot returns a copy of the conversation.
func (c *Controller) Snapshot() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Snapshot()
}

// IsStreaming reports whether a generation owns the trailing entry.
func (c *Controller) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Status returns Idle or Streaming.
func (c *Controller) Status() Status {
	if c.IsStreaming() {
		return StatusStreaming
	}
	return StatusIdle
}

// Epoch returns the current generation epoch.
func (c *Controller) Epoch() epoch.Token {
	return c.gen.Current()
}

// ConversationID identifies the current conversation. It changes on Reset.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.ID
}

// Title returns a preview of the current conversation's first prompt.
func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Title()
}

// =============================================================================
// GENERATION
// =============================================================================

var errEmptyStream = errors.New("stream ended without a final message")

func (c *Controller) generate(ctx context.Context, tok epoch.Token, handle engine.Handle, req engine.Request) {
	defer c.wg.Done()

	stats := model.NewStats()
	stream, err := handle.StreamCompletion(ctx, req)
	if err != nil {
		c.fail(tok, fmt.Errorf("start stream: %w", err))
		return
	}
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.fail(tok, err)
			return
		}
		text.WriteString(chunk.Delta)
		stats.RecordChunk()

		aggregate := text.String()
		if !c.apply(tok, telemetry.KindChunk, func(conv *model.Conversation) {
			conv.Overwrite(aggregate)
		}) {
			return
		}
	}

	if !c.gen.IsCurrent(tok) {
		c.superseded(tok, telemetry.KindFinal)
		return
	}

	final, err := stream.Final(ctx)
	if err != nil {
		if errors.Is(err, engine.ErrNoFinalMessage) {
			err = errEmptyStream
		}
		c.fail(tok, fmt.Errorf("final message: %w", err))
		return
	}
	stats.Finish()

	if c.apply(tok, telemetry.KindFinal, func(conv *model.Conversation) {
		conv.Freeze(final, stats)
		c.streaming = false
	}) {
		c.metrics.GenerationSettled(telemetry.OutcomeOK)
		c.logger.Printf("GENERATION_DONE | epoch=%s chunks=%d duration=%s", tok, stats.Chunks, stats.Total)
	}
}

// apply runs fn under the lock if tok is still current.
func (c *Controller) apply(tok epoch.Token, kind string, fn func(*model.Conversation)) bool {
	c.mu.Lock()
	if !c.gen.IsCurrent(tok) {
		c.mu.Unlock()
		c.superseded(tok, kind)
		return false
	}
	fn(c.conv)
	c.mu.Unlock()
	c.notify()
	return true
}

func (c *Controller) fail(tok epoch.Token, err error) {
	if c.apply(tok, telemetry.KindGenErr, func(conv *model.Conversation) {
		conv.Fail(ErrorMarker + err.Error())
		c.streaming = false
	}) {
		c.metrics.GenerationSettled(telemetry.OutcomeError)
		c.logger.Printf("GENERATION_FAILED | epoch=%s error=%v", tok, err)
	}
}

func (c *Controller) superseded(tok epoch.Token, kind string) {
	c.metrics.Superseded(kind)
	c.metrics.GenerationSettled(telemetry.OutcomeSuperseded)
	c.logger.Printf("GENERATION_SUPERSEDED | epoch=%s current=%s stage=%s", tok, c.gen.Current(), kind)
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
