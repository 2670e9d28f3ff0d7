// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"io"
	"sync"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
)

// =============================================================================
// HANDLE
// =============================================================================

// handle is a loaded Ollama model.
type handle struct {
	backend *Backend
	desc    catalog.Descriptor

	mu     sync.Mutex
	final  string
	ready  bool
	closed bool
}

func newHandle(b *Backend, desc catalog.Descriptor) *handle {
	return &handle{backend: b, desc: desc}
}

func (h *handle) ModelID() string { return h.desc.ID }

// StreamCompletion opens a /api/chat stream.
func (h *handle) StreamCompletion(ctx context.Context, req engine.Request) (engine.Stream, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, engine.ErrClosed
	}

	temperature := req.Temperature
	chat := ChatRequest{
		Model:    h.desc.Recipe.Model,
		Messages: toMessages(req.WithSystem()),
		Options: &Options{
			Temperature: &temperature,
			NumPredict:  req.MaxTokens,
			NumCtx:      h.desc.Recipe.ContextSize,
		},
	}
	if h.desc.Recipe.KeepAlive > 0 {
		chat.KeepAlive = keepAlive(h.desc.Recipe.KeepAlive)
	}

	reader, err := h.backend.client.ChatStream(ctx, chat)
	if err != nil {
		return nil, err
	}
	return &chatStream{handle: h, reader: reader}, nil
}

// FinalMessage returns the full text of the last completed stream on this
// handle. The session reads each stream's own text through chatStream.Final.
func (h *handle) FinalMessage(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ready {
		return "", engine.ErrNoFinalMessage
	}
	return h.final, nil
}

// Close releases this handle's reference on the model.
func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return engine.ErrClosed
	}
	h.closed = true
	h.mu.Unlock()
	return h.backend.release(h.desc.Recipe.Model)
}

func (h *handle) finish(text string) {
	h.mu.Lock()
	h.final = text
	h.ready = true
	h.mu.Unlock()
}

func toMessages(msgs []engine.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// =============================================================================
// STREAM
// =============================================================================

// chatStream adapts a StreamReader to engine.Stream.
type chatStream struct {
	handle *handle
	reader *StreamReader

	mu    sync.Mutex
	ended bool
	final *string
}

func (s *chatStream) Next() (engine.Chunk, error) {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return engine.Chunk{}, io.EOF
	}
	chunk, err := s.reader.Next()
	if err != nil {
		if err == io.EOF {
			s.end(nil)
		}
		return engine.Chunk{}, err
	}
	if chunk.Done {
		text := s.reader.Accumulated()
		s.end(&text)
		s.handle.finish(text)
		if chunk.Content == "" {
			return engine.Chunk{}, io.EOF
		}
	}
	return engine.Chunk{Delta: chunk.Content}, nil
}

func (s *chatStream) end(final *string) {
	s.mu.Lock()
	s.ended = true
	s.final = final
	s.mu.Unlock()
}

// Final returns the text accumulated up to this stream's done line.
func (s *chatStream) Final(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		return "", engine.ErrNoFinalMessage
	}
	return *s.final, nil
}

func (s *chatStream) Close() error {
	return s.reader.Close()
}
