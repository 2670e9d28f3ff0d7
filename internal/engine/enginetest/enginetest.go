// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package enginetest provides a scripted engine for tests.
//
// Loads and turns are scripted per model id and consumed in order; the last
// script repeats once the queue runs dry. Gates are channels the fake
// receives from before each step, which lets a test hold a load or a stream
// at an exact point and interleave other calls. A closed gate never blocks.
package enginetest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
)

// =============================================================================
// SCRIPTS
// =============================================================================

// Load scripts one CreateModel call.
type Load struct {
	Progress []engine.Progress // reported in order
	Gate     chan struct{}     // received before each progress report and before settling
	Err      error             // CreateModel fails with this
	Turns    []Turn            // handed to the created handle
}

// Turn scripts one StreamCompletion call.
type Turn struct {
	SetupErr  error         // StreamCompletion fails with this
	Chunks    []string      // deltas, in order
	Gate      chan struct{} // received before each chunk and before EOF
	StreamErr error         // returned by Next after the chunks instead of io.EOF
	Final     string        // canonical text returned by Final
	FinalErr  error
	FinalGate chan struct{} // received before Final returns
	OnFinal   func()        // called when Final starts
}

// Text returns a turn that streams the running pieces and finishes with final.
func Text(final string, chunks ...string) Turn {
	return Turn{Chunks: chunks, Final: final}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is a scripted engine.Engine.
type Engine struct {
	mu      sync.Mutex
	loads   map[string][]Load
	calls   map[string]int
	handles []*Handle
}

// New creates an empty engine. Unscripted ids load instantly with no turns.
func New() *Engine {
	return &Engine{
		loads: make(map[string][]Load),
		calls: make(map[string]int),
	}
}

// Script queues load scripts for a model id and returns the engine for chaining.
func (e *Engine) Script(id string, loads ...Load) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads[id] = append(e.loads[id], loads...)
	return e
}

// CreateModel implements engine.Engine.
func (e *Engine) CreateModel(ctx context.Context, desc catalog.Descriptor, onProgress engine.ProgressFunc) (engine.Handle, error) {
	e.mu.Lock()
	n := e.calls[desc.ID]
	e.calls[desc.ID] = n + 1
	load := pick(e.loads[desc.ID], n)
	e.mu.Unlock()

	for _, p := range load.Progress {
		if err := wait(ctx, load.Gate); err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
	if err := wait(ctx, load.Gate); err != nil {
		return nil, err
	}
	if load.Err != nil {
		return nil, load.Err
	}

	h := &Handle{id: desc.ID, turns: load.Turns}
	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()
	return h, nil
}

// Calls returns how many times CreateModel ran for id.
func (e *Engine) Calls(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[id]
}

// Handles returns every handle created so far, in creation order.
func (e *Engine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Handle(nil), e.handles...)
}

func pick[T any](queue []T, n int) T {
	var zero T
	if len(queue) == 0 {
		return zero
	}
	if n >= len(queue) {
		n = len(queue) - 1
	}
	return queue[n]
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle is a scripted engine.Handle.
type Handle struct {
	id string

	mu       sync.Mutex
	turns    []Turn
	next     int
	finished *Stream
	requests []engine.Request
	streams  []*Stream
	closed   bool
	closes   int
}

// NewHandle creates a ready handle outside of any engine.
func NewHandle(id string, turns ...Turn) *Handle {
	return &Handle{id: id, turns: turns}
}

// ModelID implements engine.Handle.
func (h *Handle) ModelID() string { return h.id }

// StreamCompletion implements engine.Handle.
func (h *Handle) StreamCompletion(ctx context.Context, req engine.Request) (engine.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, engine.ErrClosed
	}
	h.requests = append(h.requests, req)
	turn := pick(h.turns, h.next)
	h.next++
	if turn.SetupErr != nil {
		return nil, turn.SetupErr
	}
	s := &Stream{ctx: ctx, handle: h, turn: turn}
	h.streams = append(h.streams, s)
	return s, nil
}

// FinalMessage implements engine.Handle using the last stream to finish.
func (h *Handle) FinalMessage(ctx context.Context) (string, error) {
	h.mu.Lock()
	s := h.finished
	h.mu.Unlock()
	if s == nil {
		return "", engine.ErrNoFinalMessage
	}
	return s.Final(ctx)
}

// Close implements engine.Handle.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	if h.closed {
		return engine.ErrClosed
	}
	h.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// CloseCalls returns how many times Close ran.
func (h *Handle) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// Requests returns the requests received so far.
func (h *Handle) Requests() []engine.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]engine.Request(nil), h.requests...)
}

// Streams returns the streams opened so far.
func (h *Handle) Streams() []*Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Stream(nil), h.streams...)
}

func (h *Handle) String() string {
	return fmt.Sprintf("enginetest.Handle(%s)", h.id)
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is a scripted engine.Stream.
type Stream struct {
	ctx    context.Context
	handle *Handle
	turn   Turn

	mu     sync.Mutex
	pos    int
	done   bool
	closed bool
}

// Next implements engine.Stream.
func (s *Stream) Next() (engine.Chunk, error) {
	if err := wait(s.ctx, s.turn.Gate); err != nil {
		return engine.Chunk{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.Chunk{}, io.ErrClosedPipe
	}
	if s.pos < len(s.turn.Chunks) {
		c := s.turn.Chunks[s.pos]
		s.pos++
		return engine.Chunk{Delta: c}, nil
	}
	if s.turn.StreamErr != nil {
		return engine.Chunk{}, s.turn.StreamErr
	}
	if !s.done {
		s.done = true
		s.handle.mu.Lock()
		s.handle.finished = s
		s.handle.mu.Unlock()
	}
	return engine.Chunk{}, io.EOF
}

// Final implements engine.Stream with this stream's own turn.
func (s *Stream) Final(ctx context.Context) (string, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if !done {
		return "", engine.ErrNoFinalMessage
	}
	if s.turn.OnFinal != nil {
		s.turn.OnFinal()
	}
	if err := wait(ctx, s.turn.FinalGate); err != nil {
		return "", err
	}
	if s.turn.FinalErr != nil {
		return "", s.turn.FinalErr
	}
	return s.turn.Final, nil
}

// Close implements engine.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done reports whether Next has returned io.EOF.
func (s *Stream) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Consumed returns how many chunks were read.
func (s *Stream) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
