// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/epoch"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

var (
	// ErrUnknownModel is returned by SelectModel for ids not in the catalog.
	ErrUnknownModel = errors.New("unknown model")

	// ErrClosed is returned by SelectModel after Close.
	ErrClosed = errors.New("lifecycle manager closed")

	// ErrNoHandle is returned by RequireHandle while no model is ready.
	ErrNoHandle = errors.New("no model ready")
)

// Resetter is the part of the session controller the manager drives.
type Resetter interface {
	Reset()
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the active model handle.
type Manager struct {
	catalog *catalog.Catalog
	engine  engine.Engine

	mu       sync.Mutex
	loads    epoch.Counter
	modelID  string
	status   Status
	progress *engine.Progress
	err      string
	handle   engine.Handle
	closed   bool

	wg       sync.WaitGroup
	session  Resetter
	logger   *log.Logger
	metrics  *telemetry.Metrics
	onChange func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithSession attaches the session that is reset on every selection.
func WithSession(r Resetter) Option {
	return func(m *Manager) { m.session = r }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records load outcomes.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithOnChange registers a hook called after every visible state change.
// It runs outside the manager's lock.
func WithOnChange(fn func()) Option {
	return func(m *Manager) { m.onChange = fn }
}

// New creates an idle manager.
func New(cat *catalog.Catalog, eng engine.Engine, opts ...Option) *Manager {
	m := &Manager{
		catalog: cat,
		engine:  eng,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// OPERATIONS
// =============================================================================

// SelectModel starts loading id and returns the epoch of the new attempt.
// The session is reset first, then the previous handle is released in the
// background. Load results arrive asynchronously; observe them with State or
// the change hook. Wait covers both.
func (m *Manager) SelectModel(ctx context.Context, id string) (epoch.Token, error) {
	desc, ok := m.catalog.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	tok := m.loads.Advance()
	prev := m.handle
	m.handle = nil
	m.modelID = desc.ID
	m.status = StatusLoading
	m.progress = nil
	m.err = ""
	m.wg.Add(1)
	if prev != nil {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	m.logger.Printf("MODEL_SELECT | epoch=%s model=%s backend=%s", tok, desc.ID, desc.Recipe.Backend)
	m.resetSession()
	m.notify()

	if prev != nil {
		// Unloading can take a server round trip.
		go func() {
			defer m.wg.Done()
			m.release(prev, "replaced")
		}()
	}
	go m.load(ctx, tok, desc)
	return tok, nil
}

// ActiveHandle returns the published handle, or nil.
func (m *Manager) ActiveHandle() engine.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// RequireHandle is ActiveHandle for callers that want a reason when there
// is nothing to borrow.
func (m *Manager) RequireHandle() (engine.Handle, error) {
	if h := m.ActiveHandle(); h != nil {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoHandle, m.State().Summary())
}

// State returns a snapshot of the observable state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := State{
		ModelID: m.modelID,
		Epoch:   m.loads.Current(),
		Status:  m.status,
		Err:     m.err,
	}
	if m.progress != nil {
		p := *m.progress
		s.Progress = &p
	}
	return s
}

// Catalog returns the catalog models are selected from.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

// Wait blocks until every load and release goroutine has settled.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close supersedes any pending load, waits for it and releases the active
// handle. The manager cannot be used afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.loads.Advance()
	h := m.handle
	m.handle = nil
	m.status = StatusIdle
	m.progress = nil
	m.mu.Unlock()

	m.wg.Wait()
	if h == nil {
		return nil
	}
	return h.Close()
}

// =============================================================================
// LOADING
// =============================================================================

func (m *Manager) load(ctx context.Context, tok epoch.Token, desc catalog.Descriptor) {
	defer m.wg.Done()
	start := time.Now()

	h, err := m.engine.CreateModel(ctx, desc, func(p engine.Progress) {
		m.applyProgress(tok, p)
	})
	elapsed := time.Since(start)

	if err != nil {
		m.applyFailure(tok, desc, err, elapsed)
		return
	}

	if !m.loads.IsCurrent(tok) {
		m.discard(tok, h, elapsed)
		return
	}
	m.resetSession()

	m.mu.Lock()
	if !m.loads.IsCurrent(tok) {
		m.mu.Unlock()
		m.discard(tok, h, elapsed)
		return
	}
	m.handle = h
	m.status = StatusReady
	m.err = ""
	m.mu.Unlock()

	m.metrics.LoadSettled(telemetry.OutcomeOK, elapsed)
	m.logger.Printf("MODEL_READY | epoch=%s model=%s duration=%s", tok, desc.ID, elapsed.Round(time.Millisecond))
	m.notify()
}

func (m *Manager) applyProgress(tok epoch.Token, p engine.Progress) {
	m.mu.Lock()
	if !m.loads.IsCurrent(tok) || m.status != StatusLoading {
		m.mu.Unlock()
		m.metrics.Superseded(telemetry.KindProgress)
		return
	}
	m.progress = &p
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) applyFailure(tok epoch.Token, desc catalog.Descriptor, err error, elapsed time.Duration) {
	m.mu.Lock()
	if !m.loads.IsCurrent(tok) {
		m.mu.Unlock()
		m.metrics.Superseded(telemetry.KindLoadErr)
		m.metrics.LoadSettled(telemetry.OutcomeSuperseded, elapsed)
		m.logger.Printf("MODEL_LOAD_SUPERSEDED | epoch=%s model=%s error=%v", tok, desc.ID, err)
		return
	}
	m.handle = nil
	m.status = StatusFailed
	m.err = err.Error()
	m.mu.Unlock()

	m.metrics.LoadSettled(telemetry.OutcomeError, elapsed)
	m.logger.Printf("MODEL_LOAD_FAILED | epoch=%s model=%s error=%v", tok, desc.ID, err)
	m.notify()
}

// discard releases a handle whose load was superseded.
func (m *Manager) discard(tok epoch.Token, h engine.Handle, elapsed time.Duration) {
	m.metrics.Superseded(telemetry.KindHandle)
	m.metrics.LoadSettled(telemetry.OutcomeSuperseded, elapsed)
	m.logger.Printf("MODEL_LOAD_SUPERSEDED | epoch=%s model=%s current=%s", tok, h.ModelID(), m.loads.Current())
	m.release(h, "superseded")
}

func (m *Manager) release(h engine.Handle, reason string) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		m.logger.Printf("MODEL_RELEASE_FAILED | model=%s reason=%s error=%v", h.ModelID(), reason, err)
	}
}

func (m *Manager) resetSession() {
	if m.session != nil {
		m.session.Reset()
	}
}

func (m *Manager) notify() {
	if m.onChange != nil {
		m.onChange()
	}
}
