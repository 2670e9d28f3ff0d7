// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
)

// Progress labels reported by CreateModel.
const (
	LabelConnecting = "connecting to Ollama"
	LabelPulling    = "pulling"
	LabelLoading    = "loading into memory"
	LabelReady      = "ready"
)

// DefaultProgressInterval is the minimum spacing of pull progress reports.
const DefaultProgressInterval = 100 * time.Millisecond

// unloadTimeout bounds the best-effort unload issued when the last handle closes.
const unloadTimeout = 10 * time.Second

// =============================================================================
// BACKEND
// =============================================================================

// Backend serves catalog models through an Ollama server. It implements
// engine.Engine.
type Backend struct {
	client   *Client
	logger   *log.Logger
	interval time.Duration

	group singleflight.Group

	mu   sync.Mutex
	refs map[string]int
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) BackendOption {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithProgressInterval sets the minimum spacing of pull progress reports.
func WithProgressInterval(d time.Duration) BackendOption {
	return func(b *Backend) { b.interval = d }
}

// NewBackend creates a backend using client.
func NewBackend(client *Client, opts ...BackendOption) *Backend {
	b := &Backend{
		client:   client,
		logger:   log.New(io.Discard, "", 0),
		interval: DefaultProgressInterval,
		refs:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Client returns the underlying API client.
func (b *Backend) Client() *Client {
	return b.client
}

// CreateModel implements engine.Engine. It pulls the model if the recipe
// allows and it is missing, then loads it into memory. Concurrent creations
// of the same tag share one pull and load; only the first caller receives
// progress reports. A caller whose ctx ends returns ctx.Err() without
// cancelling the load the others are waiting on.
func (b *Backend) CreateModel(ctx context.Context, desc catalog.Descriptor, onProgress engine.ProgressFunc) (engine.Handle, error) {
	if onProgress == nil {
		onProgress = func(engine.Progress) {}
	}
	tag := desc.Recipe.Model
	if tag == "" {
		return nil, fmt.Errorf("model %s: recipe has no Ollama tag", desc.ID)
	}

	onProgress(engine.Indeterminate(LabelConnecting))
	// The shared load runs detached from any one caller; each caller stops
	// waiting on its own ctx.
	ch := b.group.DoChan(tag, func() (any, error) {
		return nil, b.prepare(context.WithoutCancel(ctx), desc, onProgress)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		b.logger.Printf("OLLAMA_LOAD_SHARED | model=%s tag=%s", desc.ID, tag)
	}

	b.mu.Lock()
	b.refs[tag]++
	b.mu.Unlock()

	onProgress(engine.NewProgress(1, LabelReady))
	return newHandle(b, desc), nil
}

// prepare makes tag resident: pull when missing, then warm.
func (b *Backend) prepare(ctx context.Context, desc catalog.Descriptor, onProgress engine.ProgressFunc) error {
	tag := desc.Recipe.Model

	installed, err := b.client.InstalledTags(ctx)
	if err != nil {
		return err
	}
	if !installed[tag] {
		if !desc.Recipe.Pull {
			return &ClientError{Type: ErrTypeModelNotFound, Message: ErrModelNotFound.Message,
				Cause: fmt.Errorf("%s is not installed (run: ollama pull %s)", tag, tag)}
		}
		start := time.Now()
		b.logger.Printf("OLLAMA_PULL_START | model=%s tag=%s", desc.ID, tag)
		if err := b.pull(ctx, tag, onProgress); err != nil {
			b.logger.Printf("OLLAMA_PULL_FAILED | model=%s tag=%s error=%v", desc.ID, tag, err)
			return err
		}
		b.logger.Printf("OLLAMA_PULL_DONE | model=%s tag=%s duration=%s", desc.ID, tag, time.Since(start).Round(time.Millisecond))
	}

	onProgress(engine.Indeterminate(LabelLoading))
	var opts *Options
	if desc.Recipe.ContextSize > 0 {
		opts = &Options{NumCtx: desc.Recipe.ContextSize}
	}
	start := time.Now()
	if err := b.client.Warm(ctx, tag, desc.Recipe.KeepAlive, opts); err != nil {
		return err
	}
	b.logger.Printf("OLLAMA_WARM | model=%s tag=%s duration=%s", desc.ID, tag, time.Since(start).Round(time.Millisecond))
	return nil
}

// pull downloads tag, reporting throttled progress. Status changes are
// always reported.
func (b *Backend) pull(ctx context.Context, tag string, onProgress engine.ProgressFunc) error {
	limiter := rate.NewLimiter(rate.Every(b.interval), 1)
	lastStatus := ""
	return b.client.Pull(ctx, tag, func(p PullProgress) {
		changed := p.Status != lastStatus
		lastStatus = p.Status
		if !changed && !limiter.Allow() {
			return
		}
		label := LabelPulling
		if p.Status != "" {
			label = p.Status
		}
		if f := p.Fraction(); f >= 0 {
			onProgress(engine.NewProgress(f, label))
		} else {
			onProgress(engine.Indeterminate(label))
		}
	})
}

// release drops one reference to tag and unloads it when none remain.
func (b *Backend) release(tag string) error {
	b.mu.Lock()
	b.refs[tag]--
	remaining := b.refs[tag]
	if remaining <= 0 {
		delete(b.refs, tag)
	}
	b.mu.Unlock()

	if remaining > 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), unloadTimeout)
	defer cancel()
	if err := b.client.Unload(ctx, tag); err != nil {
		b.logger.Printf("OLLAMA_UNLOAD_FAILED | tag=%s error=%v", tag, err)
		return err
	}
	b.logger.Printf("OLLAMA_UNLOAD | tag=%s", tag)
	return nil
}

// Refs returns the number of open handles for tag.
func (b *Backend) Refs(tag string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs[tag]
}
