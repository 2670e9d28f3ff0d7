// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/engine"
)

// DefaultBaseURL is where local OpenAI-compatible servers usually listen.
const DefaultBaseURL = "http://127.0.0.1:8080/v1"

// Progress labels reported by CreateModel.
const (
	LabelConnecting = "connecting"
	LabelReady      = "ready"
)

// ErrModelNotListed is returned when the server does not advertise the model.
var ErrModelNotListed = errors.New("model not listed by server")

// Config holds connection settings.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds model listing. Streams are bounded by their context.
	Timeout time.Duration
}

// =============================================================================
// BACKEND
// =============================================================================

// Backend implements engine.Engine over the OpenAI API.
type Backend struct {
	cfg    Config
	logger *log.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a backend.
func New(cfg Config, opts ...Option) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	b := &Backend{
		cfg:     cfg,
		logger:  log.New(io.Discard, "", 0),
		clients: make(map[string]*openai.Client),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// clientFor returns a client for baseURL, or the configured default.
func (b *Backend) clientFor(baseURL string) *openai.Client {
	if baseURL == "" {
		baseURL = b.cfg.BaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[baseURL]; ok {
		return c
	}
	cfg := openai.DefaultConfig(b.cfg.APIKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{}
	c := openai.NewClientWithConfig(cfg)
	b.clients[baseURL] = c
	return c
}

// ListModels returns the model ids advertised at baseURL.
func (b *Backend) ListModels(ctx context.Context, baseURL string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	list, err := b.clientFor(baseURL).ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	ids := make([]string, len(list.Models))
	for i, m := range list.Models {
		ids[i] = m.ID
	}
	return ids, nil
}

// CreateModel implements engine.Engine.
func (b *Backend) CreateModel(ctx context.Context, desc catalog.Descriptor, onProgress engine.ProgressFunc) (engine.Handle, error) {
	if onProgress == nil {
		onProgress = func(engine.Progress) {}
	}
	onProgress(engine.Indeterminate(LabelConnecting))

	ids, err := b.ListModels(ctx, desc.Recipe.BaseURL)
	if err != nil {
		return nil, err
	}
	found := false
	for _, id := range ids {
		if id == desc.Recipe.Model {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrModelNotListed, desc.Recipe.Model, strings.Join(ids, ", "))
	}

	b.logger.Printf("OPENAI_MODEL_READY | model=%s remote=%s", desc.ID, desc.Recipe.Model)
	onProgress(engine.NewProgress(1, LabelReady))
	return &handle{client: b.clientFor(desc.Recipe.BaseURL), desc: desc}, nil
}

// =============================================================================
// HANDLE
// =============================================================================

type handle struct {
	client *openai.Client
	desc   catalog.Descriptor

	mu     sync.Mutex
	final  string
	ready  bool
	closed bool
}

func (h *handle) ModelID() string { return h.desc.ID }

func (h *handle) StreamCompletion(ctx context.Context, req engine.Request) (engine.Stream, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return nil, engine.ErrClosed
	}

	msgs := req.WithSystem()
	chat := openai.ChatCompletionRequest{
		Model:       h.desc.Recipe.Model,
		Messages:    make([]openai.ChatCompletionMessage, len(msgs)),
		Temperature: temperature(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}
	for i, m := range msgs {
		chat.Messages[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	stream, err := h.client.CreateChatCompletionStream(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return &sseStream{handle: h, stream: stream}, nil
}

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

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return engine.ErrClosed
	}
	h.closed = true
	return nil
}

func (h *handle) finish(text string) {
	h.mu.Lock()
	h.final = text
	h.ready = true
	h.mu.Unlock()
}

// temperature maps 0 to the smallest positive float32, since the client
// omits a zero temperature and servers then apply their own default.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// =============================================================================
// STREAM
// =============================================================================

type sseStream struct {
	handle *handle
	stream *openai.ChatCompletionStream
	text   strings.Builder

	mu    sync.Mutex
	ended bool
	final *string
}

func (s *sseStream) Next() (engine.Chunk, error) {
	for {
		s.mu.Lock()
		ended := s.ended
		s.mu.Unlock()
		if ended {
			return engine.Chunk{}, io.EOF
		}
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			text := s.text.String()
			s.mu.Lock()
			s.ended = true
			s.final = &text
			s.mu.Unlock()
			s.handle.finish(text)
			return engine.Chunk{}, io.EOF
		}
		if err != nil {
			return engine.Chunk{}, fmt.Errorf("chat stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		s.text.WriteString(delta)
		return engine.Chunk{Delta: delta}, nil
	}
}

// Final returns the concatenated deltas once this stream has ended.
func (s *sseStream) Final(ctx context.Context) (string, error) {
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

func (s *sseStream) Close() error {
	s.stream.Close()
	return nil
}
