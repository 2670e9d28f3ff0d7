// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/rigchat/internal/backend"
	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/lifecycle"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/openaicompat"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

// ErrBusy is returned by Send while a reply is still streaming.
var ErrBusy = errors.New("a reply is still streaming")

// ErrEmptyPrompt is returned by Send for blank input.
var ErrEmptyPrompt = errors.New("empty prompt")

// =============================================================================
// APP
// =============================================================================

// App wires configuration, backends, the lifecycle manager and the session
// controller together. Front-ends talk to App only.
type App struct {
	Config  *config.Config
	Catalog *catalog.Catalog
	Models  *lifecycle.Manager
	Session *session.Controller
	Metrics *telemetry.Metrics
	Logger  *log.Logger

	ollama *ollama.Backend
	openai *openaicompat.Backend
	router *backend.Router

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	system   string
	params   session.Params
	listener func()

	server    *http.Server
	watcher   *config.Watcher
	closeOnce sync.Once
}

// Option configures New.
type Option func(*options)

type options struct {
	logger  *log.Logger
	catalog *catalog.Catalog
	engines map[string]engine.Engine
}

// WithLogger routes every component's event log to l.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCatalog replaces the catalog built from configuration.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithEngine registers e for backend name instead of the built-in client.
func WithEngine(name string, e engine.Engine) Option {
	return func(o *options) {
		if o.engines == nil {
			o.engines = make(map[string]engine.Engine)
		}
		o.engines[strings.ToLower(name)] = e
	}
}

// New builds an App from cfg. Nothing touches the network until a model is
// selected.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: log.New(io.Discard, "", 0)}
	for _, opt := range opts {
		opt(&o)
	}

	cat := o.catalog
	if cat == nil {
		var err error
		if cat, err = cfg.BuildCatalog(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Config:  cfg,
		Catalog: cat,
		Metrics: telemetry.NewMetrics(),
		Logger:  o.logger,
		ctx:     ctx,
		cancel:  cancel,
		system:  cfg.Generation.SystemPrompt,
		params:  cfg.Generation.Params(),
	}

	a.ollama = ollama.NewBackend(
		ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL: cfg.Ollama.URL,
			Timeout: cfg.Ollama.Timeout(),
		}),
		ollama.WithLogger(o.logger),
	)
	a.openai = openaicompat.New(openaicompat.Config{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Timeout: cfg.OpenAI.Timeout(),
	}, openaicompat.WithLogger(o.logger))

	a.router = backend.NewRouter().
		Register(catalog.BackendOllama, a.ollama).
		Register(catalog.BackendOpenAI, a.openai)
	for name, e := range o.engines {
		a.router.Register(name, e)
	}

	a.Session = session.New(
		session.WithLogger(o.logger),
		session.WithMetrics(a.Metrics),
		session.WithOnChange(a.changed),
	)
	a.Models = lifecycle.New(cat, a.router,
		lifecycle.WithSession(a.Session),
		lifecycle.WithLogger(o.logger),
		lifecycle.WithMetrics(a.Metrics),
		lifecycle.WithOnChange(a.changed),
	)

	o.logger.Printf("APP_START | models=%d backends=%s", cat.Len(), strings.Join(a.router.Backends(), ","))
	return a, nil
}

// OnChange sets the function called after every model or conversation
// change. It may be called from any goroutine and must not block.
func (a *App) OnChange(fn func()) {
	a.mu.Lock()
	a.listener = fn
	a.mu.Unlock()
}

func (a *App) changed() {
	a.mu.Lock()
	fn := a.listener
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// =============================================================================
// INTENTS
// =============================================================================

// Select starts loading the catalog model id. Loading continues in the
// background; the change hook reports progress.
func (a *App) Select(id string) error {
	_, err := a.Models.SelectModel(a.ctx, id)
	return err
}

// Send submits prompt to the active model.
func (a *App) Send(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	h, err := a.Models.RequireHandle()
	if err != nil {
		return err
	}
	system, params := a.Settings()
	if !a.Session.Submit(a.ctx, prompt, h, system, params) {
		return ErrBusy
	}
	return nil
}

// Reset clears the conversation.
func (a *App) Reset() {
	a.Session.Reset()
}

// SetSystemPrompt replaces the instruction set used by later submissions.
func (a *App) SetSystemPrompt(s string) {
	a.mu.Lock()
	a.system = strings.TrimSpace(s)
	a.mu.Unlock()
	a.Logger.Printf("SYSTEM_PROMPT_SET | chars=%d", len(s))
	a.changed()
}

// SetParams replaces the sampling parameters after validating them.
func (a *App) SetParams(p session.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.params = p
	a.mu.Unlock()
	a.changed()
	return nil
}

// Settings returns the current system prompt and sampling parameters.
func (a *App) Settings() (string, session.Params) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.system, a.params
}

// WatchConfig reloads path whenever it changes and applies its generation
// section through SetSystemPrompt and SetParams. adjust, when non-nil, runs
// on every reloaded config first, so command-line overrides keep winning.
// Model and backend settings need a restart.
func (a *App) WatchConfig(path string, adjust func(*config.Config), opts ...config.WatchOption) error {
	opts = append([]config.WatchOption{config.WithWatchLogger(a.Logger)}, opts...)
	w, err := config.Watch(path, func(cfg *config.Config) {
		if adjust != nil {
			adjust(cfg)
		}
		a.applyGeneration(cfg.Generation)
	}, opts...)
	if err != nil {
		return err
	}

	a.mu.Lock()
	prev := a.watcher
	a.watcher = w
	a.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

func (a *App) applyGeneration(g config.GenerationConfig) {
	system, params := a.Settings()
	if strings.TrimSpace(g.SystemPrompt) != system {
		a.SetSystemPrompt(g.SystemPrompt)
	}
	if p := g.Params(); p != params {
		if err := a.SetParams(p); err != nil {
			a.Logger.Printf("CONFIG_PARAMS_REJECTED | error=%v", err)
		}
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View is everything a front-end renders.
type View struct {
	Model        lifecycle.State
	Messages     []model.Message
	Streaming    bool
	SystemPrompt string
	Params       session.Params
}

// Snapshot gathers a consistent-enough View. Model state and conversation
// are read separately; each is internally consistent.
func (a *App) Snapshot() View {
	system, params := a.Settings()
	return View{
		Model:        a.Models.State(),
		Messages:     a.Session.Snapshot(),
		Streaming:    a.Session.IsStreaming(),
		SystemPrompt: system,
		Params:       params,
	}
}

// Descriptors lists the selectable models in catalog order.
func (a *App) Descriptors() []catalog.Descriptor {
	return a.Catalog.All()
}

// InstalledTags asks Ollama which tags are already downloaded.
func (a *App) InstalledTags(ctx context.Context) (map[string]bool, error) {
	return a.ollama.Client().InstalledTags(ctx)
}

// =============================================================================
// METRICS SERVER
// =============================================================================

// ServeMetrics exposes /metrics on the configured address. It is a no-op
// when metrics.addr is empty.
func (a *App) ServeMetrics() (string, error) {
	addr := a.Config.Metrics.Addr
	if addr == "" {
		return "", nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Printf("METRICS_SERVER_FAILED | error=%v", err)
		}
	}()
	a.Logger.Printf("METRICS_SERVER_START | addr=%s", ln.Addr())
	return ln.Addr().String(), nil
}

// =============================================================================
// SHUTDOWN
// =============================================================================

// Close invalidates in-flight work, releases the active model and stops the
// metrics server.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		w := a.watcher
		a.watcher = nil
		a.mu.Unlock()
		if w != nil {
			w.Close()
		}

		a.Session.Reset()
		a.cancel()
		err = a.Models.Close()
		a.Session.Wait()

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if serr := srv.Shutdown(ctx); serr != nil && err == nil {
				err = serr
			}
		}
		a.Logger.Printf("APP_STOP")
	})
	return err
}
