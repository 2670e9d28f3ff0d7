// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type.
func (e *ClientError) Is(target error) bool {
	var t *ClientError
	if errors.As(target, &t) {
		return t.Type == e.Type && t.Message == e.Message
	}
	return false
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
	ErrTypeCancelled
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL uses IPv4 explicitly to avoid localhost resolving to ::1.
const DefaultBaseURL = "http://127.0.0.1:11434"

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	BaseURL string

	// Timeout for short requests such as health checks and listings (default: 30s).
	// Pulls, loads and chat streams are bounded by their context only.
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client

	// SECURITY: plain HTTP; Ollama listens on the loopback interface
	streamClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		config:       &cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the API base URL in use.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	resp, err := c.send(ctx, c.httpClient, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)
	return nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.send(ctx, c.httpClient, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return result.Models, nil
}

// InstalledTags returns the installed tags. Tags without an explicit version
// are also listed under their ":latest" alias and vice versa.
func (c *Client) InstalledTags(ctx context.Context) (map[string]bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]bool, len(models)*2)
	for _, m := range models {
		tags[m.Name] = true
		if base, ok := strings.CutSuffix(m.Name, ":latest"); ok {
			tags[base] = true
		} else if !strings.Contains(m.Name, ":") {
			tags[m.Name+":latest"] = true
		}
	}
	return tags, nil
}

// Pull downloads a model, calling fn for every progress line.
func (c *Client) Pull(ctx context.Context, model string, fn func(PullProgress)) error {
	resp, err := c.send(ctx, c.streamClient, http.MethodPost, "/api/pull", PullRequest{Model: model, Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	lines := newLineReader(resp.Body)
	for {
		var p PullProgress
		err := lines.decode(&p)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to read pull progress", Cause: err}
		}
		if p.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "pull failed: " + p.Error}
		}
		if fn != nil {
			fn(p)
		}
		if p.Status == "success" {
			return nil
		}
	}
}

// Warm loads a model into memory without generating, keeping it resident
// for keepAlive after the last request.
func (c *Client) Warm(ctx context.Context, model string, keepAliveFor time.Duration, opts *Options) error {
	req := GenerateRequest{Model: model, Stream: false, Options: opts}
	if keepAliveFor > 0 {
		req.KeepAlive = keepAlive(keepAliveFor)
	}
	resp, err := c.send(ctx, c.streamClient, http.MethodPost, "/api/generate", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// Unload evicts a model from memory.
func (c *Client) Unload(ctx context.Context, model string) error {
	req := GenerateRequest{Model: model, Stream: false, KeepAlive: keepAlive(0)}
	resp, err := c.send(ctx, c.httpClient, http.MethodPost, "/api/generate", req)
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)
	return nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream opens a streaming chat request. The caller must Close the
// returned reader.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (*StreamReader, error) {
	req.Stream = true
	resp, err := c.send(ctx, c.streamClient, http.MethodPost, "/api/chat", req)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(resp.Body), nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// send performs a request and maps transport and status failures to
// ClientErrors. On success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return nil, &ClientError{Type: ErrTypeCancelled, Message: "request cancelled", Cause: context.Canceled}
		case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
			return nil, ErrTimeout
		default:
			return nil, &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
		}
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer drainAndClose(resp.Body)

	msg := resp.Status
	var ollamaErr OllamaError
	if err := json.NewDecoder(resp.Body).Decode(&ollamaErr); err == nil && ollamaErr.Error != "" {
		msg = ollamaErr.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &ClientError{Type: ErrTypeModelNotFound, Message: ErrModelNotFound.Message, Cause: errors.New(msg)}
	}
	return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: method + " " + path + " failed", Cause: errors.New(msg)}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	return hasType(err, ErrTypeModelNotFound)
}

// IsNotRunning checks if an error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	return hasType(err, ErrTypeNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return hasType(err, ErrTypeTimeout)
}

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}

func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}
