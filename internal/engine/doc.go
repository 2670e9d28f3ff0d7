// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine defines the capability surface the session core consumes
// from an inference backend.
//
// An Engine turns a catalog Descriptor into a Handle, reporting Progress
// while it works. A Handle streams completions and, once a stream has ended,
// reports the canonical final text of that completion. Handles must be
// closed when they are no longer needed; closing an abandoned handle is how
// a superseded load gives its resources back.
//
// # Key Types
//
//   - Engine: creates model handles (slow, reports progress)
//   - Handle: a ready model; streams completions
//   - Stream: lazy sequence of Chunks ending in io.EOF, then its own Final text
//   - Request: system prompt, history and sampling settings for one completion
//
// Concrete engines live in internal/ollama and internal/openaicompat;
// internal/engine/enginetest provides a scripted fake for tests.
package engine
