// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the composition root shared by the TUI and the REPL.
//
// New builds the catalog from configuration, registers the Ollama and
// OpenAI-compatible backends with a router, and connects the lifecycle
// manager to the session controller so that every model selection clears
// the conversation. Front-ends call Select, Send, Reset and
// SetSystemPrompt, register one OnChange listener, and render Snapshot.
package app
