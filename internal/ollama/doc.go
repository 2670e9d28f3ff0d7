// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API
// and an engine backend built on it.
//
// # Key Types
//
//   - Client: HTTP client for /api/tags, /api/pull, /api/generate and /api/chat
//   - StreamReader: NDJSON chat stream reader with content accumulation
//   - Backend: engine.Engine that pulls, warms and reference-counts models
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: url})
//	backend := ollama.NewBackend(client, ollama.WithLogger(logger))
//	h, err := backend.CreateModel(ctx, desc, func(p engine.Progress) {
//	    fmt.Println(p.Label, p.Percent())
//	})
//
// A stream's Final is the full content accumulated up to its own done line;
// overlapping streams on one handle do not share it. Closing the last handle for a tag asks the server to unload it.
package ollama
