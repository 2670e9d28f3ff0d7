// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates rigchat configuration.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGCHAT_*)
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - Built-in defaults
//
// # Example
//
//	default_model = "llama3.2-3b"
//
//	[ollama]
//	url = "http://127.0.0.1:11434"
//
//	[generation]
//	system_prompt = "You are a terse assistant."
//	temperature = 0.2
//	max_tokens = 1024
//
//	[catalog]
//	backends = ["ollama"]
//	max_size_gb = 5
//
//	[[catalog.models]]
//	id = "gemma2-2b"
//	name = "Gemma 2 2B"
//	recipe = { backend = "ollama", model = "gemma2:2b", pull = true, keep_alive = "10m" }
//
// Validation failures are reported together as ValidateErrors.
//
// # Live Reload
//
// Watch reloads the file when it changes on disk. Interactive sessions use it
// to pick up [generation] edits without a restart.
package config
