// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openaicompat serves catalog models from any server that speaks the
// OpenAI chat completions API (llama.cpp server, vLLM, LM Studio, LocalAI).
//
// Loading only verifies that the server lists the model; the server owns
// the weights. Streams use server-sent events and the final message is the
// concatenation of every delta received before [DONE].
package openaicompat
