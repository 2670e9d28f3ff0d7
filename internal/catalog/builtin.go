// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import "time"

// defaultKeepAlive keeps a warmed model resident between turns.
const defaultKeepAlive = 30 * time.Minute

// builtin is the static list shipped with the binary. Sizes are the
// approximate Q4_K_M download sizes reported by the Ollama library.
var builtin = []Descriptor{
	{
		ID:   "qwen2.5-1.5b",
		Name: "Qwen 2.5 1.5B Instruct",
		Recipe: Recipe{
			Backend:   BackendOllama,
			Model:     "qwen2.5:1.5b",
			Pull:      true,
			KeepAlive: defaultKeepAlive,
			SizeBytes: 986_000_000,
			Tags:      []string{"small", "multilingual"},
		},
	},
	{
		ID:   "llama3.2-3b",
		Name: "Llama 3.2 3B Instruct",
		Recipe: Recipe{
			Backend:   BackendOllama,
			Model:     "llama3.2:3b",
			Pull:      true,
			KeepAlive: defaultKeepAlive,
			SizeBytes: 2_000_000_000,
			Tags:      []string{"general"},
		},
	},
	{
		ID:   "phi3-mini",
		Name: "Phi-3 Mini 3.8B",
		Recipe: Recipe{
			Backend:   BackendOllama,
			Model:     "phi3:mini",
			Pull:      true,
			KeepAlive: defaultKeepAlive,
			SizeBytes: 2_400_000_000,
			Tags:      []string{"reasoning"},
		},
	},
	{
		ID:   "qwen2.5-coder-7b",
		Name: "Qwen 2.5 Coder 7B",
		Recipe: Recipe{
			Backend:     BackendOllama,
			Model:       "qwen2.5-coder:7b",
			Pull:        true,
			KeepAlive:   defaultKeepAlive,
			ContextSize: 8192,
			SizeBytes:   4_700_000_000,
			Tags:        []string{"code"},
		},
	},
	{
		ID:   "mistral-7b",
		Name: "Mistral 7B Instruct",
		Recipe: Recipe{
			Backend:   BackendOllama,
			Model:     "mistral:7b",
			Pull:      true,
			KeepAlive: defaultKeepAlive,
			SizeBytes: 4_100_000_000,
			Tags:      []string{"general"},
		},
	},
	{
		ID:   "local-server",
		Name: "OpenAI-compatible local server",
		Recipe: Recipe{
			Backend: BackendOpenAI,
			Model:   "local-model",
			Tags:    []string{"llama.cpp", "lm-studio", "vllm"},
		},
	},
}

// Builtin returns a copy of the built-in descriptors.
func Builtin() []Descriptor {
	out := make([]Descriptor, len(builtin))
	for i, d := range builtin {
		d.Recipe.Tags = append([]string(nil), d.Recipe.Tags...)
		out[i] = d
	}
	return out
}
