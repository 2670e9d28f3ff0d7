// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog holds the static list of selectable models.
//
// A Descriptor pairs a stable ID with the Recipe a backend needs to bring
// the model up. The catalog is built once at startup from the built-in
// entries plus any [[catalog.models]] blocks in the config file, optionally
// narrowed with Filter, and is never mutated afterwards.
//
// # Usage
//
//	cat, err := catalog.New(catalog.Builtin()...)
//	small := cat.Filter(catalog.MaxSize(4 << 30))
//	desc, ok := small.Lookup("qwen2.5-1.5b")
package catalog
